package models

// StatusRequest selects one symbol; empty returns every known symbol.
type StatusRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"omitempty,alphanum,max=12"`
}

// TrainHTTPRequest is the body of a manual training trigger.
type TrainHTTPRequest struct {
	Symbol string `json:"symbol" validate:"required,alphanum,max=12"`
	From   string `json:"from"`
	To     string `json:"to"`
}
