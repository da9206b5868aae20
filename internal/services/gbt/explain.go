package gbt

// Explanation attributes one prediction to features. Base plus the sum of
// Contributions equals Prediction.
type Explanation struct {
	Supported     bool      `json:"supported"`
	Base          float64   `json:"base,omitempty"`
	Features      []string  `json:"features,omitempty"`
	Contributions []float64 `json:"contributions,omitempty"`
	Prediction    float64   `json:"prediction,omitempty"`
}

// Explain decomposes the prediction for x along each tree's decision path:
// every split credits its feature with the change in node value. When
// attribution is disabled the result has Supported false and no error.
func (m *Model) Explain(x []float64) (Explanation, error) {
	if !m.cfg.Explain {
		return Explanation{}, nil
	}
	if err := m.checkInference([][]float64{x}); err != nil {
		return Explanation{}, err
	}

	ex := Explanation{
		Supported:     true,
		Base:          m.base,
		Features:      make([]string, m.nFeatures),
		Contributions: make([]float64, m.nFeatures),
	}
	for f := range ex.Features {
		ex.Features[f] = m.featureName(f)
	}
	for _, t := range m.trees {
		ex.Base += t.Nodes[0].Value
		i := 0
		for t.Nodes[i].Feature >= 0 {
			n := t.Nodes[i]
			next := n.Right
			if v := x[n.Feature]; v != v || v < n.Threshold {
				next = n.Left
			}
			ex.Contributions[n.Feature] += t.Nodes[next].Value - n.Value
			i = next
		}
	}
	ex.Prediction = ex.Base
	for _, c := range ex.Contributions {
		ex.Prediction += c
	}
	return ex, nil
}
