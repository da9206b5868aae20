package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-10-10T10:10:10Z", ts},
		{strconv.FormatInt(ts.Unix(), 10), ts},
		{"2024-10-10", time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, ok := ParseTime(tt.in)
		if !ok {
			t.Fatalf("ParseTime(%q) not ok", tt.in)
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, ok := ParseTime("yesterday"); ok {
		t.Error("expected garbage input to fail")
	}
}

func TestLookbackRange(t *testing.T) {
	to := time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC)

	from, end, err := LookbackRange(to, 10, "4h")
	if err != nil {
		t.Fatal(err)
	}
	if !end.Equal(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected end %v", end)
	}
	if end.Sub(from) != 40*time.Hour {
		t.Errorf("unexpected span %v", end.Sub(from))
	}

	from, end, _ = LookbackRange(to, 5, "1d")
	if end.Sub(from) != 7*24*time.Hour {
		t.Errorf("daily lookback should cover weekends, got %v", end.Sub(from))
	}

	if _, _, err := LookbackRange(to, 5, "1m"); err == nil {
		t.Error("expected unsupported timeframe error")
	}
}
