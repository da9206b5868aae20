package util

import (
	"fmt"
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, a plain date and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// TimeframeDuration returns the bar length for a timeframe label.
func TimeframeDuration(tf string) (time.Duration, error) {
	switch tf {
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe %q", tf)
	}
}

// LookbackRange returns [to - bars*tf, to] with both ends truncated to bar boundaries in UTC.
// Daily data skips weekends, so callers over-fetch by the weekend ratio.
func LookbackRange(to time.Time, bars int, tf string) (time.Time, time.Time, error) {
	d, err := TimeframeDuration(tf)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to = to.UTC().Truncate(d)
	span := time.Duration(bars) * d
	if tf == "1d" {
		span = span * 7 / 5
	}
	return to.Add(-span), to, nil
}
