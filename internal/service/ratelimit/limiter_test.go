package ratelimit

import (
	"testing"
	"time"
)

func TestAllow(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(2, time.Minute)
	l.now = func() time.Time { return clock }

	if !l.Allow("USDJPY") || !l.Allow("USDJPY") {
		t.Fatal("burst of two should pass")
	}
	if l.Allow("USDJPY") {
		t.Fatal("third request should be throttled")
	}
	if !l.Allow("EURUSD") {
		t.Fatal("keys are independent")
	}

	clock = clock.Add(30 * time.Second)
	if l.Allow("USDJPY") {
		t.Fatal("half a token is not enough")
	}
	clock = clock.Add(31 * time.Second)
	if !l.Allow("USDJPY") {
		t.Fatal("token should have refilled")
	}

	clock = clock.Add(time.Hour)
	for i := 0; i < 2; i++ {
		if !l.Allow("USDJPY") {
			t.Fatalf("request %d after long idle should pass", i)
		}
	}
	if l.Allow("USDJPY") {
		t.Fatal("refill must cap at burst")
	}
}
