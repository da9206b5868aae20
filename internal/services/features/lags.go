package features

import "fmt"

var lagPeriods = []int{1, 2, 3, 5, 10, 20}

// addLags shifts the target column and, when price action is enabled, the simple return.
func addLags(t *Table, target string) {
	values, _ := t.Column(target)
	returns, hasReturns := t.Column("returns")
	for _, lag := range lagPeriods {
		t.set(fmt.Sprintf("%s_lag_%d", target, lag), shift(values, lag))
		if hasReturns {
			t.set(fmt.Sprintf("returns_lag_%d", lag), shift(returns, lag))
		}
	}
}
