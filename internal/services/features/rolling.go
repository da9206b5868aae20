package features

import "fmt"

var rollingWindows = []int{5, 10, 20, 50}

func addRolling(t *Table, target string) {
	values, _ := t.Column(target)
	for _, w := range rollingWindows {
		hi := rollingMax(values, w)
		lo := rollingMin(values, w)
		t.set(fmt.Sprintf("rolling_mean_%d", w), rollingMean(values, w))
		t.set(fmt.Sprintf("rolling_std_%d", w), rollingStd(values, w))
		t.set(fmt.Sprintf("rolling_max_%d", w), hi)
		t.set(fmt.Sprintf("rolling_min_%d", w), lo)
		t.set(fmt.Sprintf("rolling_max_ratio_%d", w), ratio(values, hi))
		t.set(fmt.Sprintf("rolling_min_ratio_%d", w), ratio(values, lo))
	}
}
