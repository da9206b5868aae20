package dataprep

import (
	"time"

	"FXForecast/internal/domain/service"
)

// Split holds chronological train, validation and test partitions.
type Split[S any] struct {
	Train service.Dataset[S]
	Val   service.Dataset[S]
	Test  service.Dataset[S]
}

// SplitChronological partitions samples in order: the first trainRatio share
// trains, the next valRatio share validates, the remainder tests.
func SplitChronological[S any](X []S, y []float64, trainRatio, valRatio float64) Split[S] {
	n := len(X)
	nTrain := int(float64(n) * trainRatio)
	nVal := int(float64(n) * valRatio)
	if nTrain+nVal > n {
		nVal = n - nTrain
	}
	return Split[S]{
		Train: service.Dataset[S]{X: X[:nTrain], Y: y[:nTrain]},
		Val:   service.Dataset[S]{X: X[nTrain : nTrain+nVal], Y: y[nTrain : nTrain+nVal]},
		Test:  service.Dataset[S]{X: X[nTrain+nVal:], Y: y[nTrain+nVal:]},
	}
}

// TrimAfter drops trailing samples dated after last. dates holds one entry per
// sample, in order.
func TrimAfter[S any](X []S, y []float64, dates []time.Time, last time.Time) ([]S, []float64) {
	n := len(X)
	for n > 0 && dates[n-1].After(last) {
		n--
	}
	return X[:n], y[:n]
}
