package lstm

import "math"

// earlyStopping tracks the best monitored loss and its weights.
type earlyStopping struct {
	patience  int
	best      float64
	bestEpoch int
	wait      int
	weights   [][]float64
}

func newEarlyStopping(patience int) *earlyStopping {
	return &earlyStopping{patience: patience, best: math.Inf(1), bestEpoch: -1}
}

// update returns true when training should stop.
func (e *earlyStopping) update(epoch int, loss float64, net *network) bool {
	if loss < e.best {
		e.best, e.bestEpoch, e.wait = loss, epoch, 0
		e.weights = net.weights()
		return false
	}
	e.wait++
	return e.wait >= e.patience
}

// plateau halves the learning rate when the monitored loss stalls.
type plateau struct {
	patience int
	factor   float64
	minDelta float64
	minLR    float64
	best     float64
	wait     int
}

// update returns the learning rate to use for the next epoch.
func (p *plateau) update(loss, lr float64) float64 {
	if loss < p.best-p.minDelta {
		p.best, p.wait = loss, 0
		return lr
	}
	p.wait++
	if p.wait >= p.patience && lr > p.minLR {
		p.wait = 0
		return math.Max(lr*p.factor, p.minLR)
	}
	return lr
}
