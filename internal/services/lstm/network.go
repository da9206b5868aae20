package lstm

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"FXForecast/internal/domain/models"
)

// network is the stacked LSTM regressor:
// LSTM(u1..un) with dropout after each, dense ReLU layers with optional
// dropout, and a single linear output unit.
type network struct {
	features     int
	rate         float64
	denseDropout bool

	recurrent []*recurrent
	dense     []*dense
	out       *dense
}

func newNetwork(features int, cfg Config, rng *rand.Rand) *network {
	n := &network{features: features, rate: cfg.Dropout, denseDropout: cfg.DenseDropout}
	in := features
	for i, u := range cfg.Units {
		n.recurrent = append(n.recurrent, newRecurrent(in, u, i < len(cfg.Units)-1, rng))
		in = u
	}
	for _, u := range cfg.DenseUnits {
		n.dense = append(n.dense, newDense(in, u, true, rng))
		in = u
	}
	n.out = newDense(in, 1, false, rng)
	return n
}

func (n *network) params() []*param {
	var ps []*param
	for _, l := range n.recurrent {
		ps = append(ps, l.params()...)
	}
	for _, l := range n.dense {
		ps = append(ps, l.params()...)
	}
	return append(ps, n.out.params()...)
}

// pass keeps the activations of one forward run for backpropagation.
type pass struct {
	steps    [][]step
	recMasks [][][]float64
	seqLen   int

	denseIn    []*mat.Dense
	denseOut   []*mat.Dense
	denseMasks [][]float64
	outIn      *mat.Dense
	outOut     *mat.Dense
}

// toSteps converts windows into one batch x features matrix per timestep.
func toSteps(windows []models.Window) []*mat.Dense {
	batch, T := len(windows), len(windows[0])
	F := len(windows[0][0])
	xs := make([]*mat.Dense, T)
	for t := 0; t < T; t++ {
		data := make([]float64, batch*F)
		for b, w := range windows {
			copy(data[b*F:(b+1)*F], w[t])
		}
		xs[t] = mat.NewDense(batch, F, data)
	}
	return xs
}

// forward returns one prediction per window. Dropout is active when rng is non-nil.
func (n *network) forward(windows []models.Window, rng *rand.Rand) ([]float64, *pass) {
	xs := toSteps(windows)
	p := &pass{seqLen: len(xs)}
	drop := rng != nil && n.rate > 0

	for _, l := range n.recurrent {
		hs, steps := l.forward(xs)
		p.steps = append(p.steps, steps)
		if !l.sequences {
			hs = hs[len(hs)-1:]
		}
		var masks [][]float64
		if drop {
			masks = make([][]float64, len(hs))
			for t := range hs {
				hs[t], masks[t] = dropout(hs[t], n.rate, rng)
			}
		}
		p.recMasks = append(p.recMasks, masks)
		xs = hs
	}

	x := xs[0]
	for _, l := range n.dense {
		p.denseIn = append(p.denseIn, x)
		y := l.forward(x)
		p.denseOut = append(p.denseOut, y)
		var mask []float64
		if drop && n.denseDropout {
			y, mask = dropout(y, n.rate, rng)
		}
		p.denseMasks = append(p.denseMasks, mask)
		x = y
	}
	p.outIn = x
	p.outOut = n.out.forward(x)
	return p.outOut.RawMatrix().Data, p
}

// backward accumulates gradients given dLoss/dPrediction.
func (n *network) backward(p *pass, dy []float64) {
	grad := n.out.backward(p.outIn, p.outOut, mat.NewDense(len(dy), 1, dy))
	for i := len(n.dense) - 1; i >= 0; i-- {
		if p.denseMasks[i] != nil {
			grad = applyMask(grad, p.denseMasks[i])
		}
		grad = n.dense[i].backward(p.denseIn[i], p.denseOut[i], grad)
	}

	dhs := make([]*mat.Dense, p.seqLen)
	dhs[p.seqLen-1] = grad
	for i := len(n.recurrent) - 1; i >= 0; i-- {
		l := n.recurrent[i]
		if masks := p.recMasks[i]; masks != nil {
			if l.sequences {
				for t := range dhs {
					dhs[t] = applyMask(dhs[t], masks[t])
				}
			} else {
				dhs[p.seqLen-1] = applyMask(dhs[p.seqLen-1], masks[0])
			}
		}
		dhs = l.backward(p.steps[i], dhs)
	}
}

func (n *network) zeroGrad() {
	for _, p := range n.params() {
		p.zeroGrad()
	}
}

func (n *network) weights() [][]float64 {
	ps := n.params()
	out := make([][]float64, len(ps))
	for i, p := range ps {
		out[i] = append([]float64(nil), p.w...)
	}
	return out
}

func (n *network) setWeights(ws [][]float64) {
	for i, p := range n.params() {
		copy(p.w, ws[i])
	}
}
