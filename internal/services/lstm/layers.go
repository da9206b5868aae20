package lstm

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// recurrent is an LSTM layer with gates ordered input, forget, cell, output.
type recurrent struct {
	in, units int
	sequences bool

	kernel    *param // in x 4u
	recKernel *param // u x 4u
	bias      *param // 4u
}

func newRecurrent(in, units int, sequences bool, rng *rand.Rand) *recurrent {
	l := &recurrent{
		in:        in,
		units:     units,
		sequences: sequences,
		kernel:    newParam(in * 4 * units),
		recKernel: newParam(units * 4 * units),
		bias:      newParam(4 * units),
	}
	glorotUniform(l.kernel, in, 4*units, rng)
	orthogonal(l.recKernel, units, 4*units, rng)
	for k := units; k < 2*units; k++ {
		l.bias.w[k] = 1
	}
	return l
}

func (l *recurrent) params() []*param { return []*param{l.kernel, l.recKernel, l.bias} }

type step struct {
	x, hPrev, cPrev     *mat.Dense
	i, f, g, o, c, tanC []float64
}

// forward runs the layer over xs (one batch x in matrix per timestep) and
// returns the hidden state at every step.
func (l *recurrent) forward(xs []*mat.Dense) ([]*mat.Dense, []step) {
	batch, u := xs[0].RawMatrix().Rows, l.units
	W := l.kernel.matrix(l.in, 4*u)
	U := l.recKernel.matrix(u, 4*u)
	b := l.bias.w

	h := mat.NewDense(batch, u, nil)
	c := mat.NewDense(batch, u, nil)
	hs := make([]*mat.Dense, len(xs))
	steps := make([]step, len(xs))
	for t, x := range xs {
		var z, zr mat.Dense
		z.Mul(x, W)
		zr.Mul(h, U)
		z.Add(&z, &zr)
		zd := z.RawMatrix().Data

		n := batch * u
		s := step{
			x: x, hPrev: h, cPrev: c,
			i: make([]float64, n), f: make([]float64, n), g: make([]float64, n), o: make([]float64, n),
			c: make([]float64, n), tanC: make([]float64, n),
		}
		hNext := make([]float64, n)
		cd := c.RawMatrix().Data
		for r := 0; r < batch; r++ {
			row := zd[r*4*u : (r+1)*4*u]
			for k := 0; k < u; k++ {
				idx := r*u + k
				s.i[idx] = sigmoid(row[k] + b[k])
				s.f[idx] = sigmoid(row[u+k] + b[u+k])
				s.g[idx] = math.Tanh(row[2*u+k] + b[2*u+k])
				s.o[idx] = sigmoid(row[3*u+k] + b[3*u+k])
				s.c[idx] = s.f[idx]*cd[idx] + s.i[idx]*s.g[idx]
				s.tanC[idx] = math.Tanh(s.c[idx])
				hNext[idx] = s.o[idx] * s.tanC[idx]
			}
		}
		h = mat.NewDense(batch, u, hNext)
		c = mat.NewDense(batch, u, s.c)
		hs[t] = h
		steps[t] = s
	}
	return hs, steps
}

// backward accumulates parameter gradients from dhs (nil entries mean zero)
// and returns the gradient with respect to each input step.
func (l *recurrent) backward(steps []step, dhs []*mat.Dense) []*mat.Dense {
	u := l.units
	batch := steps[0].x.RawMatrix().Rows
	W := l.kernel.matrix(l.in, 4*u)
	U := l.recKernel.matrix(u, 4*u)
	gW := l.kernel.grad(l.in, 4*u)
	gU := l.recKernel.grad(u, 4*u)
	gb := l.bias.g

	n := batch * u
	dhNext := make([]float64, n)
	dcNext := make([]float64, n)
	dxs := make([]*mat.Dense, len(steps))
	for t := len(steps) - 1; t >= 0; t-- {
		s := steps[t]
		var dhOut []float64
		if dhs[t] != nil {
			dhOut = dhs[t].RawMatrix().Data
		}
		cPrev := s.cPrev.RawMatrix().Data
		dz := make([]float64, batch*4*u)
		for r := 0; r < batch; r++ {
			row := dz[r*4*u : (r+1)*4*u]
			for k := 0; k < u; k++ {
				idx := r*u + k
				dh := dhNext[idx]
				if dhOut != nil {
					dh += dhOut[idx]
				}
				do := dh * s.tanC[idx]
				dc := dcNext[idx] + dh*s.o[idx]*(1-s.tanC[idx]*s.tanC[idx])
				di := dc * s.g[idx]
				dg := dc * s.i[idx]
				df := dc * cPrev[idx]
				dcNext[idx] = dc * s.f[idx]

				row[k] = di * s.i[idx] * (1 - s.i[idx])
				row[u+k] = df * s.f[idx] * (1 - s.f[idx])
				row[2*u+k] = dg * (1 - s.g[idx]*s.g[idx])
				row[3*u+k] = do * s.o[idx] * (1 - s.o[idx])
				gb[k] += row[k]
				gb[u+k] += row[u+k]
				gb[2*u+k] += row[2*u+k]
				gb[3*u+k] += row[3*u+k]
			}
		}
		dZ := mat.NewDense(batch, 4*u, dz)

		var tmp mat.Dense
		tmp.Mul(s.x.T(), dZ)
		gW.Add(gW, &tmp)
		tmp.Reset()
		tmp.Mul(s.hPrev.T(), dZ)
		gU.Add(gU, &tmp)

		var dx, dhp mat.Dense
		dx.Mul(dZ, W.T())
		dxs[t] = &dx
		dhp.Mul(dZ, U.T())
		copy(dhNext, dhp.RawMatrix().Data)
	}
	return dxs
}

// dense is a fully connected layer with optional ReLU.
type dense struct {
	in, out int
	relu    bool
	kernel  *param
	bias    *param
}

func newDense(in, out int, relu bool, rng *rand.Rand) *dense {
	l := &dense{in: in, out: out, relu: relu, kernel: newParam(in * out), bias: newParam(out)}
	glorotUniform(l.kernel, in, out, rng)
	return l
}

func (l *dense) params() []*param { return []*param{l.kernel, l.bias} }

func (l *dense) forward(x *mat.Dense) *mat.Dense {
	var y mat.Dense
	y.Mul(x, l.kernel.matrix(l.in, l.out))
	d := y.RawMatrix().Data
	for i := range d {
		d[i] += l.bias.w[i%l.out]
		if l.relu && d[i] < 0 {
			d[i] = 0
		}
	}
	return &y
}

// backward takes the layer input x, its output y and the output gradient dy.
func (l *dense) backward(x, y, dy *mat.Dense) *mat.Dense {
	rows := dy.RawMatrix().Rows
	dz := mat.NewDense(rows, l.out, nil)
	dd, yd, zd := dy.RawMatrix().Data, y.RawMatrix().Data, dz.RawMatrix().Data
	for i := range zd {
		if l.relu && yd[i] <= 0 {
			continue
		}
		zd[i] = dd[i]
		l.bias.g[i%l.out] += dd[i]
	}
	gW := l.kernel.grad(l.in, l.out)
	var tmp mat.Dense
	tmp.Mul(x.T(), dz)
	gW.Add(gW, &tmp)

	var dx mat.Dense
	dx.Mul(dz, l.kernel.matrix(l.in, l.out).T())
	return &dx
}

// dropout zeroes each element with probability rate and rescales the rest.
// It returns the output and the multiplicative mask.
func dropout(x *mat.Dense, rate float64, rng *rand.Rand) (*mat.Dense, []float64) {
	r, c := x.Dims()
	src := x.RawMatrix().Data
	mask := make([]float64, len(src))
	out := make([]float64, len(src))
	keep := 1 / (1 - rate)
	for i, v := range src {
		if rng.Float64() >= rate {
			mask[i] = keep
			out[i] = v * keep
		}
	}
	return mat.NewDense(r, c, out), mask
}

func applyMask(d *mat.Dense, mask []float64) *mat.Dense {
	r, c := d.Dims()
	src := d.RawMatrix().Data
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = v * mask[i]
	}
	return mat.NewDense(r, c, out)
}
