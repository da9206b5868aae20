package lstm

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// param is one trainable tensor with its gradient and Adam moments.
type param struct {
	w, g, m, v []float64
}

func newParam(n int) *param {
	return &param{
		w: make([]float64, n),
		g: make([]float64, n),
		m: make([]float64, n),
		v: make([]float64, n),
	}
}

func (p *param) matrix(r, c int) *mat.Dense { return mat.NewDense(r, c, p.w) }

func (p *param) grad(r, c int) *mat.Dense { return mat.NewDense(r, c, p.g) }

func (p *param) zeroGrad() {
	for i := range p.g {
		p.g[i] = 0
	}
}

func glorotUniform(p *param, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range p.w {
		p.w[i] = (rng.Float64()*2 - 1) * limit
	}
}

// orthogonal fills a rows x cols matrix (rows <= cols) with orthonormal rows.
func orthogonal(p *param, rows, cols int, rng *rand.Rand) {
	a := mat.NewDense(cols, rows, nil)
	for i := 0; i < cols; i++ {
		for j := 0; j < rows; j++ {
			a.Set(i, j, rng.NormFloat64())
		}
	}
	var qr mat.QR
	qr.Factorize(a)
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	w := p.matrix(rows, cols)
	for j := 0; j < rows; j++ {
		sign := 1.0
		if r.At(j, j) < 0 {
			sign = -1
		}
		for i := 0; i < cols; i++ {
			w.Set(j, i, q.At(i, j)*sign)
		}
	}
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
