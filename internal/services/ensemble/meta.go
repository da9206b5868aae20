package ensemble

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// metaLearner is an ordinary least squares regressor over the two base predictions.
type metaLearner struct {
	Intercept float64    `json:"intercept"`
	Coef      [2]float64 `json:"coef"`
}

func (m *metaLearner) predict(seq, tree float64) float64 {
	return m.Intercept + m.Coef[0]*seq + m.Coef[1]*tree
}

// fitMetaLearner solves the centered least squares problem with the SVD
// pseudo-inverse, so collinear inputs get the minimum-norm coefficients.
func fitMetaLearner(seq, tree, y []float64) (*metaLearner, error) {
	n := len(y)
	if n < 2 || len(seq) != n || len(tree) != n {
		return nil, fmt.Errorf("need at least 2 aligned samples, got %d/%d/%d", len(seq), len(tree), n)
	}
	ms, mt, my := stat.Mean(seq, nil), stat.Mean(tree, nil), stat.Mean(y, nil)
	X := mat.NewDense(n, 2, nil)
	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, seq[i]-ms)
		X.Set(i, 1, tree[i]-mt)
		b.SetVec(i, y[i]-my)
	}

	var svd mat.SVD
	if !svd.Factorize(X, mat.SVDThin) {
		return nil, fmt.Errorf("svd factorization failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sv := svd.Values(nil)

	// beta = V diag(1/s) Uᵀ b over the non-negligible singular values
	tol := 1e-12 * sv[0] * float64(n)
	var utb mat.VecDense
	utb.MulVec(u.T(), b)
	for i, s := range sv {
		if s > tol {
			utb.SetVec(i, utb.AtVec(i)/s)
		} else {
			utb.SetVec(i, 0)
		}
	}
	var beta mat.VecDense
	beta.MulVec(&v, &utb)

	m := &metaLearner{Coef: [2]float64{beta.AtVec(0), beta.AtVec(1)}}
	m.Intercept = my - m.Coef[0]*ms - m.Coef[1]*mt
	return m, nil
}
