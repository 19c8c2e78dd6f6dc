package pred

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// An OLS is a weighted least squares linear predictor.
// The normal equations are accumulated with exponential forgetting and solved by
// a Cholesky factorization every k updates.
type OLS struct {
	x, w []float64

	n, k, km      int
	lambda, nu    float64
	betaAdd       float64
	betaPow       float64
	esum          RunWeight
	pred          float64
	mcov          [][]float64
	b             []float64
	sym           *mat.SymDense
	chol          mat.Cholesky
	sol           *mat.VecDense
	solveFailures int
}

// NewOLS returns a predictor over n inputs.
func NewOLS(n, k int, lambda, nu, betaSum, betaPow, betaAdd float64) *OLS {
	o := &OLS{
		x:       make([]float64, n),
		w:       make([]float64, n),
		n:       n,
		k:       max(k, 1),
		lambda:  lambda,
		nu:      float64(n) * nu,
		betaAdd: betaAdd,
		betaPow: betaPow,
		esum:    RunWeight{Alpha: betaSum},
		b:       make([]float64, n),
		mcov:    make([][]float64, n),
	}
	for i := range o.mcov {
		o.mcov[i] = make([]float64, n)
	}
	if n > 0 {
		o.sym = mat.NewSymDense(n, nil)
		o.sol = mat.NewVecDense(n, nil)
	}
	return o
}

// X returns the input vector to be filled before Predict.
func (o *OLS) X() []float64 { return o.x }

// Weights returns the current solution.
func (o *OLS) Weights() []float64 { return o.w }

// Predict returns the weighted sum of the inputs.
func (o *OLS) Predict() float64 {
	o.pred = dot(o.x, o.w)
	return o.pred
}

// Update accumulates the observation val for the inputs of the last Predict.
func (o *OLS) Update(val float64) {
	o.esum.Update(math.Abs(val - o.pred))
	c0 := math.Pow(o.esum.Sum+o.betaAdd, -o.betaPow)

	for j := 0; j < o.n; j++ {
		row := o.mcov[j]
		cx := c0 * o.x[j]
		for i := 0; i <= j; i++ {
			row[i] = o.lambda*row[i] + cx*o.x[i]
		}
		o.b[j] = o.lambda*o.b[j] + cx*val
	}

	o.km++
	if o.km >= o.k {
		o.km = 0
		o.solve()
	}
}

// solve keeps the previous weights when the regularized matrix is not positive definite
// or the solution is too ill conditioned.
func (o *OLS) solve() {
	if o.n == 0 {
		return
	}
	for j := 0; j < o.n; j++ {
		for i := 0; i < j; i++ {
			o.sym.SetSym(i, j, o.mcov[j][i])
		}
		o.sym.SetSym(j, j, o.mcov[j][j]+o.nu)
	}
	if ok := o.chol.Factorize(o.sym); !ok {
		o.solveFailures++
		return
	}
	if err := o.chol.SolveVecTo(o.sol, mat.NewVecDense(o.n, o.b)); err != nil {
		o.solveFailures++
		return
	}
	for i := range o.w {
		o.w[i] = o.sol.AtVec(i)
	}
}
