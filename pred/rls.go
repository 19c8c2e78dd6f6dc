package pred

import (
	"math"
)

const (
	rlsMaxTrace = 1e12
	alcShort    = 0.9
	alcLong     = 0.998
)

// forgetting adapts an RLS forgetting factor. A burst of innovation relative to its
// long term level shortens the memory, a quiet stretch lengthens it.
type forgetting struct {
	gamma       float64
	short, long float64
}

func (f *forgetting) update(metric float64) float64 {
	f.short = alcShort*f.short + (1-alcShort)*metric
	f.long = alcLong*f.long + (1-alcLong)*metric
	r := 1.0
	if f.long > 1e-9 {
		r = f.short / f.long
	}
	r = min(max(r, 0.5), 4)
	return 1 - (1-f.gamma)*r
}

// An RLS is a recursive least squares predictor over its own past targets.
type RLS struct {
	n    int
	hist []float64
	w    []float64
	p    [][]float64
	ph   []float64
	alc  forgetting
	pred float64
}

// NewRLS returns a predictor of order n with base forgetting factor gamma.
// The inverse covariance starts as I/nu.
func NewRLS(n int, gamma, nu float64) *RLS {
	r := &RLS{
		n:    n,
		hist: make([]float64, n),
		w:    make([]float64, n),
		p:    make([][]float64, n),
		ph:   make([]float64, n),
		alc:  forgetting{gamma: gamma},
	}
	for i := range r.p {
		r.p[i] = make([]float64, n)
		r.p[i][i] = 1 / nu
	}
	return r
}

// Predict returns the filter output on the stored history.
func (r *RLS) Predict() float64 {
	r.pred = dot(r.hist, r.w)
	return r.pred
}

// Update adapts to val and appends it to the history.
func (r *RLS) Update(val float64) {
	err := val - r.pred

	var phi, trace float64
	for i := 0; i < r.n; i++ {
		r.ph[i] = dot(r.p[i], r.hist)
		phi += r.hist[i] * r.ph[i]
		trace += r.p[i][i]
	}

	alpha := r.alc.update(err * err)
	if trace > rlsMaxTrace {
		// Stop forgetting while the input carries no energy, otherwise P diverges.
		alpha = 1
	}
	denom := 1 / (alpha + phi)
	if math.IsInf(denom, 0) || math.IsNaN(denom) {
		rollBack(r.hist, val)
		return
	}

	for i := 0; i < r.n; i++ {
		for j := 0; j <= i; j++ {
			v := (r.p[i][j] - denom*r.ph[i]*r.ph[j]) / alpha
			r.p[i][j] = v
			r.p[j][i] = v
		}
	}
	for i := range r.w {
		r.w[i] += err * denom * r.ph[i]
	}
	rollBack(r.hist, val)
}
