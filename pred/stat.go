package pred

import (
	"math"
)

// A RunExp is an exponentially smoothed mean.
type RunExp struct {
	Alpha float64
	Sum   float64
}

// Update moves the mean toward v.
func (r *RunExp) Update(v float64) {
	r.Sum = r.Alpha*r.Sum + (1-r.Alpha)*v
}

// A RunWeight is an exponentially decayed sum.
type RunWeight struct {
	Alpha float64
	Sum   float64
}

// Update decays the sum and adds v.
func (r *RunWeight) Update(v float64) {
	r.Sum = r.Alpha*r.Sum + v
}

// A RunMeanVar tracks an exponentially weighted mean and variance.
type RunMeanVar struct {
	Lambda    float64
	Mean, Var float64
}

// Update adds the observation v.
func (r *RunMeanVar) Update(v float64) {
	d := v - r.Mean
	r.Mean += (1 - r.Lambda) * d
	r.Var = r.Lambda * (r.Var + (1-r.Lambda)*d*d)
}

// A history keeps the last n values, newest first, in a contiguous window.
type history struct {
	n, pos int
	buf    []float64
}

func newHistory(n int) *history {
	return &history{n: n, buf: make([]float64, 2*n)}
}

func (h *history) push(v float64) {
	if h.n == 0 {
		return
	}
	h.pos = (h.pos + h.n - 1) % h.n
	h.buf[h.pos] = v
	h.buf[h.pos+h.n] = v
}

// view returns the values, newest at index 0.
func (h *history) view() []float64 {
	return h.buf[h.pos : h.pos+h.n]
}

// rollBack shifts data one position and stores v at the front.
func rollBack(data []float64, v float64) {
	if len(data) == 0 {
		return
	}
	copy(data[1:], data[:len(data)-1])
	data[0] = v
}

func dot(x, y []float64) float64 {
	var s float64
	for i := range x {
		s += x[i] * y[i]
	}
	return s
}

func sgn(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// finite replaces NaN and infinities by zero.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
