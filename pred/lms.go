package pred

import (
	"math"
)

// An NLMSStream is a power normalized LMS filter over its own past targets.
type NLMSStream struct {
	n         int
	mu        float64
	hist      *history
	w         []float64
	powtab    []float64
	mutab     []float64
	sumPowtab float64
	pred      float64
}

// NewNLMSStream returns a filter of n taps. Tap i is weighted by 1/(1+i)^powDecay in the
// power estimate and its step scaled by muDecay^i.
func NewNLMSStream(n int, mu, muDecay, powDecay float64) *NLMSStream {
	s := &NLMSStream{
		n:      n,
		mu:     mu,
		hist:   newHistory(n),
		w:      make([]float64, n),
		powtab: make([]float64, n),
		mutab:  make([]float64, n),
	}
	for i := 0; i < n; i++ {
		s.powtab[i] = 1 / math.Pow(float64(1+i), powDecay)
		s.sumPowtab += s.powtab[i]
		s.mutab[i] = math.Pow(muDecay, float64(i))
	}
	return s
}

// Predict returns the filter output on the stored history.
func (s *NLMSStream) Predict() float64 {
	s.pred = dot(s.hist.view(), s.w)
	return s.pred
}

// Update adapts to val and appends it to the history.
func (s *NLMSStream) Update(val float64) {
	x := s.hist.view()
	var spow float64
	for i, v := range x {
		spow += s.powtab[i] * v * v
	}
	g := s.mu * (val - s.pred) * s.sumPowtab / (1 + spow)
	for i, v := range x {
		s.w[i] += s.mutab[i] * g * v
	}
	s.hist.push(val)
}

// A LADMixer is a least absolute deviation linear mixer with an AdaGrad style
// per-input step normalization.
type LADMixer struct {
	X, W []float64

	mu, beta float64
	eg       []float64
	pred     float64
}

// NewLADMixer returns a mixer of n inputs.
func NewLADMixer(n int, mu, beta float64) *LADMixer {
	return &LADMixer{
		X:    make([]float64, n),
		W:    make([]float64, n),
		mu:   mu,
		beta: beta,
		eg:   make([]float64, n),
	}
}

// Predict mixes X.
func (m *LADMixer) Predict() float64 {
	m.pred = dot(m.X, m.W)
	return m.pred
}

// Update steps the weights on the sign of the error.
func (m *LADMixer) Update(val float64) {
	serr := sgn(val - m.pred)
	for i, x := range m.X {
		g := serr * x
		m.eg[i] = m.beta*m.eg[i] + (1-m.beta)*g*g
		m.W[i] += m.mu * g / (math.Sqrt(m.eg[i]) + 1e-5)
	}
}

// An SSLMS is a sign-sign LMS mixer.
type SSLMS struct {
	X, W []float64

	mu   float64
	pred float64
}

// NewSSLMS returns a mixer of n inputs.
func NewSSLMS(n int, mu float64) *SSLMS {
	return &SSLMS{X: make([]float64, n), W: make([]float64, n), mu: mu}
}

// Predict mixes X.
func (m *SSLMS) Predict() float64 {
	m.pred = dot(m.X, m.W)
	return m.pred
}

// Update steps every weight by mu in the direction of the error and input signs.
func (m *SSLMS) Update(val float64) {
	e := sgn(val - m.pred)
	for i, x := range m.X {
		m.W[i] += m.mu * e * sgn(x)
	}
}
