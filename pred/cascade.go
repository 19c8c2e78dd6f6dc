package pred

import (
	"math"
)

const (
	rlsNu      = 0.001
	blendAlpha = 0.99
)

// A CascadeStage configures one NLMS stage of a Cascade.
type CascadeStage struct {
	N                     int
	Mu, MuDecay, PowDecay float64
}

// A Cascade chains NLMS stages and a final RLS stage, each predicting what the previous
// stages left over. The stage outputs and the last residual are mixed twice, by a LADMixer
// and by an SSLMS, and the two mixes are blended by their running absolute errors.
type Cascade struct {
	stages []*NLMSStream
	rls    *RLS
	lad    *LADMixer
	ss     *SSLMS
	errLAD RunExp
	errSS  RunExp
	p      []float64
	pLAD   float64
	pSS    float64
}

// NewCascade returns a cascade of the given NLMS stages followed by an RLS stage of order
// rlsN and base forgetting factor rlsAlpha.
func NewCascade(stages []CascadeStage, rlsN int, rlsAlpha, muMix, muMixBeta float64) *Cascade {
	n := len(stages) + 2
	c := &Cascade{
		rls:    NewRLS(rlsN, rlsAlpha, rlsNu),
		lad:    NewLADMixer(n, muMix, muMixBeta),
		ss:     NewSSLMS(n, muMix),
		errLAD: RunExp{Alpha: blendAlpha},
		errSS:  RunExp{Alpha: blendAlpha},
		p:      make([]float64, n),
	}
	for _, s := range stages {
		c.stages = append(c.stages, NewNLMSStream(s.N, s.Mu, s.MuDecay, s.PowDecay))
	}
	for i := range c.stages {
		c.lad.W[i] = 1 / float64(i+1)
		c.ss.W[i] = 1 / float64(i+1)
	}
	return c
}

// Predict returns the blended prediction of the next target.
func (c *Cascade) Predict() float64 {
	for i, s := range c.stages {
		c.p[i] = s.Predict()
	}
	c.p[len(c.stages)] = c.rls.Predict()

	copy(c.lad.X, c.p)
	copy(c.ss.X, c.p)
	c.pLAD = c.lad.Predict()
	c.pSS = c.ss.Predict()

	ea, eb := c.errLAD.Sum, c.errSS.Sum
	wa := 0.5
	if ea+eb > 0 {
		wa = eb / (ea + eb)
	}
	return wa*c.pLAD + (1-wa)*c.pSS
}

// Update adapts every stage to target. Each stage learns what the stages before it
// left unexplained, scaled by their mixing weights.
func (c *Cascade) Update(target float64) {
	c.lad.Update(target)
	c.ss.Update(target)
	c.errLAD.Update(math.Abs(target - c.pLAD))
	c.errSS.Update(math.Abs(target - c.pSS))

	t := target
	for i, s := range c.stages {
		s.Update(t)
		t -= max(c.lad.W[i], 0) * c.p[i]
	}
	n := len(c.stages)
	c.rls.Update(t)
	t -= max(c.lad.W[n], 0) * c.p[n]
	c.p[n+1] = t
}
