// Package pred implements the adaptive sample predictors.
//
// A Predictor holds one slot per channel. Each slot chains an OLS stage over the sample
// history, a Cascade over the OLS residual and a BiasEstimator over the sum of both.
// Every computation is sequential and depends only on the samples fed through Update,
// so an encoder and a decoder replaying the same samples compute identical predictions.
package pred

// SlotParams configures one predictor slot.
type SlotParams struct {
	Lambda, Nu float64

	// Stages are the NLMS stages of the cascade.
	Stages    []CascadeStage
	MuMix     float64
	MuMixBeta float64
	BiasMu    float64
}

// Params configures a Predictor.
type Params struct {
	Slots [2]SlotParams

	// K is the number of OLS updates between solves.
	K int

	// NA and NB are the own-history lengths of slot 0 and slot 1.
	NA, NB int
	// NM0 is the number of past samples of the second channel slot 0 sees.
	NM0 int
	// NS0 is the number of past samples of the reference channel slot 1 sees,
	// Lookahead the number of its samples at or after the current index.
	NS0, Lookahead int

	BetaSum, BetaPow, BetaAdd float64

	LMN     int
	LMAlpha float64

	BiasScale int
}

type slot struct {
	ols  *OLS
	lms  *Cascade
	be   *BiasEstimator
	pLPC float64
	pLMS float64
}

func newSlot(sp SlotParams, p Params, n int) *slot {
	return &slot{
		ols: NewOLS(n, p.K, sp.Lambda, sp.Nu, p.BetaSum, p.BetaPow, p.BetaAdd),
		lms: NewCascade(sp.Stages, p.LMN, p.LMAlpha, sp.MuMix, sp.MuMixBeta),
		be:  NewBiasEstimator(sp.BiasMu, p.BiasScale),
	}
}

// A Predictor predicts one or two channels sample by sample.
type Predictor struct {
	p     Params
	slots []*slot
}

// NewPredictor returns a Predictor for numChannels channels. A mono predictor
// ignores NM0 and the slot 1 parameters.
func NewPredictor(p Params, numChannels int) *Predictor {
	pr := &Predictor{p: p}
	if numChannels < 2 {
		pr.p.NM0 = 0
		pr.slots = []*slot{newSlot(p.Slots[0], p, p.NA)}
		return pr
	}
	pr.slots = []*slot{
		newSlot(p.Slots[0], p, p.NA+p.NM0),
		newSlot(p.Slots[1], p, p.NB+p.NS0+p.Lookahead),
	}
	return pr
}

// Lookahead returns how far the reference channel runs ahead of the second channel.
func (pr *Predictor) Lookahead() int { return pr.p.Lookahead }

// FillCh0 loads the inputs of slot 0 for sample idx0 of src0, given that
// src1 is known before idx1.
func (pr *Predictor) FillCh0(src0 []int32, idx0 int, src1 []int32, idx1 int) {
	x := pr.slots[0].ols.X()
	nA, nM0 := pr.p.NA, pr.p.NM0
	for i := 0; i < nA; i++ {
		x[i] = sample(src0, idx0-nA+i, idx0)
	}
	for i := 0; i < nM0; i++ {
		x[nA+i] = sample(src1, idx1-nM0+i, idx1)
	}
}

// FillCh1 loads the inputs of slot 1 for sample idx1 of src1. The reference channel src0
// must be known up to idx1+Lookahead; both channels hold n samples.
func (pr *Predictor) FillCh1(src0, src1 []int32, idx1, n int) {
	x := pr.slots[1].ols.X()
	nB, nS0 := pr.p.NB, pr.p.NS0
	for i := 0; i < nB; i++ {
		x[i] = sample(src1, idx1-nB+i, idx1)
	}
	lo := idx1 - nS0
	for i := 0; i < nS0+pr.p.Lookahead; i++ {
		x[nB+i] = sample(src0, lo+i, n)
	}
}

// sample returns src[i], or zero when i is outside [0, end).
func sample(src []int32, i, end int) float64 {
	if i < 0 || i >= end {
		return 0
	}
	return float64(src[i])
}

// Predict returns the prediction of the next sample of channel ch.
// The inputs of the channel's slot must have been filled.
func (pr *Predictor) Predict(ch int) float64 {
	s := pr.slots[ch]
	s.pLPC = s.ols.Predict()
	s.pLMS = s.lms.Predict()
	return s.be.Predict(s.pLPC + s.pLMS)
}

// Update feeds the true value of the sample last predicted on channel ch.
func (pr *Predictor) Update(ch int, val float64) {
	s := pr.slots[ch]
	s.ols.Update(val)
	s.lms.Update(val - s.pLPC)
	s.be.Update(val)
}

// SolveFailures returns the number of skipped OLS solves of channel ch.
func (pr *Predictor) SolveFailures(ch int) int {
	return pr.slots[ch].ols.solveFailures
}
