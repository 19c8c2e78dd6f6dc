package pred

import (
	"math"
)

const (
	biasCtxSize   = 1 << 6
	biasMixCtx    = 4
	biasHist      = 8
	biasAvgN      = 5
	biasSigma     = 1.5
	biasLambda    = 0.998
	biasCntPrior  = 4
	biasMixInputs = 3
)

// cntAvg is a running average with a saturating count. The count and sum are halved
// when the count reaches limit.
type cntAvg struct {
	cnt   int
	val   float64
	limit int
}

func (c *cntAvg) get() float64 { return c.val / float64(c.cnt) }

func (c *cntAvg) update(delta float64) {
	c.val += delta
	c.cnt++
	if c.cnt >= c.limit {
		c.val /= 2
		c.cnt >>= 1
	}
}

// A BiasEstimator corrects the systematic error left by a predictor.
// Three tables average the recent rounding error in small contexts of the sign and
// slope history, and an SSLMS per activity class mixes them.
type BiasEstimator struct {
	cnt       [3][biasCtxSize]cntAvg
	mix       [biasMixCtx]*SSLMS
	histInput []float64
	histDelta []float64
	mv        RunMeanVar

	ctx    [3]int
	mixCtx int
	px     float64
}

// NewBiasEstimator returns an estimator whose mixers step by mu and whose averages
// rescale after 1<<scale observations.
func NewBiasEstimator(mu float64, scale int) *BiasEstimator {
	b := &BiasEstimator{
		histInput: make([]float64, biasHist),
		histDelta: make([]float64, biasHist),
		mv:        RunMeanVar{Lambda: biasLambda},
	}
	for i := range b.cnt {
		for j := range b.cnt[i] {
			b.cnt[i][j] = cntAvg{cnt: biasCntPrior, limit: 1 << scale}
		}
	}
	for i := range b.mix {
		b.mix[i] = NewSSLMS(biasMixInputs, mu)
	}
	return b
}

func bit(cond bool) int {
	if cond {
		return 0
	}
	return 1
}

func (b *BiasEstimator) context(p float64) {
	hi, hd := b.histInput, b.histDelta

	b0 := bit(hi[0] > p)
	b2 := bit(hd[0] < 0)
	b3 := bit(hd[1] < 0)
	b4 := bit(hd[2] < 0)
	b5 := bit(hd[1] < hd[0])
	b6 := bit(hd[2] < hd[1])
	b7 := bit(hd[3] < hd[2])
	b8 := bit(hd[4] < hd[3])
	b9 := bit(math.Abs(hd[0]) > 32)
	b10 := bit(2*hi[0]-hi[1] > p)
	b11 := bit(3*hi[0]-3*hi[1]+hi[2] > p)

	var sum float64
	for _, d := range hd[:biasAvgN] {
		sum += math.Abs(d)
	}
	sum /= biasAvgN
	switch {
	case sum > 512:
		b.mixCtx = 2
	case sum > 32:
		b.mixCtx = 1
	default:
		b.mixCtx = 0
	}

	b.ctx[0] = b0 | b2<<1 | b9<<2 | b10<<3 | b11<<4
	b.ctx[1] = b2 | b3<<1 | b4<<2
	b.ctx[2] = b5 | b6<<1 | b7<<2 | b8<<3
}

// Predict returns pred plus the estimated bias.
func (b *BiasEstimator) Predict(pred float64) float64 {
	b.px = pred
	b.context(pred)

	m := b.mix[b.mixCtx]
	for i := range m.X {
		m.X[i] = b.cnt[i][b.ctx[i]].get()
	}
	return pred + m.Predict()
}

// Update observes the true value val. Errors outside the running mean plus or minus
// 1.5 standard deviations are not averaged into the tables.
func (b *BiasEstimator) Update(val float64) {
	delta := val - math.Round(b.px)
	rollBack(b.histInput, val)
	rollBack(b.histDelta, delta)

	q := biasSigma * math.Sqrt(b.mv.Var)
	if delta > b.mv.Mean-q && delta < b.mv.Mean+q {
		for i := range b.cnt {
			b.cnt[i][b.ctx[i]].update(delta)
		}
	}
	b.mv.Update(delta)
	b.mix[b.mixCtx].Update(delta)
}
