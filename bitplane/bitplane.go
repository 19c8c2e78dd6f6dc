// Package bitplane codes a block of non-negative integers one bit-plane at a time,
// from the most significant plane down, with a context mixing model per bit.
//
// A sample is significant once its leading one has been coded. Bits of significant samples are
// refinement bits, predicted from the known high bits of the sample and its neighbours.
// Bits of insignificant samples are significance bits, predicted from a Laplace model of the
// neighbourhood magnitude and the significance of the neighbours.
package bitplane

import (
	"math"
	"math/bits"

	"github.com/fumin/sac/ac"
	"github.com/fumin/sac/model"
)

const (
	cntRateP     = 150
	cntRateSig   = 300
	cntRateRef   = 150
	mixRateRef   = 800
	mixRateSig   = 700
	cntSSERate   = 250
	mixSSERate   = 250
	mix2SSERate  = 250
	avgRadius    = 32
	sigRadius    = 32
	numNeighbors = 16
)

// Fold maps a signed value onto the non-negative integers: negative values become even,
// positive values odd.
func Fold(v int32) int32 {
	if v < 0 {
		return -2 * v
	}
	if v > 0 {
		return 2*v - 1
	}
	return 0
}

// Unfold inverts Fold.
func Unfold(u int32) int32 {
	if u&1 != 0 {
		return (u + 1) >> 1
	}
	return -(u >> 1)
}

// MaxBPN returns the position of the highest bit set in any value of buf, or 0 if all are zero.
func MaxBPN(buf []int32) int {
	var emax int32 = 1
	for _, v := range buf {
		emax = max(emax, v)
	}
	return bits.Len32(uint32(emax)) - 1
}

// A Coder carries the model state of one block. A Coder codes a single block.
type Coder struct {
	buf    []int32
	maxbpn int

	csig0, csig1       []model.LinearCounterLimit
	cref0, cref1       []model.LinearCounterLimit
	cref2, cref3       []model.LinearCounterLimit
	pLaplace           [32]model.LinearCounterLimit
	lmixref, lmixsig   []*model.NMixLogistic
	sse                []*model.SSE
	sseBlend           *model.Mix2
	ssemix             *model.NMixLogistic
	msb                []int32
	sigst              [numNeighbors + 1]int32
	bmask              [34]uint32
	bpn, sample, state int
	pestimate          uint32
	avgL, avgR         uint64
	in                 [5]uint32

	// current contexts, resolved at update time
	ctxMix, ctxC1, ctxC2, ctxC3, ctxC4 int
	ctxSSE1, ctxSSE2                   int
}

// NewCoder returns a Coder over buf, whose values must all be below 1<<(maxbpn+1).
// Encode reads buf, Decode overwrites it.
func NewCoder(buf []int32, maxbpn int) *Coder {
	dom := model.LogDomain()
	c := &Coder{
		buf:      buf,
		maxbpn:   maxbpn,
		csig0:    newCounters(1 << numNeighbors),
		csig1:    newCounters(4*sigRadius + 1),
		cref0:    newCounters(32),
		cref1:    newCounters(256),
		cref2:    newCounters(64),
		cref3:    newCounters(8*32 + 1),
		lmixref:  make([]*model.NMixLogistic, 32),
		lmixsig:  make([]*model.NMixLogistic, 128),
		sse:      make([]*model.SSE, 160),
		sseBlend: model.NewMix2(),
		ssemix:   model.NewNMixLogistic(dom, 2),
		msb:      make([]int32, len(buf)),
	}
	for i := range c.lmixref {
		c.lmixref[i] = model.NewNMixLogistic(dom, 5)
	}
	for i := range c.lmixsig {
		c.lmixsig[i] = model.NewNMixLogistic(dom, 3)
	}
	for i := range c.sse {
		c.sse[i] = model.NewSSE(dom, 15)
	}

	const theta = 0.99
	for i := range c.pLaplace {
		p := math.Round((1 - 1/(1+math.Pow(theta, float64(uint64(1)<<i)))) * ac.PScale)
		c.pLaplace[i] = model.NewLinearCounterLimit()
		c.pLaplace[i].P1 = uint16(max(1, min(p, ac.PScaleMask)))
	}
	for i := range c.bmask {
		if i < 32 {
			c.bmask[i] = ^uint32(0) << i
		}
	}
	return c
}

func newCounters(n int) []model.LinearCounterLimit {
	c := make([]model.LinearCounterLimit, n)
	for i := range c {
		c[i] = model.NewLinearCounterLimit()
	}
	return c
}

// Encode codes every bit-plane of the block into enc.
func (c *Coder) Encode(enc ac.Encoder) {
	n := len(c.buf)
	for c.bpn = c.maxbpn; c.bpn >= 0; c.bpn-- {
		c.startPlane()
		for c.sample = 0; c.sample < n; c.sample++ {
			c.beginSample()
			bit := int(c.buf[c.sample]>>c.bpn) & 1
			if c.sigst[0] != 0 {
				enc.EncodeBitOne(c.predictSSE(c.predictRef()), bit)
				c.updateRef(bit)
			} else {
				enc.EncodeBitOne(c.predictSSE(c.predictSig()), bit)
				c.updateSig(bit)
				if bit != 0 {
					c.msb[c.sample] = int32(c.bpn)
				}
			}
			c.updateSSE(bit)
			c.endSample()
		}
	}
}

// Decode reconstructs the block from dec, leaving the unfolded values in the buffer.
func (c *Coder) Decode(dec ac.Decoder) {
	n := len(c.buf)
	for i := range c.buf {
		c.buf[i] = 0
	}
	for c.bpn = c.maxbpn; c.bpn >= 0; c.bpn-- {
		c.startPlane()
		for c.sample = 0; c.sample < n; c.sample++ {
			c.beginSample()
			var bit int
			if c.sigst[0] != 0 {
				bit = dec.DecodeBitOne(c.predictSSE(c.predictRef()))
				c.updateRef(bit)
			} else {
				bit = dec.DecodeBitOne(c.predictSSE(c.predictSig()))
				c.updateSig(bit)
				if bit != 0 {
					c.msb[c.sample] = int32(c.bpn)
				}
			}
			c.updateSSE(bit)
			if bit != 0 {
				c.buf[c.sample] += 1 << c.bpn
			}
			c.endSample()
		}
	}
	for i, v := range c.buf {
		c.buf[i] = Unfold(v)
	}
}

func (c *Coder) startPlane() {
	c.state = 0
	c.avgL = 0
	c.avgR = 0
	m1 := c.bmask[c.bpn+1]
	for k := 0; k <= min(avgRadius, len(c.buf)-1); k++ {
		c.avgR += uint64(uint32(c.buf[k]) & m1)
	}
}

func (c *Coder) beginSample() {
	s, n := c.sample, len(c.buf)
	start := max(s-avgRadius, 0)
	end := min(s+avgRadius, n-1)
	cnt := uint64(end - start + 1)
	avg := (c.avgL + c.avgR + cnt - 1) / cnt
	c.pestimate = c.predictLaplace(avg)
	c.sigState()
}

// endSample slides the neighbourhood sums past the current sample, whose bit is now known.
func (c *Coder) endSample() {
	s, n := c.sample, len(c.buf)
	m0, m1 := c.bmask[c.bpn], c.bmask[c.bpn+1]
	c.avgL += uint64(uint32(c.buf[s]) & m0)
	if s-avgRadius >= 0 {
		c.avgL -= uint64(uint32(c.buf[s-avgRadius]) & m0)
	}
	c.avgR -= uint64(uint32(c.buf[s]) & m1)
	if s+1+avgRadius <= n-1 {
		c.avgR += uint64(uint32(c.buf[s+1+avgRadius]) & m1)
	}
}

func (c *Coder) predictLaplace(avg uint64) uint32 {
	var p float64
	if avg > 0 {
		theta := math.Exp(-1 / float64(avg))
		p = 1 - 1/(1+math.Pow(theta, float64(uint64(1)<<c.bpn)))
	}
	return uint32(max(1, min(math.Round(p*ac.PScale), ac.PScaleMask)))
}

// sigState loads the significance of the sample and its 8 neighbours on each side,
// nearest first, alternating left and right.
func (c *Coder) sigState() {
	s, n := c.sample, len(c.buf)
	c.sigst[0] = c.msb[s]
	for i := 1; i <= numNeighbors/2; i++ {
		var l, r int32
		if s-i >= 0 {
			l = c.msb[s-i]
		}
		if s+i < n {
			r = c.msb[s+i]
		}
		c.sigst[2*i-1] = l
		c.sigst[2*i] = r
	}
}

func (c *Coder) at(i int) int32 {
	if i < 0 || i >= len(c.buf) {
		return 0
	}
	return c.buf[i]
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (c *Coder) predictRef() uint32 {
	s, bpn := c.sample, c.bpn
	b0 := c.buf[s] >> (bpn + 1)
	b1 := c.at(s-1) >> bpn
	b2 := c.at(s+1) >> (bpn + 1)
	b3 := c.at(s-2) >> bpn
	b4 := c.at(s+2) >> (bpn + 1)

	c0 := b2i(b0<<1 < b1)
	c1 := b2i(b0 < b2)
	c2 := b2i(b0<<1 < b3)
	c3 := b2i(b0 < b4)

	x0, x1, x2, x3, x4 := b0<<1, b1, b2<<1, b3, b4<<1
	xm := (x0 + x1 + x2 + x3 + x4) / 5
	d0 := b2i(x0 > xm)
	d1 := b2i(x1 > xm)

	ctx1 := int(b0&15) + int(b1&15)<<4 + int(b2&15)<<8
	ctx2 := c0 + c1<<1 + c2<<2 + c3<<3 + d0<<4 + d1<<5
	var ctx3 int
	for _, v := range c.sigst[1:9] {
		ctx3 += int(v)
	}

	c.ctxC1 = int(c.msb[s])
	c.ctxC2 = ctx1 & 255
	c.ctxC3 = ctx2
	c.ctxC4 = ctx3
	c.ctxMix = ((int(c.pestimate>>12)<<1+d0)<<1 + int(b0&1))

	c.in = [5]uint32{
		c.pestimate,
		uint32(c.pLaplace[bpn].P1),
		uint32(c.cref0[c.ctxC1].P1),
		uint32(c.cref1[c.ctxC2].P1),
		uint32(c.cref2[c.ctxC3].P1),
	}
	return c.lmixref[c.ctxMix].Predict(c.in[:])
}

func (c *Coder) updateRef(bit int) {
	c.pLaplace[c.bpn].Update(bit, cntRateP)
	c.cref0[c.ctxC1].Update(bit, cntRateRef)
	c.cref1[c.ctxC2].Update(bit, cntRateRef)
	c.cref2[c.ctxC3].Update(bit, cntRateRef)
	c.cref3[c.ctxC4].Update(bit, cntRateRef)
	c.lmixref[c.ctxMix].Update(bit, mixRateRef)
	c.state <<= 1
}

// countSig counts the neighbours that are significant (n1) and those significant above the
// current plane (n2).
func (c *Coder) countSig() (n1, n2 int) {
	s, n := c.sample, len(c.buf)
	bpn := int32(c.bpn)
	for i := 1; i <= sigRadius; i++ {
		if s-i >= 0 {
			n1 += b2i(c.msb[s-i] != 0)
			n2 += b2i(c.msb[s-i] > bpn)
		}
		if s+i < n-1 {
			n1 += b2i(c.msb[s+i] != 0)
			n2 += b2i(c.msb[s+i] > bpn)
		}
	}
	return n1, n2
}

func (c *Coder) predictSig() uint32 {
	var ctx1 int
	for i, v := range c.sigst[1:] {
		if v != 0 {
			ctx1 |= 1 << i
		}
	}
	n1, n2 := c.countSig()

	c.ctxC1 = ctx1
	c.ctxC2 = n2
	c.ctxMix = (c.state&15)<<3 + min(n1, 3)<<1 + b2i(n2 > 0)
	c.in = [5]uint32{
		uint32(c.pLaplace[c.bpn].P1),
		uint32(c.csig0[c.ctxC1].P1),
		uint32(c.csig1[c.ctxC2].P1),
	}
	return c.lmixsig[c.ctxMix].Predict(c.in[:3])
}

func (c *Coder) updateSig(bit int) {
	c.pLaplace[c.bpn].Update(bit, cntRateP)
	c.csig0[c.ctxC1].Update(bit, cntRateSig)
	c.csig1[c.ctxC2].Update(bit, cntRateSig)
	c.lmixsig[c.ctxMix].Update(bit, mixRateSig)
	c.state = c.state<<1 + 1
}

func (c *Coder) predictSSE(p1 uint32) uint32 {
	c.ctxSSE1 = int(c.pestimate>>11)<<1 + b2i(c.sigst[0] != 0)
	c.ctxSSE2 = 32
	for i := 0; i <= 6; i++ {
		c.ctxSSE2 += b2i(c.sigst[i] != 0) << i
	}
	pr1 := c.sse[c.ctxSSE1].Predict(p1)
	pr2 := c.sse[c.ctxSSE2].Predict(pr1)
	c.in[0], c.in[1] = c.sseBlend.Predict(pr1, pr2), p1
	return c.ssemix.Predict(c.in[:2])
}

func (c *Coder) updateSSE(bit int) {
	c.sse[c.ctxSSE1].Update(bit, cntSSERate)
	c.sse[c.ctxSSE2].Update(bit, cntSSERate)
	c.sseBlend.Update(bit, mix2SSERate)
	c.ssemix.Update(bit, mixSSERate)
}
