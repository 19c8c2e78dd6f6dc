package model

import (
	"github.com/fumin/sac/ac"
)

const (
	wBits  = 16
	wRange = 1 << 19
)

// An NMixLogistic mixes n probabilities in the logit domain with adaptive integer weights.
type NMixLogistic struct {
	dom *Domain
	x   []int32
	w   []int32
	pd  int32
}

// NewNMixLogistic returns a mixer of n inputs with all weights zero.
func NewNMixLogistic(dom *Domain, n int) *NMixLogistic {
	return &NMixLogistic{
		dom: dom,
		x:   make([]int32, n),
		w:   make([]int32, n),
		pd:  ac.PScale / 2,
	}
}

// Predict returns the mixed probability of p, which must have as many entries as the mixer has inputs.
func (m *NMixLogistic) Predict(p []uint32) uint32 {
	var sum int64
	for i := range m.x {
		m.x[i] = m.dom.Fwd(p[i])
		sum += int64(m.w[i] * m.x[i])
	}
	sum = idivSigned64(sum, wBits)
	m.pd = int32(clampP(int32(m.dom.Inv(int32(max(min(sum, 1<<20), -1<<20))))))
	return uint32(m.pd)
}

// Update takes a gradient step on the coding cost of bit.
func (m *NMixLogistic) Update(bit int, rate int32) {
	err := int32(bit)<<ac.PBits - m.pd
	for i := range m.x {
		de := idivSigned32(m.x[i]*err, domainBits)
		w := m.w[i] + idivSigned32(de*rate, domainBits)
		m.w[i] = max(-wRange, min(w, wRange-1))
	}
}

// A Mix2 blends two probabilities linearly, pm = p1 + w*(p2-p1), with a 16-bit weight.
type Mix2 struct {
	w      int32
	p1, p2 int32
	pm     int32
}

// NewMix2 returns a mixer averaging both inputs.
func NewMix2() *Mix2 {
	return &Mix2{w: 1 << (wBits - 1)}
}

// Predict returns the blend of p1 and p2.
func (m *Mix2) Predict(p1, p2 uint32) uint32 {
	m.p1, m.p2 = int32(p1), int32(p2)
	d := int64(m.p2-m.p1) * int64(m.w)
	m.pm = int32(clampP(m.p1 + int32(idivSigned64(d, wBits))))
	return uint32(m.pm)
}

// Update moves the weight to reduce the squared error of the blend.
func (m *Mix2) Update(bit int, rate int32) {
	e := int32(bit)<<ac.PBits - m.pm
	d := idivSigned32((m.p2-m.p1)*e, ac.PBits)
	w := m.w + idivSigned32(rate*d, ac.PBits)
	m.w = max(0, min(w, 1<<wBits))
}
