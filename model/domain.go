// Package model contains the adaptive probability estimators driving the binary coders:
// counters, logistic and linear mixers, and secondary estimation stages.
// All arithmetic is integer fixed point so that encoders and decoders stay in lock step.
package model

import (
	"math"
	"sync"

	"github.com/fumin/sac/ac"
)

const (
	domainScale = 256
	domainBits  = 12
	domainSize  = 1 << domainBits
)

// A Domain is the stretch/squash table pair mapping probabilities to the logit domain and back.
// It is immutable once built.
type Domain struct {
	fwd [ac.PScale]int16
	inv [domainSize]int16

	// Min and Max are the stretched values of the smallest and largest probabilities.
	Min, Max int32
}

// LogDomain returns the shared logistic domain table, building it on first use.
var LogDomain = sync.OnceValue(newDomain)

func newDomain() *Domain {
	d := &Domain{}
	for i := range d.fwd {
		p := (float64(i) + 0.5) / (ac.PScale - float64(i) - 0.5)
		d.fwd[i] = int16(math.Floor(math.Log(p)*domainScale + 0.5))
	}
	for i := range d.inv {
		x := float64(i-domainSize/2) / domainScale
		v := math.Floor(ac.PScale / (1 + math.Exp(-x)))
		d.inv[i] = int16(min(v, ac.PScaleMask))
	}
	d.Min = int32(d.fwd[0])
	d.Max = int32(d.fwd[ac.PScaleMask])
	return d
}

// Fwd stretches the probability p in [0, PScale-1].
func (d *Domain) Fwd(p uint32) int32 {
	return int32(d.fwd[p&ac.PScaleMask])
}

// Inv squashes x back to a probability.
func (d *Domain) Inv(x int32) uint32 {
	if x < -domainSize/2 {
		return 0
	}
	if x > domainSize/2-1 {
		return ac.PScaleMask
	}
	return uint32(d.inv[x+domainSize/2])
}

// idivSigned32 divides by 2^s, rounding half away from zero.
func idivSigned32(v int32, s uint) int32 {
	r := int32(1) << (s - 1)
	if v < 0 {
		return -((-v + r) >> s)
	}
	return (v + r) >> s
}

func idivSigned64(v int64, s uint) int64 {
	r := int64(1) << (s - 1)
	if v < 0 {
		return -((-v + r) >> s)
	}
	return (v + r) >> s
}

func clampP(p int32) uint32 {
	return uint32(max(1, min(p, ac.PScaleMask)))
}
