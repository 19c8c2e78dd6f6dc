package model

import (
	"github.com/fumin/sac/ac"
)

const maxLimit = 1023

// divTbl[i] is PScale/(i+3), the step size of a counter that has seen i updates.
var divTbl = func() (t [maxLimit + 1]int32) {
	for i := range t {
		t[i] = ac.PScale / int32(i+3)
	}
	return t
}()

// A LinearCounter16 is a probability of a one bit moved a fixed fraction toward every observed bit.
type LinearCounter16 struct {
	P1 uint16
}

// NewLinearCounter16 returns a counter at probability one half.
func NewLinearCounter16() LinearCounter16 {
	return LinearCounter16{P1: ac.PScale / 2}
}

// Update moves the probability toward bit by rate/PScale of the error.
func (c *LinearCounter16) Update(bit int, rate int32) {
	err := int32(bit)<<ac.PBits - int32(c.P1)
	c.P1 = uint16(clampP(int32(c.P1) + idivSigned32(rate*err, ac.PBits)))
}

// A LinearCounterLimit is a counter whose step shrinks with the number of updates it has seen,
// until the count saturates at the limit given to Update.
type LinearCounterLimit struct {
	P1 uint16
	n  uint16
}

// NewLinearCounterLimit returns a counter at probability one half.
func NewLinearCounterLimit() LinearCounterLimit {
	return LinearCounterLimit{P1: ac.PScale / 2}
}

// Update moves the probability toward bit.
func (c *LinearCounterLimit) Update(bit int, limit int) {
	limit = min(limit, maxLimit)
	if int(c.n) < limit {
		c.n++
	}
	p1 := int32(c.P1)
	var dp int32
	if bit != 0 {
		dp = ((ac.PScale - p1) * divTbl[c.n]) >> ac.PBits
	} else {
		dp = -((p1 * divTbl[c.n]) >> ac.PBits)
	}
	c.P1 = uint16(clampP(p1 + dp))
}
