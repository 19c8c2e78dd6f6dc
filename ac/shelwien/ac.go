// Package shelwien implements a carry-propagating binary range coder in the style of
// Eugene Shelwien's rc_v3: a 32-bit range, a 64-bit low whose overflow is delivered
// through a cached byte followed by a run of pending 0xFF bytes.
package shelwien

import (
	"github.com/fumin/sac/ac"
)

const (
	numBytes = 4
	top      = uint32(1) << 24
	thres    = uint32(255) << 24
)

// scaleRange returns the part of r allotted to a zero bit.
func scaleRange(r, p1 uint32) uint32 {
	return uint32((uint64(r) * uint64((ac.PScale-p1)<<(32-ac.PBits))) >> 32)
}

// An Encoder appends coded bytes to Bytes.
type Encoder struct {
	Bytes []byte

	rng   uint32
	low   uint64
	cache uint32
	ffNum uint32
}

// NewEncoder returns an initialized Encoder writing into buf[:0].
func NewEncoder(buf []byte) *Encoder {
	e := &Encoder{Bytes: buf[:0]}
	e.Init()
	return e
}

// Init resets the coder state, keeping the output buffer.
func (e *Encoder) Init() {
	e.rng = 0xFFFFFFFF
	e.low = 0
	e.cache = 0
	e.ffNum = 0
}

func (e *Encoder) shiftLow() {
	carry := uint32(e.low >> 32)
	low := uint32(e.low)
	if low < thres || carry != 0 {
		e.Bytes = append(e.Bytes, byte(e.cache+carry))
		for ; e.ffNum != 0; e.ffNum-- {
			e.Bytes = append(e.Bytes, byte(carry-1))
		}
		e.cache = low >> 24
	} else {
		e.ffNum++
	}
	e.low = uint64(low << 8)
}

// EncodeBitOne codes bit with probability p1 of it being one.
func (e *Encoder) EncodeBitOne(p1 uint32, bit int) {
	rnew := scaleRange(e.rng, p1)
	if bit != 0 {
		e.rng -= rnew
		e.low += uint64(rnew)
	} else {
		e.rng = rnew
	}
	for e.rng < top {
		e.rng <<= 8
		e.shiftLow()
	}
}

// Stop flushes the pending state. The encoder must not be used afterwards without Init.
func (e *Encoder) Stop() {
	for i := 0; i < numBytes+1; i++ {
		e.shiftLow()
	}
}

// A Decoder reads coded bytes from a fixed buffer.
type Decoder struct {
	buf []byte
	pos int

	rng  uint32
	code uint32
}

// NewDecoder returns a Decoder primed with the first bytes of buf.
func NewDecoder(buf []byte) *Decoder {
	d := &Decoder{buf: buf}
	d.Init()
	return d
}

func (d *Decoder) getByte() uint32 {
	p := d.pos
	d.pos++
	if p < len(d.buf) {
		return uint32(d.buf[p])
	}
	return 0
}

// Init resets the decoder to the start of its buffer.
func (d *Decoder) Init() {
	d.pos = 0
	d.rng = 0xFFFFFFFF
	d.code = 0
	for i := 0; i < numBytes+1; i++ {
		d.code = d.code<<8 + d.getByte()
	}
}

// DecodeBitOne decodes a bit that was coded with probability p1 of being one.
func (d *Decoder) DecodeBitOne(p1 uint32) int {
	rnew := scaleRange(d.rng, p1)
	bit := 0
	if d.code >= rnew {
		d.rng -= rnew
		d.code -= rnew
		bit = 1
	} else {
		d.rng = rnew
	}
	for d.rng < top {
		d.rng <<= 8
		d.code = d.code<<8 + d.getByte()
	}
	return bit
}

// Err reports ac.ErrDecodeInsufficientBits when decoding consumed more bytes than the
// encoder's flush can account for.
func (d *Decoder) Err() error {
	if d.pos > len(d.buf)+numBytes {
		return ac.ErrDecodeInsufficientBits
	}
	return nil
}
