// Package ac defines the interfaces the binary arithmetic coders require.
// See its subpackages for particular finite precision realizations.
package ac

import (
	"github.com/pkg/errors"
)

const (
	// PBits is the number of bits of a probability.
	PBits = 15
	// PScale is the probability of a certain event.
	PScale = 1 << PBits
	// PScaleMask is the largest representable probability.
	PScaleMask = PScale - 1
)

// ErrDecodeInsufficientBits is returned when there are insufficient bytes sent to a decoder to reconstruct the original data.
var ErrDecodeInsufficientBits = errors.New("insufficient bits sent to decoder")

// An Encoder codes single bits given the probability p1 in [1, PScale-1] that the bit is one.
type Encoder interface {
	EncodeBitOne(p1 uint32, bit int)
}

// A Decoder recovers the bits produced by an Encoder, given the same probabilities.
type Decoder interface {
	DecodeBitOne(p1 uint32) int
}
