package shelwien

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/fumin/sac/ac"
)

func TestEncodeConstModel(t *testing.T) {
	tests := []struct {
		name string
		p1   uint32
		q1   float64 // frequency of ones in the source
	}{
		{name: "half", p1: ac.PScale / 2, q1: 0.5},
		{name: "skewed", p1: ac.PScale / 4, q1: 0.25},
		{name: "mismatched", p1: ac.PScale / 8, q1: 0.7},
		// Long runs of the likely symbol exercise the pending 0xFF bytes.
		{name: "min", p1: 1, q1: 0.0001},
		{name: "max", p1: ac.PScaleMask, q1: 0.9999},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rnd := rand.New(rand.NewSource(1))
			x := make([]int, 50000)
			for i := range x {
				if rnd.Float64() < test.q1 {
					x[i] = 1
				}
			}
			p := make([]uint32, len(x))
			for i := range p {
				p[i] = test.p1
			}
			testEncode(t, p, x)
		})
	}
}

func TestEncodeVaryingProbabilities(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	x := make([]int, 100000)
	p := make([]uint32, len(x))
	for i := range x {
		p[i] = uint32(1 + rnd.Intn(ac.PScaleMask))
		if uint32(rnd.Intn(ac.PScale)) < p[i] {
			x[i] = 1
		}
	}
	testEncode(t, p, x)
}

func TestEncodeEmpty(t *testing.T) {
	enc := NewEncoder(nil)
	enc.Stop()
	dec := NewDecoder(enc.Bytes)
	if err := dec.Err(); err != nil {
		t.Fatalf("%+v", err)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	x := make([]int, 20000)
	p := make([]uint32, len(x))
	for i := range x {
		p[i] = uint32(1 + rnd.Intn(ac.PScaleMask))
		x[i] = rnd.Intn(2)
	}
	first := encode(p, x)
	second := encode(p, x)
	if !bytes.Equal(first, second) {
		t.Fatalf("encodings differ: %d bytes vs %d bytes", len(first), len(second))
	}
}

func encode(p []uint32, x []int) []byte {
	enc := NewEncoder(nil)
	for i, b := range x {
		enc.EncodeBitOne(p[i], b)
	}
	enc.Stop()
	return enc.Bytes
}

func testEncode(t *testing.T, p []uint32, x []int) {
	encoded := encode(p, x)
	t.Logf("encoded bytes: %d, original bits: %d", len(encoded), len(x))

	dec := NewDecoder(encoded)
	for i, b := range x {
		if got := dec.DecodeBitOne(p[i]); got != b {
			t.Fatalf("%d: %d != %d", i, b, got)
		}
	}
	if err := dec.Err(); err != nil {
		t.Fatalf("%+v", err)
	}
}
