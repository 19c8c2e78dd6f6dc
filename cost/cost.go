// Package cost scores prediction residuals. Lower is better.
package cost

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/fumin/sac/ac/shelwien"
	"github.com/fumin/sac/bitplane"
	"github.com/fumin/sac/pred"
	"github.com/pkg/errors"
)

// A Kind selects a cost function.
type Kind int

const (
	// L1 is the mean absolute residual.
	L1 Kind = iota
	// RMS is the root mean square residual.
	RMS
	// Golomb estimates the bytes of an adaptive Golomb code.
	Golomb
	// Entropy is the order-0 entropy of the residuals in bytes.
	Entropy
	// Bitplane is the exact size in bytes of the bitplane coded residuals.
	Bitplane
)

var kindNames = []string{"l1", "rms", "golomb", "entropy", "bitplane"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, errors.Errorf("unknown cost function %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return errors.Wrap(err, "")
	}
	*k = v
	return nil
}

// Calc returns the cost of buf under kind.
func Calc(kind Kind, buf []int32) float64 {
	if len(buf) == 0 {
		return 0
	}
	switch kind {
	case L1:
		return l1(buf)
	case RMS:
		return rms(buf)
	case Golomb:
		return golomb(buf)
	case Entropy:
		return entropy(buf)
	case Bitplane:
		return bitplaneSize(buf)
	}
	panic(fmt.Sprintf("unknown cost %v", kind))
}

func l1(buf []int32) float64 {
	var sum int64
	for _, v := range buf {
		sum += abs64(v)
	}
	return float64(sum) / float64(len(buf))
}

func rms(buf []int32) float64 {
	var sum int64
	for _, v := range buf {
		sum += int64(v) * int64(v)
	}
	return math.Sqrt(float64(sum) / float64(len(buf)))
}

const golombAlpha = 0.97

// golomb codes each folded value with the modulus set to the running mean of the
// previous ones.
func golomb(buf []int32) float64 {
	rm := pred.RunExp{Alpha: golombAlpha}
	var nbits int64
	for _, v := range buf {
		m := uint32(max(int32(rm.Sum), 1))
		u := uint32(bitplane.Fold(v))
		nbits += int64(u/m) + 1
		if m > 1 {
			nbits += int64(bits.Len32(m))
		}
		rm.Update(float64(u))
	}
	return float64(nbits) / 8
}

func entropy(buf []int32) float64 {
	lo, hi := buf[0], buf[0]
	for _, v := range buf {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	counts := make([]int32, int64(hi)-int64(lo)+1)
	for _, v := range buf {
		counts[v-lo]++
	}

	invs := 1 / float64(len(buf))
	var e float64
	if len(counts) < len(buf) {
		for _, c := range counts {
			if c == 0 {
				continue
			}
			e += float64(c) * math.Log2(float64(c)*invs)
		}
	} else {
		for _, v := range buf {
			e += math.Log2(float64(counts[v-lo]) * invs)
		}
	}
	return -e / 8
}

func bitplaneSize(buf []int32) float64 {
	ubuf := make([]int32, len(buf))
	for i, v := range buf {
		ubuf[i] = bitplane.Fold(v)
	}
	enc := shelwien.NewEncoder(nil)
	bitplane.NewCoder(ubuf, bitplane.MaxBPN(ubuf)).Encode(enc)
	enc.Stop()
	return float64(len(enc.Bytes))
}

func abs64(v int32) int64 {
	if v < 0 {
		return -int64(v)
	}
	return int64(v)
}
