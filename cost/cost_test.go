package cost

import (
	"math"
	"math/rand"
	"testing"
)

func TestCalc(t *testing.T) {
	buf := []int32{1, -1, 3, -3}
	tests := []struct {
		kind Kind
		want float64
	}{
		{kind: L1, want: 2},
		{kind: RMS, want: math.Sqrt(5)},
		// Four distinct symbols of equal frequency: 2 bits each.
		{kind: Entropy, want: 1},
	}
	for _, test := range tests {
		t.Run(test.kind.String(), func(t *testing.T) {
			if got := Calc(test.kind, buf); math.Abs(got-test.want) > 1e-12 {
				t.Fatalf("%f != %f", got, test.want)
			}
		})
	}
}

func TestCalcEmpty(t *testing.T) {
	for _, k := range []Kind{L1, RMS, Golomb, Entropy, Bitplane} {
		if c := Calc(k, nil); c != 0 {
			t.Fatalf("%v: %f", k, c)
		}
	}
}

// Every cost must rank a small residual below a large one.
func TestCalcOrders(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	small := make([]int32, 4096)
	large := make([]int32, len(small))
	for i := range small {
		small[i] = int32(rnd.NormFloat64() * 4)
		large[i] = int32(rnd.NormFloat64() * 400)
	}
	for _, k := range []Kind{L1, RMS, Golomb, Entropy, Bitplane} {
		t.Run(k.String(), func(t *testing.T) {
			cs, cl := Calc(k, small), Calc(k, large)
			if cs >= cl {
				t.Fatalf("small %f >= large %f", cs, cl)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{L1, RMS, Golomb, Entropy, Bitplane} {
		got, err := ParseKind(k.String())
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if got != k {
			t.Fatalf("%v != %v", got, k)
		}
	}
	if _, err := ParseKind("nope"); err == nil {
		t.Fatalf("expected error")
	}
}
