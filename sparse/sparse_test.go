package sparse

import (
	"math/rand"
	"testing"

	"github.com/fumin/sac/ac/shelwien"
)

// sparseSignal returns samples that only take multiples of step.
func sparseSignal(rnd *rand.Rand, n int, step, amp int32) []int32 {
	s := make([]int32, n)
	for i := range s {
		s[i] = (rnd.Int31n(2*amp+1) - amp) * step
	}
	return s
}

func TestRemapInvertible(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	samples := sparseSignal(rnd, 2000, 12, 300)
	samples = append(samples, MapScale, -MapScale, 0, 1)

	r := NewRemap()
	r.Analyse(samples)
	if r.Overflow {
		t.Fatalf("unexpected overflow")
	}
	for i, v := range samples {
		// Any prediction in range works, the true value is always used.
		pred := int32(0)
		if i > 0 {
			pred = samples[i-1] + rnd.Int31n(7) - 3
		}
		err := v - pred
		merr := r.Map(pred, err)
		if abs(merr) > abs(err) {
			t.Fatalf("|Map(%d, %d)| = %d", pred, err, merr)
		}
		if got := r.Unmap(pred, merr); got != err {
			t.Fatalf("Unmap(%d, Map(%d, %d)=%d) = %d", pred, pred, err, merr, got)
		}
	}
}

func TestRemapShrinksErrors(t *testing.T) {
	r := NewRemap()
	r.Analyse([]int32{-64, -32, 0, 32, 64, 96})
	tests := []struct {
		pred, err, want int32
	}{
		{pred: 0, err: 64, want: 2},
		{pred: 0, err: -64, want: -2},
		{pred: 10, err: 86, want: 3},
		{pred: 32, err: 0, want: 0},
		// Zero is always used.
		{pred: 5, err: -5, want: -1},
	}
	for _, test := range tests {
		if got := r.Map(test.pred, test.err); got != test.want {
			t.Errorf("Map(%d, %d) = %d, want %d", test.pred, test.err, got, test.want)
		}
	}
}

func TestRemapOverflow(t *testing.T) {
	r := NewRemap()
	r.Analyse([]int32{1, MapScale + 1})
	if !r.Overflow {
		t.Fatalf("overflow not detected")
	}
	r.Reset()
	if r.Overflow || r.UsedH[1] {
		t.Fatalf("Reset did not clear the map")
	}
	// A rank beyond the map range terminates.
	if got := r.Unmap(0, 5); got != MapScale+1 {
		t.Errorf("%d", got)
	}
}

func TestMapCoderRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	r := NewRemap()
	r.Analyse(sparseSignal(rnd, 5000, 3, 1000))

	enc := shelwien.NewEncoder(nil)
	NewMapCoder(r).Encode(enc)
	enc.Stop()
	t.Logf("map coded in %d bytes", len(enc.Bytes))
	if len(enc.Bytes) > 2*(MapScale+1)/8 {
		t.Errorf("map not compressed: %d bytes", len(enc.Bytes))
	}

	d := NewRemap()
	dec := shelwien.NewDecoder(enc.Bytes)
	NewMapCoder(d).Decode(dec)
	if err := dec.Err(); err != nil {
		t.Fatalf("%+v", err)
	}
	for i := range r.UsedL {
		if r.UsedL[i] != d.UsedL[i] || r.UsedH[i] != d.UsedH[i] {
			t.Fatalf("%d: %v %v != %v %v", i, r.UsedL[i], r.UsedH[i], d.UsedL[i], d.UsedH[i])
		}
	}
}

func TestAnalyser(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	var a Analyser
	a.Analyse(sparseSignal(rnd, 10000, 16, 100))
	if a.FractionCost < 10 {
		t.Errorf("sparse cost %f", a.FractionCost)
	}
	if a.FractionUsed > 10 {
		t.Errorf("sparse used %f", a.FractionUsed)
	}

	dense := make([]int32, 10000)
	for i := range dense {
		dense[i] = rnd.Int31n(201) - 100
	}
	a.Analyse(dense)
	if a.FractionCost > 1.01 {
		t.Errorf("dense cost %f", a.FractionCost)
	}
}

func TestSegments(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	// A ramp uses every value of its range.
	dense := func(n int) []int32 {
		s := make([]int32, n)
		for i := range s {
			s[i] = int32(i - n/2)
		}
		return s
	}
	// dense, sparse, sparse, dense, and a short sparse tail
	var ch []int32
	ch = append(ch, dense(100)...)
	ch = append(ch, sparseSignal(rnd, 200, 8, 100)...)
	ch = append(ch, dense(100)...)
	ch = append(ch, sparseSignal(rnd, 30, 8, 100)...)

	segs := Segments([][]int32{ch}, len(ch), 100, 100)
	want := []Segment{
		{Start: 0, Length: 100, Sparse: false},
		{Start: 100, Length: 200, Sparse: true},
		{Start: 300, Length: 130, Sparse: false},
	}
	if len(segs) != len(want) {
		t.Fatalf("%+v", segs)
	}
	for i := range want {
		if segs[i] != want[i] {
			t.Errorf("%d: %+v != %+v", i, segs[i], want[i])
		}
	}
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
