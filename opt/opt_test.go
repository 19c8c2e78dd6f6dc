package opt

import (
	"fmt"
	"math"
	"slices"
	"testing"
)

func sphere(x []float64) float64 {
	var s float64
	for i, v := range x {
		d := v - float64(i)*0.1
		s += d * d
	}
	return s
}

func testBox(n int) []Bound {
	box := make([]Bound, n)
	for i := range box {
		box[i] = Bound{Min: -1, Max: 1}
	}
	return box
}

func TestRunNeverWorse(t *testing.T) {
	box := testBox(6)
	xstart := []float64{0.9, -0.9, 0.5, 0.5, -0.2, 1}
	f0 := sphere(xstart)
	for _, method := range []Method{DDS, DE} {
		for _, mut := range []Mutation{Best1Bin, Rand1Bin, CurToBest, CurToPBest} {
			for _, nfunc := range []int{0, 1, 2, 5, 50, 400} {
				name := fmt.Sprintf("%v_%v_%d", method, mut, nfunc)
				t.Run(name, func(t *testing.T) {
					cfg := DefaultConfig(nfunc)
					cfg.Method = method
					cfg.DE.Mutation = mut
					cfg.DE.NP = 10
					res := Run(cfg, box, sphere, xstart)
					if res.F > f0 {
						t.Fatalf("%f > %f", res.F, f0)
					}
					if got := sphere(res.X); got != res.F {
						t.Fatalf("%f != %f", got, res.F)
					}
					for i, v := range res.X {
						if v < box[i].Min || v > box[i].Max {
							t.Fatalf("%d: %f out of bounds", i, v)
						}
					}
					if res.NFunc > max(nfunc, 1) {
						t.Fatalf("%d evaluations over budget %d", res.NFunc, nfunc)
					}
				})
			}
		}
	}
}

func TestRunImproves(t *testing.T) {
	box := testBox(6)
	xstart := []float64{0.9, -0.9, 0.5, 0.5, -0.2, 1}
	f0 := sphere(xstart)
	for _, method := range []Method{DDS, DE} {
		t.Run(method.String(), func(t *testing.T) {
			cfg := DefaultConfig(1000)
			cfg.Method = method
			cfg.DE.NP = 20
			res := Run(cfg, box, sphere, xstart)
			if res.F > f0/10 {
				t.Fatalf("%f not much below %f", res.F, f0)
			}
		})
	}
}

func TestRunRepeatable(t *testing.T) {
	box := testBox(5)
	xstart := []float64{0.5, 0.5, 0.5, 0.5, 0.5}
	for _, method := range []Method{DDS, DE} {
		t.Run(method.String(), func(t *testing.T) {
			var results []Result
			for range 3 {
				cfg := DefaultConfig(200)
				cfg.Method = method
				cfg.NumThreads = 4
				cfg.DE.NP = 8
				results = append(results, Run(cfg, box, sphere, xstart))
			}
			for _, r := range results[1:] {
				if r.F != results[0].F || !slices.Equal(r.X, results[0].X) {
					t.Fatalf("%v != %v", r, results[0])
				}
			}
		})
	}
}

func TestMirror(t *testing.T) {
	b := Bound{Min: 0, Max: 1}
	tests := []struct {
		v, want float64
	}{
		{v: 0.5, want: 0.5},
		{v: -0.25, want: 0.25},
		{v: 1.25, want: 0.75},
		{v: 5, want: 0},
	}
	for _, test := range tests {
		if got := mirror(b, test.v); math.Abs(got-test.want) > 1e-12 {
			t.Fatalf("%f: %f != %f", test.v, got, test.want)
		}
	}
}

func TestParseMethod(t *testing.T) {
	for _, m := range []Method{DDS, DE} {
		got, err := ParseMethod(m.String())
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if got != m {
			t.Fatalf("%v != %v", got, m)
		}
	}
	if _, err := ParseMethod("cma"); err == nil {
		t.Fatalf("expected error")
	}
}
