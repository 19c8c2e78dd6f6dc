package opt

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"slices"
	"sort"

	"github.com/pkg/errors"
)

// A Mutation is a DE mutation scheme.
type Mutation int

const (
	// Best1Bin mutates the best member: best + F(x1-x2).
	Best1Bin Mutation = iota
	// Rand1Bin mutates a random member: x1 + F(x2-x3).
	Rand1Bin
	// CurToBest moves the current member toward the best: x + F(best-x) + F(x1-x2).
	CurToBest
	// CurToPBest moves toward a random member of the top PBest fraction.
	CurToPBest
)

var mutationNames = []string{"best1bin", "rand1bin", "cur1best", "curpbest"}

func (m Mutation) String() string {
	if m < 0 || int(m) >= len(mutationNames) {
		return fmt.Sprintf("Mutation(%d)", int(m))
	}
	return mutationNames[m]
}

// MarshalText implements encoding.TextMarshaler.
func (m Mutation) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mutation) UnmarshalText(b []byte) error {
	for i, n := range mutationNames {
		if n == string(b) {
			*m = Mutation(i)
			return nil
		}
	}
	return errors.Errorf("unknown mutation %q", b)
}

// DEConfig configures Differential Evolution.
type DEConfig struct {
	// NP is the population size.
	NP int `json:"np"`

	// CR and F are the initial means of the crossover rate and the scale factor.
	// C is the rate at which the means follow the successful values.
	CR float64 `json:"cr"`
	F  float64 `json:"f"`
	C  float64 `json:"c"`

	Mutation Mutation `json:"mutation"`
	PBest    float64  `json:"pbest"`

	// SigmaInit is the deviation, relative to the bound width, of the initial population
	// around the starting point.
	SigmaInit float64 `json:"sigma_init"`
}

// DefaultDEConfig returns the usual DE settings.
func DefaultDEConfig() DEConfig {
	return DEConfig{NP: 30, CR: 0.5, F: 0.5, C: 0.1, Mutation: CurToPBest, PBest: 0.1, SigmaInit: 0.15}
}

type agent struct {
	x []float64
	f float64
}

type deRun struct {
	cfg   Config
	box   []Bound
	rnd   *rand.Rand
	pop   []agent
	order []int
}

func runDE(cfg Config, box []Bound, f Func, xstart []float64, rnd *rand.Rand) Result {
	c := cfg.DE
	np := max(min(c.NP, cfg.NFuncMax), 1)
	r := &deRun{cfg: cfg, box: box, rnd: rnd}

	xs := make([][]float64, np)
	xs[0] = xstart
	for i := 1; i < np; i++ {
		xs[i] = make([]float64, len(xstart))
		for d, b := range box {
			xs[i][d] = b.clamp(xstart[d] + c.SigmaInit*(b.Max-b.Min)*rnd.NormFloat64())
		}
	}
	fs := evaluate(f, xs, cfg.NumThreads)
	for i := range xs {
		r.pop = append(r.pop, agent{x: xs[i], f: fs[i]})
	}
	nfunc := np
	mCR, mF := c.CR, c.F

	for nfunc < cfg.NFuncMax {
		r.rank()
		k := min(np, cfg.NFuncMax-nfunc)
		trials := make([][]float64, k)
		crs := make([]float64, k)
		fsc := make([]float64, k)
		for i := range trials {
			crs[i] = min(max(mCR+0.1*rnd.NormFloat64(), 0.01), 1)
			fsc[i] = min(max(mF+0.1*math.Tan(math.Pi*(rnd.Float64()-0.5)), 0.01), 1)
			trials[i] = r.trial(i, crs[i], fsc[i])
		}
		ft := evaluate(f, trials, cfg.NumThreads)
		nfunc += k

		var sumCR, sumF, sumF2 float64
		var nsucc int
		for i := range trials {
			if better(ft[i], r.pop[i].f) || ft[i] == r.pop[i].f {
				r.pop[i] = agent{x: trials[i], f: ft[i]}
				sumCR += crs[i]
				sumF += fsc[i]
				sumF2 += fsc[i] * fsc[i]
				nsucc++
			}
		}
		if nsucc > 0 {
			mCR = (1-c.C)*mCR + c.C*sumCR/float64(nsucc)
			if sumF > 0 {
				mF = (1-c.C)*mF + c.C*sumF2/sumF
			}
		}
		if cfg.Verbose {
			r.rank()
			log.Printf("de: nfunc %d cost %.3f mCR %.3f mF %.3f", nfunc, r.pop[r.order[0]].f, mCR, mF)
		}
	}

	r.rank()
	best := r.pop[r.order[0]]
	return Result{X: best.x, F: best.f, NFunc: nfunc}
}

// rank sorts the population indices by cost, keeping the original order among ties.
func (r *deRun) rank() {
	r.order = r.order[:0]
	for i := range r.pop {
		r.order = append(r.order, i)
	}
	sort.SliceStable(r.order, func(a, b int) bool {
		return better(r.pop[r.order[a]].f, r.pop[r.order[b]].f)
	})
}

// pick returns k distinct population indices other than except.
func (r *deRun) pick(except, k int) []int {
	np := len(r.pop)
	out := make([]int, 0, k)
	for len(out) < k && len(out) < np-1 {
		j := r.rnd.Intn(np)
		if j == except || slices.Contains(out, j) {
			continue
		}
		out = append(out, j)
	}
	for len(out) < k {
		out = append(out, except)
	}
	return out
}

func (r *deRun) trial(i int, cr, f float64) []float64 {
	x := r.pop[i].x
	best := r.pop[r.order[0]].x
	v := make([]float64, len(x))
	switch r.cfg.DE.Mutation {
	case Best1Bin:
		p := r.pick(i, 2)
		x1, x2 := r.pop[p[0]].x, r.pop[p[1]].x
		for d := range v {
			v[d] = best[d] + f*(x1[d]-x2[d])
		}
	case Rand1Bin:
		p := r.pick(i, 3)
		x1, x2, x3 := r.pop[p[0]].x, r.pop[p[1]].x, r.pop[p[2]].x
		for d := range v {
			v[d] = x1[d] + f*(x2[d]-x3[d])
		}
	case CurToBest, CurToPBest:
		target := best
		if r.cfg.DE.Mutation == CurToPBest {
			n := max(int(math.Round(r.cfg.DE.PBest*float64(len(r.pop)))), 1)
			target = r.pop[r.order[r.rnd.Intn(n)]].x
		}
		p := r.pick(i, 2)
		x1, x2 := r.pop[p[0]].x, r.pop[p[1]].x
		for d := range v {
			v[d] = x[d] + f*(target[d]-x[d]) + f*(x1[d]-x2[d])
		}
	default:
		panic(fmt.Sprintf("unknown mutation %v", r.cfg.DE.Mutation))
	}

	jrand := 0
	if len(x) > 0 {
		jrand = r.rnd.Intn(len(x))
	}
	u := make([]float64, len(x))
	for d, b := range r.box {
		if d != jrand && r.rnd.Float64() >= cr {
			u[d] = x[d]
			continue
		}
		// Out of range coordinates land halfway between the parent and the bound.
		switch {
		case v[d] < b.Min:
			u[d] = (b.Min + x[d]) / 2
		case v[d] > b.Max:
			u[d] = (b.Max + x[d]) / 2
		default:
			u[d] = v[d]
		}
	}
	return u
}
