// Package opt minimizes box constrained functions without derivatives.
//
// Two methods are available, Dynamically Dimensioned Search (Tolson and Shoemaker 2007)
// and Differential Evolution with JADE parameter adaptation (Zhang and Sanderson 2009).
// Both draw from a seeded source in a fixed order and evaluate candidates in batches,
// so the result does not depend on how many batch members run concurrently.
package opt

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// A Method selects an optimizer.
type Method int

const (
	// DDS is Dynamically Dimensioned Search.
	DDS Method = iota
	// DE is Differential Evolution.
	DE
)

var methodNames = []string{"dds", "de"}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// ParseMethod returns the Method named s.
func ParseMethod(s string) (Method, error) {
	for i, n := range methodNames {
		if n == s {
			return Method(i), nil
		}
	}
	return 0, errors.Errorf("unknown optimization method %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(b []byte) error {
	v, err := ParseMethod(string(b))
	if err != nil {
		return errors.Wrap(err, "")
	}
	*m = v
	return nil
}

// A Bound is the closed interval a coordinate is confined to.
type Bound struct {
	Min, Max float64
}

func (b Bound) clamp(v float64) float64 {
	return min(max(v, b.Min), b.Max)
}

// A Func is the objective. It is called concurrently when Config.NumThreads > 1.
type Func func(x []float64) float64

// Config configures Run.
type Config struct {
	Method Method `json:"method"`

	// NFuncMax is the evaluation budget, including the starting point.
	NFuncMax   int   `json:"nfunc_max"`
	// NumThreads is the number of candidates evaluated concurrently.
	NumThreads int   `json:"num_threads"`
	Seed       int64 `json:"seed"`

	DDS DDSConfig `json:"dds"`
	DE  DEConfig  `json:"de"`

	Verbose bool `json:"-"`
}

// DefaultConfig returns a DDS configuration with a budget of n evaluations.
func DefaultConfig(n int) Config {
	return Config{
		Method:     DDS,
		NFuncMax:   n,
		NumThreads: 1,
		Seed:       1,
		DDS:        DefaultDDSConfig(),
		DE:         DefaultDEConfig(),
	}
}

// A Result is the best point found.
type Result struct {
	X     []float64
	F     float64
	NFunc int
}

// Run minimizes f over box starting from xstart. The returned point is never worse
// than xstart.
func Run(cfg Config, box []Bound, f Func, xstart []float64) Result {
	rnd := rand.New(rand.NewSource(cfg.Seed))
	x := make([]float64, len(xstart))
	for i, v := range xstart {
		x[i] = box[i].clamp(v)
	}
	if cfg.NFuncMax < 1 {
		cfg.NFuncMax = 1
	}
	cfg.NumThreads = max(cfg.NumThreads, 1)

	switch cfg.Method {
	case DDS:
		return runDDS(cfg, box, f, x, rnd)
	case DE:
		return runDE(cfg, box, f, x, rnd)
	}
	panic(fmt.Sprintf("unknown method %v", cfg.Method))
}

// evaluate returns f at every point of xs, running up to threads calls at a time.
func evaluate(f Func, xs [][]float64, threads int) []float64 {
	fs := make([]float64, len(xs))
	var g errgroup.Group
	g.SetLimit(threads)
	for i, x := range xs {
		g.Go(func() error {
			fs[i] = f(x)
			return nil
		})
	}
	g.Wait()
	return fs
}

// mirror folds v back into b by mirroring at the violated bound.
func mirror(b Bound, v float64) float64 {
	if v < b.Min {
		v = b.Min + (b.Min - v)
	} else if v > b.Max {
		v = b.Max - (v - b.Max)
	}
	return b.clamp(v)
}

// better orders function values so that NaN is worse than anything.
func better(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	return math.IsNaN(b) || a < b
}
