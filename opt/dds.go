package opt

import (
	"log"
	"math"
	"math/rand"
	"slices"
)

// DDSConfig configures Dynamically Dimensioned Search.
type DDSConfig struct {
	// SigmaInit is the perturbation deviation relative to the width of each bound.
	SigmaInit float64 `json:"sigma_init"`
	// Sigma doubles after CSuccMax consecutive improving batches and halves
	// after CFailMax consecutive failing ones.
	CSuccMax  int     `json:"c_succ_max"`
	CFailMax  int     `json:"c_fail_max"`
}

// DefaultDDSConfig returns the usual DDS settings.
func DefaultDDSConfig() DDSConfig {
	return DDSConfig{SigmaInit: 0.2, CSuccMax: 3, CFailMax: 50}
}

const (
	ddsSigmaMax = 0.5
	ddsSigmaMin = 0.0005
)

func runDDS(cfg Config, box []Bound, f Func, xstart []float64, rnd *rand.Rand) Result {
	c := cfg.DDS
	best := Result{X: xstart, F: f(xstart), NFunc: 1}
	sigma := c.SigmaInit
	var csucc, cfail int

	for best.NFunc < cfg.NFuncMax {
		k := min(cfg.NumThreads, cfg.NFuncMax-best.NFunc)
		cands := make([][]float64, k)
		for j := range cands {
			cands[j] = ddsCandidate(box, best.X, best.NFunc+j, cfg.NFuncMax, sigma, rnd)
		}
		fs := evaluate(f, cands, cfg.NumThreads)
		best.NFunc += k

		ibest := 0
		for j := range fs {
			if better(fs[j], fs[ibest]) {
				ibest = j
			}
		}
		if better(fs[ibest], best.F) {
			best.X, best.F = cands[ibest], fs[ibest]
			csucc++
			cfail = 0
			if cfg.Verbose {
				log.Printf("dds: nfunc %d cost %.3f sigma %.4f", best.NFunc, best.F, sigma)
			}
		} else {
			cfail++
			csucc = 0
		}

		if c.CSuccMax > 0 && csucc >= c.CSuccMax {
			sigma = min(2*sigma, ddsSigmaMax)
			csucc = 0
		}
		if c.CFailMax > 0 && cfail >= c.CFailMax {
			sigma = max(sigma/2, ddsSigmaMin)
			cfail = 0
		}
	}
	return best
}

// ddsCandidate perturbs each coordinate of x with probability 1-ln(i)/ln(n), and at least
// one coordinate, by a gaussian step of deviation sigma times the bound width.
func ddsCandidate(box []Bound, x []float64, i, n int, sigma float64, rnd *rand.Rand) []float64 {
	p := 1.0
	if n > 1 {
		p = 1 - math.Log(float64(max(i, 1)))/math.Log(float64(n))
	}
	y := slices.Clone(x)
	perturbed := false
	for d, b := range box {
		if rnd.Float64() < p {
			y[d] = mirror(b, x[d]+sigma*(b.Max-b.Min)*rnd.NormFloat64())
			perturbed = true
		}
	}
	if !perturbed && len(box) > 0 {
		d := rnd.Intn(len(box))
		y[d] = mirror(box[d], x[d]+sigma*(box[d].Max-box[d].Min)*rnd.NormFloat64())
	}
	return y
}
