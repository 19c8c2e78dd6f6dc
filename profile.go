package sac

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/fumin/sac/pred"
	"github.com/pkg/errors"
)

// NumCoefs is the number of coefficients of a Profile.
const NumCoefs = 54

// A Coef is a predictor hyperparameter and the interval the optimizer may move it in.
type Coef struct {
	Min, Max float32
	Val      float32
}

// A Profile holds every hyperparameter of the predictor of a frame.
type Profile struct {
	Coefs [NumCoefs]Coef
}

// baseProfile lists min, max and default of every coefficient.
var baseProfile = [NumCoefs][3]float32{
	0:  {0.99, 0.9999, 0.998},  // lambda0
	1:  {0.001, 10, 0.001},     // nu0
	2:  {0.0001, 0.02, 0.002},  // mu0
	3:  {0.0001, 0.02, 0.001},  //
	4:  {0.0001, 0.02, 0.0008}, //
	5:  {0.0001, 0.02, 0.0005}, //
	6:  {0.9, 1, 0.998},        // mudecay0
	7:  {0, 2, 0.8},            // powdecay0
	8:  {0, 2, 0.8},            //
	9:  {0, 32, 8},             // nM0
	10: {0.0001, 0.05, 0.003},  // mu_mix0
	11: {0.8, 0.9999, 0.95},    // mu_mix_beta0
	12: {0.99, 0.9999, 0.998},  // lambda1
	13: {0.001, 10, 0.001},     // nu1
	14: {0.0001, 0.02, 0.002},  // mu1
	15: {0.0001, 0.02, 0.001},  //
	16: {0.0001, 0.02, 0.0008}, //
	17: {0.0001, 0.02, 0.0005}, //
	18: {0.9, 1, 0.998},        // mudecay1
	19: {0, 2, 0.8},            // powdecay1
	20: {0, 2, 0.8},            //
	21: {0, 2, 0.8},            //
	22: {0.0001, 0.05, 0.003},  // mu_mix1
	23: {0.8, 0.9999, 0.95},    // mu_mix_beta1
	24: {4, 32, 16},            // nA
	25: {4, 32, 16},            // nB
	26: {0, 16, 8},             // nS0
	27: {0, 8, 2},              // lookahead
	28: {16, 512, 256},         // vn0
	29: {16, 256, 32},          //
	30: {4, 32, 16},            //
	31: {16, 512, 256},         // vn1
	32: {16, 256, 32},          //
	33: {4, 32, 16},            //
	34: {0.5, 0.99, 0.6},       // beta_sum
	35: {0.5, 1.5, 0.75},       // beta_pow
	36: {0.5, 10, 2},           // beta_add
	37: {2, 32, 8},             // vn0[3]
	38: {2, 32, 8},             // vn1[3]
	39: {0.9, 1, 1},            // mudecay0[1]
	40: {0.9, 1, 1},            // mudecay1[1]
	41: {4, 32, 16},            // lm_n
	42: {0.99, 0.99999, 0.998}, // lm_alpha
	43: {0.0005, 0.01, 0.003},  // bias_mu0
	44: {0.0005, 0.01, 0.003},  // bias_mu1
	45: {3, 8, 5},              // bias_scale
	46: {0.9, 1, 1},            // mudecay0[2]
	47: {0.9, 1, 1},            // mudecay0[3]
	48: {0.9, 1, 1},            // mudecay1[2]
	49: {0.9, 1, 1},            // mudecay1[3]
	50: {0, 2, 0.8},            // powdecay0[2]
	51: {0, 2, 0.8},            // powdecay0[3]
	52: {0, 2, 0.8},            // powdecay1[3]
	53: {0, 1, 0},              // reference channel
}

// coefNames is used by Profile.String.
var coefNames = [NumCoefs]string{
	"lambda0", "nu0", "mu0[0]", "mu0[1]", "mu0[2]", "mu0[3]", "mudecay0[0]", "powdecay0[0]", "powdecay0[1]", "nM0",
	"mu_mix0", "mu_mix_beta0", "lambda1", "nu1", "mu1[0]", "mu1[1]", "mu1[2]", "mu1[3]", "mudecay1[0]", "powdecay1[0]",
	"powdecay1[1]", "powdecay1[2]", "mu_mix1", "mu_mix_beta1", "nA", "nB", "nS0", "lookahead", "vn0[0]", "vn0[1]",
	"vn0[2]", "vn1[0]", "vn1[1]", "vn1[2]", "beta_sum", "beta_pow", "beta_add", "vn0[3]", "vn1[3]", "mudecay0[1]",
	"mudecay1[1]", "lm_n", "lm_alpha", "bias_mu0", "bias_mu1", "bias_scale", "mudecay0[2]", "mudecay0[3]", "mudecay1[2]", "mudecay1[3]",
	"powdecay0[2]", "powdecay0[3]", "powdecay1[3]", "ref",
}

// BaseProfile returns the built-in profile.
func BaseProfile() Profile {
	var p Profile
	for i, c := range baseProfile {
		p.Coefs[i] = Coef{Min: c[0], Max: c[1], Val: c[2]}
	}
	return p
}

// Get returns coefficient i limited to its interval.
func (p *Profile) Get(i int) float64 {
	c := p.Coefs[i]
	v := c.Val
	if math.IsNaN(float64(v)) {
		v = c.Min
	}
	return float64(min(max(v, c.Min), c.Max))
}

func (p *Profile) getInt(i int) int {
	return int(math.Round(p.Get(i)))
}

// Size returns the serialized size in bytes.
func (p *Profile) Size() int { return 4 * NumCoefs }

// AppendBinary appends the raw float32 bits of every coefficient value.
func (p *Profile) AppendBinary(b []byte) []byte {
	for _, c := range p.Coefs {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(c.Val))
	}
	return b
}

// ReadFrom replaces the coefficient values by those read from r.
func (p *Profile) ReadFrom(r io.Reader) (int64, error) {
	b := make([]byte, p.Size())
	n, err := io.ReadFull(r, b)
	if err != nil {
		return int64(n), errors.Wrap(err, "profile")
	}
	for i := range p.Coefs {
		p.Coefs[i].Val = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return int64(n), nil
}

// Params derives the predictor configuration. k is the number of samples between
// OLS solves. It also returns the channel slot 0 predicts.
func (p *Profile) Params(k int) (pred.Params, int) {
	stages := func(vn, mu, mudecay, powdecay [4]int) []pred.CascadeStage {
		s := make([]pred.CascadeStage, 4)
		for i := range s {
			n := p.getInt(vn[i])
			s[i] = pred.CascadeStage{
				N:        n,
				Mu:       p.Get(mu[i]) / float64(n),
				MuDecay:  p.Get(mudecay[i]),
				PowDecay: p.Get(powdecay[i]),
			}
		}
		return s
	}

	var params pred.Params
	params.Slots[0] = pred.SlotParams{
		Lambda:    p.Get(0),
		Nu:        p.Get(1),
		Stages:    stages([4]int{28, 29, 30, 37}, [4]int{2, 3, 4, 5}, [4]int{6, 39, 46, 47}, [4]int{7, 8, 50, 51}),
		MuMix:     p.Get(10),
		MuMixBeta: p.Get(11),
		BiasMu:    p.Get(43),
	}
	params.Slots[1] = pred.SlotParams{
		Lambda:    p.Get(12),
		Nu:        p.Get(13),
		Stages:    stages([4]int{31, 32, 33, 38}, [4]int{14, 15, 16, 17}, [4]int{18, 40, 48, 49}, [4]int{19, 20, 21, 52}),
		MuMix:     p.Get(22),
		MuMixBeta: p.Get(23),
		BiasMu:    p.Get(44),
	}
	params.K = max(k, 1)
	params.NA = p.getInt(24)
	params.NB = p.getInt(25)
	params.NM0 = p.getInt(9)
	params.NS0 = p.getInt(26)
	params.Lookahead = p.getInt(27)
	params.BetaSum = p.Get(34)
	params.BetaPow = p.Get(35)
	params.BetaAdd = p.Get(36)
	params.LMN = p.getInt(41)
	params.LMAlpha = p.Get(42)
	params.BiasScale = p.getInt(45)
	return params, p.getInt(53)
}

func (p *Profile) String() string {
	s := ""
	for i, c := range p.Coefs {
		s += fmt.Sprintf("%-13s %g", coefNames[i], c.Val)
		if i%4 == 3 || i == NumCoefs-1 {
			s += "\n"
		} else {
			s += "  "
		}
	}
	return s
}
