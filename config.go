package sac

import (
	"github.com/fumin/sac/cost"
	"github.com/fumin/sac/opt"
	"github.com/pkg/errors"
)

// OptConfig configures the per frame profile search.
type OptConfig struct {
	// Fraction is the share of the frame, centred, the cost is evaluated on.
	Fraction float64   `json:"fraction"`
	Cost     cost.Kind `json:"cost"`
	// K is the number of samples between OLS solves while searching.
	K int `json:"k"`
	// Reset starts every frame from the built-in profile instead of the previous frame's.
	Reset bool `json:"reset"`

	opt.Config
}

// Config configures Compress.
type Config struct {
	Optimize  bool `json:"optimize"`
	SparsePCM bool `json:"sparse_pcm"`
	ZeroMean  bool `json:"zero_mean"`
	// MaxFrameLen is the frame length in seconds.
	MaxFrameLen int `json:"max_frame_len"`
	// MTMode 0 is serial, 1 codes channels concurrently, 2 also evaluates the search cost
	// of the channels concurrently.
	MTMode     int  `json:"mt_mode"`
	AdaptBlock bool `json:"adapt_block"`
	StereoMS   bool `json:"stereo_ms"`

	Opt OptConfig `json:"opt"`

	Verbose int `json:"-"`
}

// DefaultConfig returns the configuration of the normal level.
func DefaultConfig() Config {
	oc := opt.DefaultConfig(100)
	oc.DDS.SigmaInit = 0.2
	return Config{
		SparsePCM:   true,
		ZeroMean:    true,
		MaxFrameLen: 20,
		MTMode:      2,
		AdaptBlock:  true,
		Opt: OptConfig{
			Fraction: 0.075,
			Cost:     cost.Entropy,
			K:        4,
			Config:   oc,
		},
	}
}

// Levels lists the names accepted by SetLevel.
var Levels = []string{"normal", "high", "veryhigh", "extrahigh", "best", "insane"}

// SetLevel applies a named preset of the search settings.
func (c *Config) SetLevel(name string) error {
	o := &c.Opt
	switch name {
	case "normal":
		c.Optimize = false
		return nil
	case "high":
		o.Fraction, o.NFuncMax = 0.075, 100
		o.DDS.SigmaInit = 0.2
		o.DDS.CFailMax = 30
	case "veryhigh":
		o.Fraction, o.NFuncMax = 0.2, 250
	case "extrahigh":
		o.Fraction, o.NFuncMax = 0.25, 500
	case "best":
		o.Fraction, o.NFuncMax = 0.5, 1000
		o.Cost = cost.Bitplane
	case "insane":
		o.Fraction, o.NFuncMax = 0.5, 1500
		o.DDS.SigmaInit = 0.25
		o.Cost = cost.Bitplane
	default:
		return errors.Errorf("unknown level %q", name)
	}
	c.Optimize = true
	return nil
}

func (c Config) validate() error {
	if c.MaxFrameLen < 1 {
		return errors.Errorf("frame length %d", c.MaxFrameLen)
	}
	if c.MaxFrameLen > 255 {
		return errors.Errorf("frame length %d does not fit the header", c.MaxFrameLen)
	}
	if c.Optimize && (c.Opt.Fraction <= 0 || c.Opt.Fraction > 1) {
		return errors.Errorf("optimize fraction %f", c.Opt.Fraction)
	}
	return nil
}
