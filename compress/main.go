package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/fumin/sac"
	"github.com/fumin/sac/cost"
	"github.com/fumin/sac/opt"
	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
)

var (
	level      = flag.String("level", "normal", "preset: "+strings.Join(sac.Levels, ", "))
	optimize   = flag.Bool("optimize", false, "search the predictor profile of every frame")
	optCost    = flag.String("opt-cost", "entropy", "search cost: l1, rms, golomb, entropy or bitplane")
	optMethod  = flag.String("opt-method", "dds", "search method: dds or de")
	optNFunc   = flag.Int("opt-nfunc", 100, "cost evaluations per frame")
	optFrac    = flag.Float64("opt-fraction", 0.075, "share of the frame the cost is evaluated on")
	optThreads = flag.Int("opt-threads", 1, "concurrent cost evaluations")
	optReset   = flag.Bool("opt-reset", false, "start every search from the built-in profile")
	sparsePCM  = flag.Bool("sparse-pcm", true, "try remapping sparse sample alphabets")
	zeroMean   = flag.Bool("zero-mean", true, "remove the mean of every frame")
	adaptBlock = flag.Bool("adapt-block", true, "split frames into sparse and dense runs")
	frameLen   = flag.Int("framelen", 20, "frame length in seconds")
	mtMode     = flag.Int("mt-mode", 2, "0 serial, 1 concurrent channels, 2 also concurrent search cost")
	stereoMS   = flag.Bool("stereo-ms", false, "try mid/side coding of stereo frames")
	confFile   = flag.String("c", "", "JSON file overriding the configuration")
	verbose    = flag.Int("verbose", 0, "verbosity")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] in.wav out.sac\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}
	if err := run(flag.Arg(0), flag.Arg(1)); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(inName, outName string) error {
	cfg, err := config()
	if err != nil {
		return errors.Wrap(err, "")
	}
	log.Printf("%s/%s avx2 %v asimd %v, %d cpus", runtime.GOOS, runtime.GOARCH, cpu.X86.HasAVX2, cpu.ARM64.HasASIMD, runtime.NumCPU())
	if cfg.Optimize {
		log.Printf("optimize %v %d cost %v fraction %g", cfg.Opt.Method, cfg.Opt.NFuncMax, cfg.Opt.Cost, cfg.Opt.Fraction)
	}

	in, err := os.Open(inName)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer in.Close()
	out, err := os.Create(outName)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer out.Close()

	start := time.Now()
	st, err := sac.Compress(out, in, cfg)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, "")
	}
	fi, err := in.Stat()
	if err != nil {
		return errors.Wrap(err, "")
	}

	h := st.Header
	elapsed := time.Since(start)
	seconds := float64(h.NumSamples) / float64(h.SampleRate)
	log.Printf("%d channels %d Hz %d bits, %d samples in %d frames", h.NumChannels, h.SampleRate, h.BitsPerSample, h.NumSamples, st.NumFrames)
	log.Printf("%d -> %d bytes = %.3f%%, %.1f kbps", fi.Size(), st.Size, 100*float64(st.Size)/float64(fi.Size()), float64(st.Size)*8/seconds/1000)
	log.Printf("%v, speed %.2fx, md5 %x", elapsed, seconds/elapsed.Seconds(), h.MD5)
	return nil
}

// config layers the level, the explicitly set flags and the JSON file over the defaults.
func config() (sac.Config, error) {
	cfg := sac.DefaultConfig()
	if err := cfg.SetLevel(*level); err != nil {
		return cfg, errors.Wrap(err, "")
	}

	var err error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "optimize":
			cfg.Optimize = *optimize
		case "opt-cost":
			cfg.Opt.Cost, err = cost.ParseKind(*optCost)
		case "opt-method":
			cfg.Opt.Method, err = opt.ParseMethod(*optMethod)
		case "opt-nfunc":
			cfg.Opt.NFuncMax = *optNFunc
		case "opt-fraction":
			cfg.Opt.Fraction = *optFrac
		case "opt-threads":
			cfg.Opt.NumThreads = *optThreads
		case "opt-reset":
			cfg.Opt.Reset = *optReset
		case "sparse-pcm":
			cfg.SparsePCM = *sparsePCM
		case "zero-mean":
			cfg.ZeroMean = *zeroMean
		case "adapt-block":
			cfg.AdaptBlock = *adaptBlock
		case "framelen":
			cfg.MaxFrameLen = *frameLen
		case "mt-mode":
			cfg.MTMode = *mtMode
		case "stereo-ms":
			cfg.StereoMS = *stereoMS
		}
	})
	if err != nil {
		return cfg, errors.Wrap(err, "")
	}

	if *confFile != "" {
		b, err := os.ReadFile(*confFile)
		if err != nil {
			return cfg, errors.Wrap(err, "")
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, errors.Wrap(err, *confFile)
		}
	}
	cfg.Verbose = *verbose
	return cfg, nil
}
