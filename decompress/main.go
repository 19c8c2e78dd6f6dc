package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fumin/sac"
	"github.com/pkg/errors"
)

var (
	list     = flag.Bool("list", false, "print the file header")
	listFull = flag.Bool("listfull", false, "print the file header and every frame")
	mtMode   = flag.Int("mt-mode", 1, "0 serial, 1 decode channels concurrently")
	verbose  = flag.Int("verbose", 0, "verbosity")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] in.sac out.wav\n       %s -list|-listfull in.sac\n", os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	var err error
	switch {
	case (*list || *listFull) && flag.NArg() == 1:
		err = runList(flag.Arg(0), *listFull)
	case flag.NArg() == 2:
		err = run(flag.Arg(0), flag.Arg(1))
	default:
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func runList(name string, full bool) error {
	f, err := os.Open(name)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer f.Close()
	if err := sac.List(os.Stdout, f, full); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func run(inName, outName string) error {
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

	cfg := sac.DefaultConfig()
	cfg.MTMode = *mtMode
	cfg.Verbose = *verbose
	start := time.Now()
	st, err := sac.Decompress(out, in, cfg)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, "")
	}

	h := st.Header
	elapsed := time.Since(start)
	seconds := float64(h.NumSamples) / float64(h.SampleRate)
	md5 := "ok"
	if !st.MD5OK {
		md5 = "error"
	}
	log.Printf("%d channels %d Hz %d bits, %d samples in %d frames", h.NumChannels, h.SampleRate, h.BitsPerSample, h.NumSamples, st.NumFrames)
	log.Printf("%v, speed %.2fx, md5 %x %s", elapsed, seconds/elapsed.Seconds(), h.MD5, md5)
	return nil
}
