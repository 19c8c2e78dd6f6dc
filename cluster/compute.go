// Command cluster prints the normalized compression distance between every pair of WAVE files in a directory.
package main

import (
	"bytes"
	"flag"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fumin/sac"
	"github.com/fumin/sac/wav"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var (
	intelligenceType = flag.String("i", "sac", "intelligence type: sac or targz")
	dataDir          = flag.String("d", "samples", "data directory")
	level            = flag.String("level", "normal", "sac preset")
	threads          = flag.Int("threads", 4, "pairs compressed concurrently")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	if err := run(*intelligenceType, *dataDir); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(intelligence, dir string) error {
	data, err := listFiles(dir)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if len(data) < 2 {
		return errors.Errorf("%d wave files in %s", len(data), dir)
	}
	cfg := sac.DefaultConfig()
	if err := cfg.SetLevel(*level); err != nil {
		return errors.Wrap(err, "")
	}
	c := &compressor{intelligence: intelligence, cfg: cfg, cache: make(map[string]float64)}
	distMat, err := c.distanceMatrix(data)
	if err != nil {
		return errors.Wrap(err, "")
	}

	if err := display(data, distMat); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func display(data []string, distMat []float64) error {
	// Print data as a comma separated array.
	buf := bytes.NewBuffer(nil)
	for i, fpath := range data {
		name := filepath.Base(fpath)
		base := strings.TrimSuffix(name, filepath.Ext(name))
		if _, err := buf.WriteString(strconv.Quote(base)); err != nil {
			return errors.Wrap(err, "")
		}
		if i == len(data)-1 {
			break
		}
		if err := buf.WriteByte(','); err != nil {
			return errors.Wrap(err, "")
		}
	}
	log.Printf("[%s]", buf.Bytes())

	// Print distance matrix as a comma separated array.
	buf.Reset()
	for i, f := range distMat {
		if _, err := buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64)); err != nil {
			return errors.Wrap(err, "")
		}
		if i == len(distMat)-1 {
			break
		}
		if err := buf.WriteByte(','); err != nil {
			return errors.Wrap(err, "")
		}
	}
	log.Printf("[%s]", buf.Bytes())

	return nil
}

// A compressor measures the complexity of files, caching the size of single files.
type compressor struct {
	intelligence string
	cfg          sac.Config

	mu    sync.Mutex
	cache map[string]float64
}

func (c *compressor) distance(x, y string) (float64, error) {
	xy, err := concatWaves(x, y)
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	kxy, err := c.complexity(xy)
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	kx, err := c.cachedComplexity(x)
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	ky, err := c.cachedComplexity(y)
	if err != nil {
		return -1, errors.Wrap(err, "")
	}

	minxy := min(kx, ky)
	maxxy := max(kx, ky)
	dist := (kxy - minxy) / maxxy
	return dist, nil
}

func (c *compressor) cachedComplexity(fpath string) (float64, error) {
	c.mu.Lock()
	size, ok := c.cache[fpath]
	c.mu.Unlock()
	if ok {
		return size, nil
	}

	b, err := os.ReadFile(fpath)
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	size, err = c.complexity(b)
	if err != nil {
		return -1, errors.Wrapf(err, "%s", fpath)
	}

	c.mu.Lock()
	c.cache[fpath] = size
	c.mu.Unlock()
	return size, nil
}

func (c *compressor) complexity(wave []byte) (float64, error) {
	switch c.intelligence {
	case "sac":
		return complexitySAC(wave, c.cfg)
	default:
		return complexityTarGz(wave)
	}
}

func complexitySAC(wave []byte, cfg sac.Config) (float64, error) {
	f, err := os.CreateTemp("", "cluster.sac")
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	defer os.Remove(f.Name())
	defer f.Close()
	st, err := sac.Compress(f, bytes.NewReader(wave), cfg)
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	return float64(st.Size), nil
}

func complexityTarGz(wave []byte) (float64, error) {
	dir, err := os.MkdirTemp("", "cluster")
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	defer os.RemoveAll(dir)
	src := filepath.Join(dir, "src.wav")
	if err := os.WriteFile(src, wave, 0o644); err != nil {
		return -1, errors.Wrap(err, "")
	}
	dst := filepath.Join(dir, "dst")
	if err := exec.Command("tar", "zcf", dst, "-C", dir, "src.wav").Run(); err != nil {
		return -1, errors.Wrap(err, "")
	}
	info, err := os.Stat(dst)
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	return float64(info.Size()), nil
}

// concatWaves returns a wave file holding the samples of every file in turn.
// The files must share their format.
func concatWaves(fs ...string) ([]byte, error) {
	var format wav.Format
	var samples [][]int32
	for i, fpath := range fs {
		err := func(fpath string) error {
			f, err := os.Open(fpath)
			if err != nil {
				return errors.Wrap(err, "")
			}
			defer f.Close()
			r, err := wav.NewReader(f)
			if err != nil {
				return errors.Wrap(err, "")
			}
			if i == 0 {
				format = r.Format
				samples = make([][]int32, format.NumChannels)
			} else if r.Format != format {
				return errors.Errorf("format %+v differs from %+v", r.Format, format)
			}
			buf := make([][]int32, format.NumChannels)
			for ch := range buf {
				buf[ch] = make([]int32, r.NumSamples)
			}
			n, err := r.ReadSamples(buf, r.NumSamples)
			if err != nil {
				return errors.Wrap(err, "")
			}
			for ch := range buf {
				samples[ch] = append(samples[ch], buf[ch][:n]...)
			}
			return nil
		}(fpath)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", fpath)
		}
	}

	var out bytes.Buffer
	n := len(samples[0])
	w, err := wav.NewWriter(&out, format, nil, n)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := w.WriteSamples(samples, n); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return out.Bytes(), nil
}

func (c *compressor) distanceMatrix(data []string) ([]float64, error) {
	n := len(data)
	mat := make([]float64, n*(n-1)/2)
	var g errgroup.Group
	g.SetLimit(max(*threads, 1))
	k := 0
	for i, dx := range data[:n-1] {
		for _, dy := range data[i+1:] {
			idx := k
			k++
			g.Go(func() error {
				dist, err := c.distance(dx, dy)
				if err != nil {
					return errors.Wrap(err, "")
				}
				mat[idx] = dist
				log.Printf("%q-%q: %f", dx, dy, dist)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mat, nil
}

func listFiles(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	data := make([]string, 0, len(files))
	for _, f := range files {
		if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), ".wav") {
			continue
		}
		data = append(data, filepath.Join(dir, f.Name()))
	}
	return data, nil
}
