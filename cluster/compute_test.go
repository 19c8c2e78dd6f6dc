package main

import (
	"bytes"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/fumin/sac"
	"github.com/fumin/sac/wav"
)

func writeWave(t *testing.T, fpath string, f wav.Format, src [][]int32) {
	var buf bytes.Buffer
	w, err := wav.NewWriter(&buf, f, nil, len(src[0]))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := w.WriteSamples(src, len(src[0])); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := os.WriteFile(fpath, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("%v", err)
	}
}

func sine(n int, freq float64) []int32 {
	s := make([]int32, n)
	for i := range s {
		s[i] = int32(math.Round(8000 * math.Sin(2*math.Pi*freq*float64(i))))
	}
	return s
}

func TestDistanceMatrix(t *testing.T) {
	dir := t.TempDir()
	f := wav.Format{NumChannels: 1, SampleRate: 1000, BitsPerSample: 16}
	rnd := rand.New(rand.NewSource(1))
	a, b := sine(500, 0.01), make([]int32, 300)
	for i := range b {
		b[i] = int32(rnd.Intn(16000)) - 8000
	}
	writeWave(t, filepath.Join(dir, "a.wav"), f, [][]int32{a})
	writeWave(t, filepath.Join(dir, "b.wav"), f, [][]int32{b})
	writeWave(t, filepath.Join(dir, "c.wav"), f, [][]int32{a})
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("%v", err)
	}

	data, err := listFiles(dir)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(data) != 3 {
		t.Fatalf("%v", data)
	}

	joined, err := concatWaves(data[0], data[1])
	if err != nil {
		t.Fatalf("%+v", err)
	}
	r, err := wav.NewReader(bytes.NewReader(joined))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	got := [][]int32{make([]int32, r.NumSamples)}
	if _, err := r.ReadSamples(got, r.NumSamples); err != nil {
		t.Fatalf("%+v", err)
	}
	if !slices.Equal(got[0], append(slices.Clone(a), b...)) {
		t.Fatalf("concatenation differs")
	}

	c := &compressor{intelligence: "sac", cfg: sac.DefaultConfig(), cache: make(map[string]float64)}
	mat, err := c.distanceMatrix(data)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(mat) != 3 {
		t.Fatalf("%v", mat)
	}
	// a and c are the same tone, b is noise.
	if mat[1] >= mat[0] {
		t.Fatalf("%v", mat)
	}
	if len(c.cache) != 3 {
		t.Fatalf("%v", c.cache)
	}
}
