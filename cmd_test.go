package sac

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"testing"

	"github.com/fumin/sac/wav"
	"github.com/pkg/errors"
)

func wavBytes(t *testing.T, f wav.Format, src [][]int32) []byte {
	var buf bytes.Buffer
	n := len(src[0])
	w, err := wav.NewWriter(&buf, f, nil, n)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := w.WriteSamples(src, n); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("%+v", err)
	}
	return buf.Bytes()
}

// compressFile compresses in into a temporary file, which is returned rewound.
func compressFile(t *testing.T, in []byte, cfg Config) (*os.File, *Stats) {
	f, err := os.CreateTemp("", "sac.TestCompress.Compress")
	if err != nil {
		t.Fatalf("%v", err)
	}
	t.Cleanup(func() {
		f.Close()
		os.Remove(f.Name())
	})
	st, err := Compress(f, bytes.NewReader(in), cfg)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("%v", err)
	}
	return f, st
}

func roundTripFile(t *testing.T, f wav.Format, src [][]int32, cfg Config) (in []byte, st *Stats) {
	in = wavBytes(t, f, src)
	sac, cst := compressFile(t, in, cfg)
	fi, err := sac.Stat()
	if err != nil {
		t.Fatalf("%v", err)
	}
	if fi.Size() != cst.Size {
		t.Fatalf("file %d bytes, stats %d", fi.Size(), cst.Size)
	}

	df, err := os.CreateTemp("", "sac.TestCompress.Decompress")
	if err != nil {
		t.Fatalf("%v", err)
	}
	defer df.Close()
	defer os.Remove(df.Name())
	dst, err := Decompress(df, sac, cfg)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !dst.MD5OK {
		t.Fatalf("md5 mismatch")
	}
	if dst.Size != cst.Size || dst.NumFrames != cst.NumFrames {
		t.Fatalf("%+v != %+v", dst, cst)
	}

	// Check if the decompressed result is the same as the original file
	if _, err := df.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("%v", err)
	}
	decom, err := io.ReadAll(df)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if !bytes.Equal(in, decom) {
		t.Fatalf("decoded file differs: %d vs %d bytes", len(in), len(decom))
	}
	return in, cst
}

func TestCompress(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	stereo := wav.Format{NumChannels: 2, SampleRate: 500, BitsPerSample: 16}
	stereoSrc := stereoTone(rnd, 1300, 16)
	mono8 := wav.Format{NumChannels: 1, SampleRate: 500, BitsPerSample: 8}
	mono8Src := [][]int32{tone(rnd, 1100, 8, 0.03)}

	for _, adapt := range []bool{false, true} {
		for _, optimize := range []bool{false, true} {
			for _, mt := range []int{0, 1, 2} {
				name := fmt.Sprintf("adapt%v_opt%v_mt%d", adapt, optimize, mt)
				t.Run(name, func(t *testing.T) {
					cfg := testConfig()
					cfg.MaxFrameLen = 1
					cfg.AdaptBlock = adapt
					cfg.Optimize = optimize
					cfg.MTMode = mt
					_, st := roundTripFile(t, stereo, stereoSrc, cfg)
					if st.NumFrames != 3 {
						t.Fatalf("%d frames", st.NumFrames)
					}
					roundTripFile(t, mono8, mono8Src, cfg)
				})
			}
		}
	}
}

func TestCompressAdaptiveBlocks(t *testing.T) {
	// Dense noise and a coarsely quantized tone alternating every 600 samples.
	rnd := rand.New(rand.NewSource(2))
	n := 2400
	src := [][]int32{make([]int32, n)}
	sparse := tone(rnd, n, 8, 0.01)
	for i := range src[0] {
		if i/600%2 == 0 {
			src[0][i] = int32(rnd.Intn(20000)) - 10000
		} else {
			src[0][i] = sparse[i] * 64
		}
	}
	f := wav.Format{NumChannels: 1, SampleRate: 100, BitsPerSample: 16}
	cfg := testConfig()
	cfg.AdaptBlock = true
	roundTripFile(t, f, src, cfg)
}

func TestCompressSilence(t *testing.T) {
	f := wav.Format{NumChannels: 1, SampleRate: 44100, BitsPerSample: 16}
	src := [][]int32{make([]int32, 44100)}
	in, st := roundTripFile(t, f, src, DefaultConfig())
	if st.Size >= int64(len(in)) {
		t.Fatalf("%d >= %d", st.Size, len(in))
	}
}

func TestCompressMetadata(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	f := wav.Format{NumChannels: 2, SampleRate: 1000, BitsPerSample: 24}
	src := stereoTone(rnd, 301, 24)
	chunks := wav.CanonicalChunks(f, 301)
	list := wav.Chunk{ID: 0x5453494c, Size: 7, Data: []byte{'I', 'N', 'F', 'O', 'a', 'b', 'c', 0}}
	chunks = wav.Chunks{chunks[0], chunks[1], list, chunks[2]}
	chunks[0].Size += 8 + 8

	var buf bytes.Buffer
	w, err := wav.NewWriter(&buf, f, chunks, 301)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := w.WriteSamples(src, 301); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("%+v", err)
	}
	in := buf.Bytes()

	sac, _ := compressFile(t, in, testConfig())
	var out bytes.Buffer
	if _, err := Decompress(&out, sac, testConfig()); err != nil {
		t.Fatalf("%+v", err)
	}
	if !bytes.Equal(in, out.Bytes()) {
		t.Fatalf("decoded file differs")
	}
}

func TestDecompressMD5Mismatch(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	f := wav.Format{NumChannels: 1, SampleRate: 1000, BitsPerSample: 16}
	in := wavBytes(t, f, [][]int32{tone(rnd, 200, 16, 0.02)})
	sac, _ := compressFile(t, in, testConfig())
	b, err := io.ReadAll(sac)
	if err != nil {
		t.Fatalf("%v", err)
	}
	h, err := ReadHeader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	b[h.MD5Offset()] ^= 1

	var out bytes.Buffer
	st, err := Decompress(&out, bytes.NewReader(b), testConfig())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if st.MD5OK {
		t.Fatalf("corrupt digest accepted")
	}
	if !bytes.Equal(in, out.Bytes()) {
		t.Fatalf("decoded file differs")
	}
}

func TestDecompressErrors(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	f := wav.Format{NumChannels: 1, SampleRate: 1000, BitsPerSample: 16}
	in := wavBytes(t, f, [][]int32{tone(rnd, 200, 16, 0.02)})
	sac, _ := compressFile(t, in, testConfig())
	good, err := io.ReadAll(sac)
	if err != nil {
		t.Fatalf("%v", err)
	}
	badMagic := bytes.Clone(good)
	badMagic[3] = '1'

	tests := []struct {
		name string
		b    []byte
		err  error
	}{
		{name: "empty", b: nil, err: ErrInvalidHeader},
		{name: "magic", b: badMagic, err: ErrInvalidHeader},
		{name: "header", b: good[:10], err: io.ErrUnexpectedEOF},
		{name: "frame", b: good[:len(good)-3], err: io.ErrUnexpectedEOF},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Decompress(io.Discard, bytes.NewReader(test.b), testConfig())
			if errors.Cause(err) != test.err {
				t.Fatalf("%+v", err)
			}
		})
	}
}

func TestList(t *testing.T) {
	rnd := rand.New(rand.NewSource(6))
	f := wav.Format{NumChannels: 2, SampleRate: 500, BitsPerSample: 16}
	in := wavBytes(t, f, stereoTone(rnd, 1300, 16))
	cfg := testConfig()
	cfg.MaxFrameLen = 1

	for _, full := range []bool{false, true} {
		sac, _ := compressFile(t, in, cfg)
		var out strings.Builder
		if err := List(&out, sac, full); err != nil {
			t.Fatalf("%+v", err)
		}
		s := out.String()
		if !strings.Contains(s, "Channels: 2, Rate: 500 Hz, Bits: 16, Samples: 1300") {
			t.Fatalf("%s", s)
		}
		if got := strings.Contains(s, "Frames   3\n"); got != full {
			t.Fatalf("%v: %s", full, s)
		}
		if full && !strings.Contains(s, "Frame 3: 300 samples") {
			t.Fatalf("%s", s)
		}
	}
}
