// Package sac implements a lossless audio codec for PCM WAVE files.
//
// Every channel is predicted sample by sample by a cascade of adaptive filters: an OLS stage,
// a cascade of NLMS stages mixed with an RLS stage, and a bias estimator. The residuals are coded
// bit plane by bit plane with a context mixing binary range coder. The predictor hyperparameters
// travel in the header of every frame and may be searched per frame on the encoder side.
//
// Below is an example of compressing and restoring a file:
//
//	go run ./compress -level high in.wav out.sac
//	go run ./decompress out.sac restored.wav
//	cmp in.wav restored.wav
package sac

import (
	"fmt"
	"io"
	"log"

	"github.com/fumin/sac/sparse"
	"github.com/fumin/sac/wav"
	"github.com/pkg/errors"
)

// Stats summarizes a Compress or Decompress run.
type Stats struct {
	Header    *Header
	NumFrames int
	// Size is the size of the compressed stream.
	Size int64
	// MD5OK reports whether the decoded samples match the stored digest.
	MD5OK bool
}

// segmentSeconds is the block length of the adaptive frame split.
const segmentSeconds = 3

// Compress encodes the WAVE file r into w. w must be seekable so that the digest of the
// samples can be stored in the header once they have all been read.
func Compress(w io.WriteSeeker, r io.ReadSeeker, cfg Config) (*Stats, error) {
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	wr, err := wav.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	h := &Header{Format: wr.Format, NumSamples: wr.NumSamples, FrameLen: cfg.MaxFrameLen, Chunks: wr.Chunks}
	start, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if _, err := h.WriteTo(w); err != nil {
		return nil, errors.Wrap(err, "")
	}

	st := &Stats{Header: h}
	frameSize := h.FrameSize()
	fc := NewFrameCoder(h.NumChannels, frameSize, cfg)
	buf := make([][]int32, h.NumChannels)
	for ch := range buf {
		buf[ch] = make([]int32, frameSize)
	}
	for done := 0; done < h.NumSamples; {
		n := min(frameSize, h.NumSamples-done)
		k, err := wr.ReadSamples(buf, n)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		if k != n {
			return nil, errors.Wrapf(io.ErrUnexpectedEOF, "read %d of %d samples", k, n)
		}

		segs := []sparse.Segment{{Start: 0, Length: n}}
		if cfg.AdaptBlock {
			blockLen := segmentSeconds * h.SampleRate
			segs = sparse.Segments(buf, n, blockLen, blockLen)
		}
		for _, seg := range segs {
			dst := fc.Samples()
			for ch := range buf {
				copy(dst[ch], buf[ch][seg.Start:seg.Start+seg.Length])
			}
			fc.SetNumSamples(seg.Length)
			fc.Predict()
			if err := fc.Encode(); err != nil {
				return nil, errors.Wrap(err, "")
			}
			if err := fc.WriteEncoded(w); err != nil {
				return nil, errors.Wrap(err, "")
			}
			st.NumFrames++
			if cfg.Verbose > 0 {
				logFrame(fc, st.NumFrames, done+seg.Start, seg.Sparse)
			}
		}
		done += n
	}

	end, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	h.MD5 = wr.MD5()
	if _, err := w.Seek(start+h.MD5Offset(), io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if _, err := w.Write(h.MD5[:]); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if _, err := w.Seek(end, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "")
	}
	st.Size = end - start
	st.MD5OK = true
	return st, nil
}

func logFrame(fc *FrameCoder, num, pos int, sparseBlock bool) {
	s := fmt.Sprintf("frame %d at %d: %d samples sparse %v", num, pos, fc.NumSamples(), sparseBlock)
	for ch := range fc.NumChannels() {
		info := fc.Info(ch)
		s += fmt.Sprintf(", ch%d %d bytes bpn %d mapped %v", ch, info.Size, info.MaxBPN, info.Mapped)
	}
	log.Print(s)
}

// Decompress decodes the stream r into the WAVE file w. Only the threading and verbosity
// settings of cfg are used. A digest mismatch is logged and reported in Stats.MD5OK.
func Decompress(w io.Writer, r io.Reader, cfg Config) (*Stats, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	ww, err := wav.NewWriter(w, h.Format, h.Chunks, h.NumSamples)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	st := &Stats{Header: h, Size: int64(h.Size())}
	fc := NewFrameCoder(h.NumChannels, h.FrameSize(), cfg)
	for done := 0; done < h.NumSamples; {
		if err := fc.ReadEncoded(r); err != nil {
			return nil, errors.Wrapf(err, "frame %d", st.NumFrames+1)
		}
		n := fc.NumSamples()
		if n == 0 || n > h.NumSamples-done {
			return nil, errors.Wrapf(ErrInvalidHeader, "frame %d of %d samples, %d left", st.NumFrames+1, n, h.NumSamples-done)
		}
		if err := fc.Decode(); err != nil {
			return nil, errors.Wrapf(err, "frame %d", st.NumFrames+1)
		}
		fc.Unpredict()
		if err := ww.WriteSamples(fc.Samples(), n); err != nil {
			return nil, errors.Wrap(err, "")
		}
		st.NumFrames++
		st.Size += int64(fc.FrameHeaderSize())
		for ch := range fc.NumChannels() {
			st.Size += int64(fc.Info(ch).Size)
		}
		if cfg.Verbose > 0 {
			logFrame(fc, st.NumFrames, done, false)
		}
		done += n
	}
	if err := ww.Close(); err != nil {
		return nil, errors.Wrap(err, "")
	}

	st.MD5OK = ww.MD5() == h.MD5
	if !st.MD5OK {
		log.Printf("md5 mismatch: stored %x decoded %x", h.MD5, ww.MD5())
	}
	return st, nil
}

// List prints the header of the stream r to w. With full it also prints every frame.
func List(w io.Writer, r io.Reader, full bool) error {
	h, err := ReadHeader(r)
	if err != nil {
		return errors.Wrap(err, "")
	}
	fmt.Fprintf(w, "Channels: %d, Rate: %d Hz, Bits: %d, Samples: %d\n", h.NumChannels, h.SampleRate, h.BitsPerSample, h.NumSamples)
	fmt.Fprintf(w, "Frame length: %d s, Metadata: %d bytes, MD5: %x\n", h.FrameLen, h.Chunks.MetaDataSize(), h.MD5)
	for _, c := range h.Chunks {
		fmt.Fprintf(w, "  Chunk %q: %d bytes\n", c.Name(), c.Size)
	}
	if !full {
		return nil
	}

	fc := NewFrameCoder(h.NumChannels, h.FrameSize(), Config{})
	var coefSize, blockSize, frames int
	for done := 0; done < h.NumSamples; {
		if err := fc.ReadEncoded(r); err != nil {
			return errors.Wrapf(err, "frame %d", frames+1)
		}
		n := fc.NumSamples()
		if n == 0 {
			return errors.Wrapf(ErrInvalidHeader, "empty frame %d", frames+1)
		}
		frames++
		p := fc.Profile()
		coefSize += p.Size()
		fmt.Fprintf(w, "Frame %d: %d samples\n", frames, n)
		for ch := range fc.NumChannels() {
			info := fc.Info(ch)
			blockSize += blockHeaderSize
			fmt.Fprintf(w, "  Channel %d: %d bytes\n", ch, info.Size)
			fmt.Fprintf(w, "    Bpn: %d, sparse_pcm: %v, mid_side: %v\n", info.MaxBPN, info.Mapped, info.MidSide)
			fmt.Fprintf(w, "    mean: %d, min: %d, max: %d\n", info.Mean, info.Min, info.Max)
		}
		fmt.Fprint(w, p.String())
		done += n
	}
	fmt.Fprintf(w, "Frames   %d\n", frames)
	fmt.Fprintf(w, "Hdr_size %d (coefs %d,block %d)\n", coefSize+blockSize, coefSize, blockSize)
	return nil
}
