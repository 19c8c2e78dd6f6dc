package sac

import (
	"encoding/binary"
	"io"
	"log"
	"math"

	"github.com/fumin/sac/ac/shelwien"
	"github.com/fumin/sac/bitplane"
	"github.com/fumin/sac/cost"
	"github.com/fumin/sac/opt"
	"github.com/fumin/sac/pred"
	"github.com/fumin/sac/sparse"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	blockHeaderSize = 18

	flagMaxBPN  = 0x1ff
	flagMapped  = 1 << 9
	flagMidSide = 1 << 10

	// remapRatio is the reduction of the mean absolute residual above which a remapped
	// encoding is attempted.
	remapRatio = 1.05
)

// ErrInvalidHeader is returned for frame or file headers that cannot have been written by Compress.
var ErrInvalidHeader = errors.New("invalid header")

// BlockInfo describes the coded block of one channel of a frame.
type BlockInfo struct {
	Size          int
	Mean          int32
	Min, Max      int32
	MaxBPN        int
	Mapped        bool
	MidSide       bool
	SizeNormal    int
	SizeMapped    int
	SolveFailures int
}

type channel struct {
	samples []int32
	err     []int32
	pred    []int32
	s2u     []int32
	s2uMap  []int32
	encoded []byte
	tmp     []byte
	remap   *sparse.Remap

	info      BlockInfo
	maxbpnMap int
}

// A FrameCoder codes frames of up to FrameSize samples of one or two channels.
// The profile carries over from one frame to the next.
type FrameCoder struct {
	FrameSize int

	cfg     Config
	profile Profile
	ch      []*channel
	n       int
	midSide bool
}

// NewFrameCoder returns a FrameCoder starting from the built-in profile.
func NewFrameCoder(numChannels, frameSize int, cfg Config) *FrameCoder {
	fc := &FrameCoder{FrameSize: frameSize, cfg: cfg, profile: BaseProfile()}
	for range numChannels {
		fc.ch = append(fc.ch, &channel{
			samples: make([]int32, frameSize),
			err:     make([]int32, frameSize),
			pred:    make([]int32, frameSize),
			s2u:     make([]int32, frameSize),
			s2uMap:  make([]int32, frameSize),
			remap:   sparse.NewRemap(),
		})
	}
	return fc
}

// NumChannels returns the number of channels.
func (fc *FrameCoder) NumChannels() int { return len(fc.ch) }

// NumSamples returns the number of samples of the current frame.
func (fc *FrameCoder) NumSamples() int { return fc.n }

// SetNumSamples sets the length of the next frame to encode.
func (fc *FrameCoder) SetNumSamples(n int) {
	if n < 0 || n > fc.FrameSize {
		panic(errors.Errorf("frame of %d samples exceeds %d", n, fc.FrameSize))
	}
	fc.n = n
}

// Samples returns the sample buffers of every channel, FrameSize long each.
func (fc *FrameCoder) Samples() [][]int32 {
	s := make([][]int32, len(fc.ch))
	for i, c := range fc.ch {
		s[i] = c.samples
	}
	return s
}

// Profile returns the profile of the last coded frame.
func (fc *FrameCoder) Profile() Profile { return fc.profile }

// Info returns the block description of channel ch of the last coded frame.
func (fc *FrameCoder) Info(ch int) BlockInfo { return fc.ch[ch].info }

// Predict replaces the samples of the current frame by residuals ready for Encode.
// Samples are destroyed in the process.
func (fc *FrameCoder) Predict() {
	fc.midSide = false
	if fc.cfg.StereoMS && len(fc.ch) == 2 && fc.n > 1 {
		fc.midSide = applyMidSide(fc.ch[0].samples[:fc.n], fc.ch[1].samples[:fc.n])
	}

	for _, c := range fc.ch {
		src := c.samples[:fc.n]
		c.info = BlockInfo{MidSide: fc.midSide}
		c.info.Mean, c.info.Min, c.info.Max = frameStats(src)
		if fc.cfg.SparsePCM {
			c.remap.Reset()
			c.remap.Analyse(src)
		}
		if !fc.cfg.ZeroMean {
			c.info.Mean = 0
		}
		if m := c.info.Mean; m != 0 {
			for i := range src {
				src[i] -= m
			}
			c.info.Min -= m
			c.info.Max -= m
		}
		if fc.cfg.Verbose > 1 {
			log.Printf("samples %d mean %d min %d max %d", fc.n, c.info.Mean, c.info.Min, c.info.Max)
		}
	}

	if fc.cfg.Optimize && fc.n > 0 {
		if fc.cfg.Opt.Reset {
			fc.profile = BaseProfile()
		}
		fc.optimize()
	}

	errs := make([][]int32, len(fc.ch))
	for i, c := range fc.ch {
		errs[i] = c.err
	}
	fc.predictFrame(&fc.profile, errs, 0, fc.n, false)

	for _, c := range fc.ch {
		for i, e := range c.err[:fc.n] {
			c.s2u[i] = bitplane.Fold(e)
		}
		c.info.MaxBPN = bitplane.MaxBPN(c.s2u[:fc.n])
	}
}

// frameStats returns the floored mean, the minimum and the maximum of src.
func frameStats(src []int32) (mean, lo, hi int32) {
	if len(src) == 0 {
		return 0, 0, 0
	}
	var sum int64
	lo, hi = math.MaxInt32, math.MinInt32
	for _, v := range src {
		sum += int64(v)
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return int32(math.Floor(float64(sum) / float64(len(src)))), lo, hi
}

// predictFrame runs the predictor over n samples starting at from, writing residuals to errs.
// When searching it leaves the frame state untouched, so that it may run concurrently.
func (fc *FrameCoder) predictFrame(p *Profile, errs [][]int32, from, n int, searching bool) {
	k := 1
	if searching {
		k = fc.cfg.Opt.K
	}
	params, ref := p.Params(k)
	pr := pred.NewPredictor(params, len(fc.ch))

	process := func(slot, ch int, val int32, idx int) {
		c := fc.ch[ch]
		pi := c.predict(pr.Predict(slot))
		if !searching {
			c.pred[idx] = pi + c.info.Mean
		}
		errs[ch][idx] = val - pi
		pr.Update(slot, float64(val))
	}

	if len(fc.ch) == 1 {
		src := fc.ch[0].samples[from : from+n]
		for idx := 0; idx < n; idx++ {
			pr.FillCh0(src, idx, nil, 0)
			process(0, 0, src[idx], idx)
		}
	} else {
		ch0, ch1 := ref, 1-ref
		src0 := fc.ch[ch0].samples[from : from+n]
		src1 := fc.ch[ch1].samples[from : from+n]
		interleave(pr, n, func(idx0, idx1 int) {
			pr.FillCh0(src0, idx0, src1, idx1)
			process(0, ch0, src0[idx0], idx0)
		}, func(idx1 int) {
			pr.FillCh1(src0, src1, idx1, n)
			process(1, ch1, src1[idx1], idx1)
		})
	}

	if !searching {
		fc.ch[ref%len(fc.ch)].info.SolveFailures = pr.SolveFailures(0)
		if len(fc.ch) == 2 {
			fc.ch[1-ref].info.SolveFailures = pr.SolveFailures(1)
		}
	}
}

// interleave visits the samples of a stereo frame, keeping the reference channel
// Lookahead samples ahead of the other one.
func interleave(pr *pred.Predictor, n int, first func(idx0, idx1 int), second func(idx1 int)) {
	var idx0, idx1 int
	for idx0 < n || idx1 < n {
		if idx0 < n {
			first(idx0, idx1)
			idx0++
		}
		if idx1 < n && (idx0 >= pr.Lookahead() || idx0 >= n) {
			second(idx1)
			idx1++
		}
	}
}

// predict rounds and clamps a prediction to the range of the channel.
func (c *channel) predict(pd float64) int32 {
	if math.IsNaN(pd) {
		pd = 0
	}
	pd = math.Round(pd)
	pd = min(max(pd, float64(c.info.Min)), float64(c.info.Max))
	return int32(pd)
}

// optimize searches the profile minimizing the cost of a central part of the frame.
func (fc *FrameCoder) optimize() {
	oc := fc.cfg.Opt
	n := min(fc.n, int(math.Ceil(float64(fc.FrameSize)*oc.Fraction)))
	start := (fc.n - n) / 2

	box := make([]opt.Bound, NumCoefs)
	xstart := make([]float64, NumCoefs)
	for i, c := range fc.profile.Coefs {
		box[i] = opt.Bound{Min: float64(c.Min), Max: float64(c.Max)}
		xstart[i] = float64(c.Val)
	}

	base := fc.profile
	f := func(x []float64) float64 {
		p := base
		for i, v := range x {
			p.Coefs[i].Val = float32(v)
		}
		errs := make([][]int32, len(fc.ch))
		for i := range errs {
			errs[i] = make([]int32, n)
		}
		fc.predictFrame(&p, errs, start, n, true)
		return fc.cost(oc.Cost, errs)
	}

	cfg := oc.Config
	cfg.Verbose = fc.cfg.Verbose > 1
	res := opt.Run(cfg, box, f, xstart)
	for i, v := range res.X {
		fc.profile.Coefs[i].Val = float32(v)
	}
	if fc.cfg.Verbose > 0 {
		log.Printf("%v %d: cost %.2f", cfg.Method, res.NFunc, res.F)
	}
	if fc.cfg.Verbose > 1 {
		log.Printf("profile\n%v", &fc.profile)
	}
}

// cost sums the cost of every channel.
func (fc *FrameCoder) cost(kind cost.Kind, errs [][]int32) float64 {
	costs := make([]float64, len(errs))
	if fc.cfg.MTMode > 1 && len(errs) > 1 {
		var g errgroup.Group
		for ch := range errs {
			g.Go(func() error {
				costs[ch] = cost.Calc(kind, errs[ch])
				return nil
			})
		}
		g.Wait()
	} else {
		for ch := range errs {
			costs[ch] = cost.Calc(kind, errs[ch])
		}
	}
	var sum float64
	for _, c := range costs {
		sum += c
	}
	return sum
}

// forEachChannel runs f on every channel, concurrently when the configuration asks for it.
func (fc *FrameCoder) forEachChannel(f func(c *channel) error) error {
	if fc.cfg.MTMode == 0 || len(fc.ch) < 2 {
		for _, c := range fc.ch {
			if err := f(c); err != nil {
				return err
			}
		}
		return nil
	}
	var g errgroup.Group
	for _, c := range fc.ch {
		g.Go(func() error { return f(c) })
	}
	return g.Wait()
}

// Encode entropy codes the residuals produced by Predict.
func (fc *FrameCoder) Encode() error {
	return fc.forEachChannel(func(c *channel) error {
		fc.encodeChannel(c)
		return nil
	})
}

func (fc *FrameCoder) encodeChannel(c *channel) {
	c.encoded = encodeNormal(c.encoded, c.s2u[:fc.n], c.info.MaxBPN)
	c.info.Mapped = false
	c.info.SizeNormal, c.info.SizeMapped = len(c.encoded), 0
	if !fc.cfg.SparsePCM || c.remap.Overflow {
		return
	}

	r := fc.remapRatio(c)
	if r <= remapRatio {
		return
	}
	c.tmp = encodeMapped(c.tmp, c.remap, c.s2uMap[:fc.n], c.maxbpnMap)
	c.info.SizeMapped = len(c.tmp)
	if fc.cfg.Verbose > 1 {
		log.Printf("sparse ratio %.3f: %d -> %d", r, len(c.encoded), len(c.tmp))
	}
	if len(c.tmp) < len(c.encoded) {
		c.encoded, c.tmp = c.tmp, c.encoded
		c.info.Mapped = true
		c.info.MaxBPN = c.maxbpnMap
	}
}

// remapRatio fills the remapped residuals of c and returns the ratio between the
// mean absolute residual and the mean absolute remapped residual.
func (fc *FrameCoder) remapRatio(c *channel) float64 {
	var sumErr, sumMap int64
	for i, e := range c.err[:fc.n] {
		m := c.remap.Map(c.pred[i], e)
		c.s2uMap[i] = bitplane.Fold(m)
		sumErr += abs64(e)
		sumMap += abs64(m)
	}
	c.maxbpnMap = bitplane.MaxBPN(c.s2uMap[:fc.n])
	if sumMap == 0 {
		return 1
	}
	return float64(sumErr) / float64(sumMap)
}

func abs64(v int32) int64 {
	if v < 0 {
		return -int64(v)
	}
	return int64(v)
}

func encodeNormal(buf []byte, s2u []int32, maxbpn int) []byte {
	enc := shelwien.NewEncoder(buf)
	bitplane.NewCoder(s2u, maxbpn).Encode(enc)
	enc.Stop()
	return enc.Bytes
}

func encodeMapped(buf []byte, r *sparse.Remap, s2u []int32, maxbpn int) []byte {
	enc := shelwien.NewEncoder(buf)
	sparse.NewMapCoder(r).Encode(enc)
	bitplane.NewCoder(s2u, maxbpn).Encode(enc)
	enc.Stop()
	return enc.Bytes
}

// Decode recovers the residuals of a frame read by ReadEncoded.
func (fc *FrameCoder) Decode() error {
	return fc.forEachChannel(func(c *channel) error {
		dec := shelwien.NewDecoder(c.encoded)
		if c.info.Mapped {
			c.remap.Reset()
			sparse.NewMapCoder(c.remap).Decode(dec)
		}
		bitplane.NewCoder(c.err[:fc.n], c.info.MaxBPN).Decode(dec)
		return errors.Wrap(dec.Err(), "")
	})
}

// Unpredict reconstructs the samples of a decoded frame.
func (fc *FrameCoder) Unpredict() {
	params, ref := fc.profile.Params(1)
	pr := pred.NewPredictor(params, len(fc.ch))

	process := func(slot, ch int, idx int) {
		c := fc.ch[ch]
		pi := c.predict(pr.Predict(slot))
		e := c.err[idx]
		if c.info.Mapped {
			e = c.remap.Unmap(pi+c.info.Mean, e)
		}
		c.samples[idx] = pi + e
		pr.Update(slot, float64(c.samples[idx]))
	}

	n := fc.n
	if len(fc.ch) == 1 {
		dst := fc.ch[0].samples
		for idx := 0; idx < n; idx++ {
			pr.FillCh0(dst, idx, nil, 0)
			process(0, 0, idx)
		}
	} else {
		ch0, ch1 := ref, 1-ref
		dst0, dst1 := fc.ch[ch0].samples, fc.ch[ch1].samples
		interleave(pr, n, func(idx0, idx1 int) {
			pr.FillCh0(dst0, idx0, dst1, idx1)
			process(0, ch0, idx0)
		}, func(idx1 int) {
			pr.FillCh1(dst0, dst1, idx1, n)
			process(1, ch1, idx1)
		})
	}

	for _, c := range fc.ch {
		if m := c.info.Mean; m != 0 {
			for i := range c.samples[:n] {
				c.samples[i] += m
			}
		}
	}
	if fc.midSide {
		undoMidSide(fc.ch[0].samples[:n], fc.ch[1].samples[:n])
	}
}

// WriteEncoded writes the frame header and the coded blocks of every channel.
func (fc *FrameCoder) WriteEncoded(w io.Writer) error {
	b := binary.LittleEndian.AppendUint32(nil, uint32(fc.n))
	b = fc.profile.AppendBinary(b)
	for _, c := range fc.ch {
		c.info.Size = len(c.encoded)
		b = binary.LittleEndian.AppendUint32(b, uint32(c.info.Size))
		b = binary.LittleEndian.AppendUint32(b, uint32(c.info.Mean))
		b = binary.LittleEndian.AppendUint32(b, uint32(c.info.Min))
		b = binary.LittleEndian.AppendUint32(b, uint32(c.info.Max))
		flags := uint16(c.info.MaxBPN & flagMaxBPN)
		if c.info.Mapped {
			flags |= flagMapped
		}
		if c.info.MidSide {
			flags |= flagMidSide
		}
		b = binary.LittleEndian.AppendUint16(b, flags)
		b = append(b, c.encoded...)
	}
	if _, err := w.Write(b); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// FrameHeaderSize returns the size of a frame excluding the coded blocks.
func (fc *FrameCoder) FrameHeaderSize() int {
	return 4 + fc.profile.Size() + blockHeaderSize*len(fc.ch)
}

// ReadEncoded reads a frame written by WriteEncoded.
func (fc *FrameCoder) ReadEncoded(r io.Reader) error {
	var b [blockHeaderSize]byte
	if _, err := io.ReadFull(r, b[:4]); err != nil {
		return errors.Wrap(unexpected(err), "frame header")
	}
	n := binary.LittleEndian.Uint32(b[:])
	if uint64(n) > uint64(fc.FrameSize) {
		return errors.Wrapf(ErrInvalidHeader, "frame of %d samples exceeds %d", n, fc.FrameSize)
	}
	fc.n = int(n)
	if _, err := fc.profile.ReadFrom(r); err != nil {
		return errors.Wrap(unexpected(err), "")
	}

	for ch, c := range fc.ch {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return errors.Wrapf(unexpected(err), "block header %d", ch)
		}
		flags := binary.LittleEndian.Uint16(b[16:])
		c.info = BlockInfo{
			Size:    int(binary.LittleEndian.Uint32(b[0:])),
			Mean:    int32(binary.LittleEndian.Uint32(b[4:])),
			Min:     int32(binary.LittleEndian.Uint32(b[8:])),
			Max:     int32(binary.LittleEndian.Uint32(b[12:])),
			MaxBPN:  int(flags & flagMaxBPN),
			Mapped:  flags&flagMapped != 0,
			MidSide: flags&flagMidSide != 0,
		}
		if c.info.MaxBPN > 31 || (fc.n > 0 && c.info.Min > c.info.Max) {
			return errors.Wrapf(ErrInvalidHeader, "block header %d: %+v", ch, c.info)
		}
		if c.info.Size > maxBlockSize(fc.n) {
			return errors.Wrapf(ErrInvalidHeader, "block %d of %d bytes", ch, c.info.Size)
		}
		if cap(c.encoded) < c.info.Size {
			c.encoded = make([]byte, c.info.Size)
		}
		c.encoded = c.encoded[:c.info.Size]
		if _, err := io.ReadFull(r, c.encoded); err != nil {
			return errors.Wrapf(unexpected(err), "block %d", ch)
		}
	}
	fc.midSide = len(fc.ch) == 2 && fc.ch[0].info.MidSide
	return nil
}

// maxBlockSize bounds the coded size of a block of n samples.
func maxBlockSize(n int) int {
	return sparse.MapScale + 64*n + 1024
}

// unexpected converts a clean end of stream in the middle of a frame to io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if errors.Cause(err) == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// applyMidSide replaces left and right by mid and side when that lowers the summed
// absolute first difference, and reports whether it did.
func applyMidSide(l, r []int32) bool {
	var costLR, costMS int64
	var pl, pr, pm, ps int32
	for i := range l {
		m, s := (l[i]+r[i])>>1, l[i]-r[i]
		costLR += abs64(l[i]-pl) + abs64(r[i]-pr)
		costMS += abs64(m-pm) + abs64(s-ps)
		pl, pr, pm, ps = l[i], r[i], m, s
	}
	if costMS >= costLR {
		return false
	}
	for i := range l {
		l[i], r[i] = (l[i]+r[i])>>1, l[i]-r[i]
	}
	return true
}

func undoMidSide(m, s []int32) {
	for i := range m {
		mid := m[i]<<1 | s[i]&1
		m[i], s[i] = (mid+s[i])>>1, (mid-s[i])>>1
	}
}
