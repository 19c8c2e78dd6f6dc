// Package wav reads and writes PCM RIFF/WAVE files.
//
// Every chunk apart from the sample data is kept verbatim, so that a file can be
// reconstructed byte for byte from its Chunks and its samples.
package wav

import (
	"crypto/md5"
	"encoding/binary"
	"hash"
	"io"
	"log"

	"github.com/pkg/errors"
)

const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
	maxChannels      = 2
)

var (
	// ErrNotRIFF is returned for input that does not start with a RIFF header.
	ErrNotRIFF = errors.New("not a RIFF file")
	// ErrNotWAVE is returned for RIFF files of another form type.
	ErrNotWAVE = errors.New("not a WAVE file")
	// ErrUnsupportedFormat is returned for anything but 8, 16 or 24 bit mono or stereo PCM.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// A Format describes the samples of a file.
type Format struct {
	NumChannels   int
	SampleRate    int
	BitsPerSample int
}

// BytesPerSample returns the storage size of a single channel sample.
func (f Format) BytesPerSample() int {
	return (f.BitsPerSample + 7) / 8
}

// Validate reports ErrUnsupportedFormat for formats the codec cannot handle.
func (f Format) Validate() error {
	if f.NumChannels < 1 || f.NumChannels > maxChannels {
		return errors.Wrapf(ErrUnsupportedFormat, "%d channels", f.NumChannels)
	}
	if bps := f.BytesPerSample(); bps < 1 || bps > 3 {
		return errors.Wrapf(ErrUnsupportedFormat, "%d bits per sample", f.BitsPerSample)
	}
	return nil
}

// A Reader reads the samples of a WAVE file.
type Reader struct {
	Format
	// NumSamples is the number of samples per channel.
	NumSamples int
	Chunks     Chunks

	r          io.Reader
	blockAlign int
	left       int
	buf        []byte
	md5        hash.Hash
}

// NewReader parses the chunks of r and positions it at the first sample.
func NewReader(r io.ReadSeeker) (*Reader, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "")
	}

	wr := &Reader{r: r, md5: md5.New()}
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errors.Wrap(ErrNotRIFF, err.Error())
	}
	if binary.LittleEndian.Uint32(hdr[:]) != idRIFF {
		return nil, ErrNotRIFF
	}
	if binary.LittleEndian.Uint32(hdr[8:]) != idWAVE {
		return nil, ErrNotWAVE
	}
	wr.Chunks = append(wr.Chunks, Chunk{ID: idRIFF, Size: binary.LittleEndian.Uint32(hdr[4:]), Data: append([]byte(nil), hdr[8:]...)})

	pos := int64(len(hdr))
	dataPos := int64(-1)
	hasFmt := false
	for pos < size {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return nil, errors.Wrap(err, "chunk header")
		}
		pos += 8
		c := Chunk{ID: binary.LittleEndian.Uint32(ch[:]), Size: binary.LittleEndian.Uint32(ch[4:])}

		switch c.ID {
		case idFmt:
			c.Data = make([]byte, c.Size)
			if _, err := io.ReadFull(r, c.Data); err != nil {
				return nil, errors.Wrap(err, "fmt chunk")
			}
			pos += int64(c.Size)
			if err := wr.parseFmt(c.Data); err != nil {
				return nil, errors.Wrap(err, "")
			}
			hasFmt = true
		case idData:
			if !hasFmt {
				return nil, errors.Wrap(ErrUnsupportedFormat, "data before fmt chunk")
			}
			dataPos = pos
			avail := min(int64(c.Size), size-pos)
			if avail < int64(c.Size) {
				log.Printf("wav: data chunk of %d bytes truncated to %d", c.Size, avail)
			}
			wr.NumSamples = int(avail / int64(wr.blockAlign))
			end := pos + int64(wordAlign(int(c.Size)))
			if end >= size {
				pos = size
			} else {
				pos = end
				if _, err := r.Seek(pos, io.SeekStart); err != nil {
					return nil, errors.Wrap(err, "")
				}
			}
		default:
			c.Data = make([]byte, wordAlign(int(c.Size)))
			if _, err := io.ReadFull(r, c.Data); err != nil {
				return nil, errors.Wrapf(err, "chunk %q", c.Name())
			}
			pos += int64(len(c.Data))
		}
		wr.Chunks = append(wr.Chunks, c)
	}
	if dataPos < 0 {
		return nil, errors.Wrap(ErrUnsupportedFormat, "no data chunk")
	}
	if _, err := r.Seek(dataPos, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "")
	}
	wr.left = wr.NumSamples
	return wr, nil
}

func (wr *Reader) parseFmt(b []byte) error {
	if n := len(b); n != 16 && n != 18 && n != 40 {
		return errors.Wrapf(ErrUnsupportedFormat, "fmt chunk of %d bytes", n)
	}
	format := binary.LittleEndian.Uint16(b)
	wr.NumChannels = int(binary.LittleEndian.Uint16(b[2:]))
	wr.SampleRate = int(binary.LittleEndian.Uint32(b[4:]))
	wr.blockAlign = int(binary.LittleEndian.Uint16(b[12:]))
	wr.BitsPerSample = int(binary.LittleEndian.Uint16(b[14:]))
	if len(b) == 40 && binary.LittleEndian.Uint16(b[16:]) >= 22 {
		wr.BitsPerSample = int(binary.LittleEndian.Uint16(b[18:]))
		format = binary.LittleEndian.Uint16(b[24:])
	}
	if format != formatPCM {
		return errors.Wrapf(ErrUnsupportedFormat, "format tag %#x", format)
	}
	if err := wr.Format.Validate(); err != nil {
		return errors.Wrap(err, "")
	}
	if wr.blockAlign != wr.NumChannels*wr.BytesPerSample() {
		return errors.Wrapf(ErrUnsupportedFormat, "block align %d", wr.blockAlign)
	}
	return nil
}

// ReadSamples reads up to n samples per channel into dst, which must have NumChannels
// slices of at least n elements. It returns the number of samples read, which is only
// smaller than n at the end of the data.
func (wr *Reader) ReadSamples(dst [][]int32, n int) (int, error) {
	n = min(n, wr.left)
	nb := n * wr.blockAlign
	if cap(wr.buf) < nb {
		wr.buf = make([]byte, nb)
	}
	buf := wr.buf[:nb]
	if _, err := io.ReadFull(wr.r, buf); err != nil {
		return 0, errors.Wrap(err, "")
	}
	wr.md5.Write(buf)
	wr.left -= n

	bps := wr.BytesPerSample()
	p := 0
	for i := 0; i < n; i++ {
		for ch := 0; ch < wr.NumChannels; ch++ {
			dst[ch][i] = decodeSample(buf[p:], bps)
			p += bps
		}
	}
	return n, nil
}

// MD5 returns the digest of the sample bytes read so far.
func (wr *Reader) MD5() [md5.Size]byte {
	var d [md5.Size]byte
	copy(d[:], wr.md5.Sum(nil))
	return d
}

func decodeSample(b []byte, bps int) int32 {
	switch bps {
	case 1:
		return int32(b[0]) - 128
	case 2:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	}
	return int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
}

func encodeSample(b []byte, v int32, bps int) {
	switch bps {
	case 1:
		b[0] = byte(v + 128)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	default:
		b[0] = byte(v)
		b[1] = byte(v >> 8)
		b[2] = byte(v >> 16)
	}
}

// A Writer writes a WAVE file from its chunks and samples.
type Writer struct {
	Format

	w          io.Writer
	chunks     Chunks
	next       int
	dataSize   int64
	written    int64
	blockAlign int
	buf        []byte
	md5        hash.Hash
}

// NewWriter writes every chunk up to and including the data chunk header.
// Without chunks a canonical 44 byte header for numSamples samples is generated.
func NewWriter(w io.Writer, f Format, chunks Chunks, numSamples int) (*Writer, error) {
	if err := f.Validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	ww := &Writer{
		Format:     f,
		w:          w,
		chunks:     chunks,
		blockAlign: f.NumChannels * f.BytesPerSample(),
		md5:        md5.New(),
	}
	if len(ww.chunks) == 0 {
		ww.chunks = CanonicalChunks(f, numSamples)
	}
	if err := ww.writeChunks(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return ww, nil
}

// CanonicalChunks returns the chunks of a plain PCM file.
func CanonicalChunks(f Format, numSamples int) Chunks {
	blockAlign := f.NumChannels * f.BytesPerSample()
	dataSize := uint32(numSamples * blockAlign)
	fmtData := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtData, formatPCM)
	binary.LittleEndian.PutUint16(fmtData[2:], uint16(f.NumChannels))
	binary.LittleEndian.PutUint32(fmtData[4:], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(fmtData[8:], uint32(f.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(fmtData[12:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(fmtData[14:], uint16(f.BitsPerSample))
	return Chunks{
		{ID: idRIFF, Size: 4 + 8 + 16 + 8 + uint32(wordAlign(int(dataSize))), Data: binary.LittleEndian.AppendUint32(nil, idWAVE)},
		{ID: idFmt, Size: 16, Data: fmtData},
		{ID: idData, Size: dataSize},
	}
}

// writeChunks writes chunks from ww.next up to and including the next data header.
func (ww *Writer) writeChunks() error {
	for ww.next < len(ww.chunks) {
		c := ww.chunks[ww.next]
		ww.next++
		var hdr [8]byte
		binary.LittleEndian.PutUint32(hdr[:], c.ID)
		binary.LittleEndian.PutUint32(hdr[4:], c.Size)
		if _, err := ww.w.Write(hdr[:]); err != nil {
			return errors.Wrap(err, "")
		}
		if c.ID == idData {
			ww.dataSize = int64(c.Size)
			return nil
		}
		if _, err := ww.w.Write(c.Data); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// WriteSamples writes the first n samples of every channel of src.
func (ww *Writer) WriteSamples(src [][]int32, n int) error {
	nb := n * ww.blockAlign
	if cap(ww.buf) < nb {
		ww.buf = make([]byte, nb)
	}
	buf := ww.buf[:nb]
	bps := ww.BytesPerSample()
	p := 0
	for i := 0; i < n; i++ {
		for ch := 0; ch < ww.NumChannels; ch++ {
			encodeSample(buf[p:], src[ch][i], bps)
			p += bps
		}
	}
	ww.md5.Write(buf)
	ww.written += int64(nb)
	if _, err := ww.w.Write(buf); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Close writes the chunks that follow the sample data. It does not close the
// underlying writer.
func (ww *Writer) Close() error {
	if ww.next >= len(ww.chunks) {
		return nil
	}
	if ww.written&1 != 0 && ww.written == ww.dataSize {
		if _, err := ww.w.Write([]byte{0}); err != nil {
			return errors.Wrap(err, "")
		}
	}
	for ww.next < len(ww.chunks) {
		if err := ww.writeChunks(); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// MD5 returns the digest of the sample bytes written so far.
func (ww *Writer) MD5() [md5.Size]byte {
	var d [md5.Size]byte
	copy(d[:], ww.md5.Sum(nil))
	return d
}
