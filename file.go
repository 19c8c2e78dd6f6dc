package sac

import (
	"encoding/binary"
	"io"
	"log"

	"github.com/fumin/sac/wav"
	"github.com/pkg/errors"
)

const magic = "SAC2"

// headerFixedSize is the size of the file header before the metadata.
const headerFixedSize = 4 + 2 + 4 + 2 + 4 + 1 + 1 + 4

// A Header is the file header of a SAC stream.
type Header struct {
	wav.Format
	NumSamples int
	// FrameLen is the maximum frame length in seconds.
	FrameLen int
	Chunks   wav.Chunks
	MD5      [16]byte
}

// Size returns the encoded size of h.
func (h *Header) Size() int {
	return headerFixedSize + h.Chunks.MetaDataSize() + len(h.MD5)
}

// MD5Offset returns the offset of the digest from the start of the file.
func (h *Header) MD5Offset() int64 {
	return int64(h.Size() - len(h.MD5))
}

// FrameSize returns the maximum number of samples of a frame.
func (h *Header) FrameSize() int {
	return h.FrameLen * h.SampleRate
}

// WriteTo writes the encoded header.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	meta := h.Chunks.Pack()
	if len(meta) != h.Chunks.MetaDataSize() {
		log.Printf("metadata packed to %d bytes, expected %d", len(meta), h.Chunks.MetaDataSize())
	}
	b := make([]byte, 0, h.Size())
	b = append(b, magic...)
	b = binary.LittleEndian.AppendUint16(b, uint16(h.NumChannels))
	b = binary.LittleEndian.AppendUint32(b, uint32(h.SampleRate))
	b = binary.LittleEndian.AppendUint16(b, uint16(h.BitsPerSample))
	b = binary.LittleEndian.AppendUint32(b, uint32(h.NumSamples))
	b = append(b, byte(h.FrameLen), 0)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(meta)))
	b = append(b, meta...)
	b = append(b, h.MD5[:]...)
	n, err := w.Write(b)
	return int64(n), errors.Wrap(err, "")
}

// ReadHeader reads a header written by Header.WriteTo.
func ReadHeader(r io.Reader) (*Header, error) {
	var b [headerFixedSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		if errors.Cause(err) == io.EOF {
			return nil, errors.Wrap(ErrInvalidHeader, "empty file")
		}
		return nil, errors.Wrap(err, "")
	}
	if string(b[:4]) != magic {
		return nil, errors.Wrapf(ErrInvalidHeader, "magic %q", b[:4])
	}
	h := &Header{
		Format: wav.Format{
			NumChannels:   int(binary.LittleEndian.Uint16(b[4:])),
			SampleRate:    int(binary.LittleEndian.Uint32(b[6:])),
			BitsPerSample: int(binary.LittleEndian.Uint16(b[10:])),
		},
		NumSamples: int(binary.LittleEndian.Uint32(b[12:])),
		FrameLen:   int(b[16]),
	}
	if err := h.Format.Validate(); err != nil {
		return nil, errors.Wrapf(ErrInvalidHeader, "%v", err)
	}
	if h.FrameLen == 0 || h.SampleRate == 0 || h.FrameSize() > maxFrameSize {
		return nil, errors.Wrapf(ErrInvalidHeader, "frame length %d rate %d", h.FrameLen, h.SampleRate)
	}

	metaSize := binary.LittleEndian.Uint32(b[18:])
	if metaSize > maxMetaDataSize {
		return nil, errors.Wrapf(ErrInvalidHeader, "metadata of %d bytes", metaSize)
	}
	meta := make([]byte, metaSize)
	if _, err := io.ReadFull(r, meta); err != nil {
		return nil, errors.Wrap(unexpected(err), "metadata")
	}
	chunks, err := wav.UnpackChunks(meta)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	h.Chunks = chunks
	if _, err := io.ReadFull(r, h.MD5[:]); err != nil {
		return nil, errors.Wrap(unexpected(err), "md5")
	}
	return h, nil
}

const (
	maxMetaDataSize = 1 << 26
	maxFrameSize    = 1 << 26
)
