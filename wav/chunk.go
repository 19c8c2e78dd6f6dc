package wav

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	idRIFF = 0x46464952
	idWAVE = 0x45564157
	idFmt  = 0x20746d66
	idData = 0x61746164
)

// A Chunk is a RIFF chunk other than the sample data.
// For the RIFF chunk Data holds the 4 byte form type, for the data chunk it is empty,
// for every other chunk it is the payload padded to an even length.
type Chunk struct {
	ID   uint32
	Size uint32
	Data []byte
}

// Name returns the four character code of the chunk.
func (c Chunk) Name() string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], c.ID)
	return string(b[:])
}

// Chunks lists the chunks of a file in order.
type Chunks []Chunk

// MetaDataSize returns the size of the packed chunks.
func (cs Chunks) MetaDataSize() int {
	n := 0
	for _, c := range cs {
		n += 8 + len(c.Data)
	}
	return n
}

// Pack serializes the chunks as id, size and data each.
func (cs Chunks) Pack() []byte {
	b := make([]byte, 0, cs.MetaDataSize())
	for _, c := range cs {
		b = binary.LittleEndian.AppendUint32(b, c.ID)
		b = binary.LittleEndian.AppendUint32(b, c.Size)
		b = append(b, c.Data...)
	}
	return b
}

// UnpackChunks parses the output of Pack.
func UnpackChunks(b []byte) (Chunks, error) {
	var cs Chunks
	for ofs := 0; ofs < len(b); {
		if len(b)-ofs < 8 {
			return nil, errors.Wrap(io.ErrUnexpectedEOF, "chunk header")
		}
		c := Chunk{
			ID:   binary.LittleEndian.Uint32(b[ofs:]),
			Size: binary.LittleEndian.Uint32(b[ofs+4:]),
		}
		ofs += 8

		n := 0
		switch c.ID {
		case idRIFF:
			n = 4
		case idData:
		default:
			n = wordAlign(int(c.Size))
		}
		if len(b)-ofs < n {
			return nil, errors.Wrapf(io.ErrUnexpectedEOF, "chunk %q", c.Name())
		}
		if n > 0 {
			c.Data = append([]byte(nil), b[ofs:ofs+n]...)
		}
		ofs += n
		cs = append(cs, c)
	}
	return cs, nil
}

func wordAlign(n int) int {
	return n + n&1
}
