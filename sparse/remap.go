// Package sparse exploits sample alphabets that leave most integer values unused.
//
// A Remap records which values occur in a block and replaces a prediction error by the number
// of used values between the prediction and the true sample. A MapCoder entropy codes the used
// bitmaps, and an Analyser classifies stretches of audio as sparse or dense.
package sparse

import (
	"log"
)

// MapScale is the largest magnitude a Remap can record.
const MapScale = 1 << 15

// A Remap holds the used bitmaps of the negative (UsedL) and positive (UsedH) sample values,
// indexed by magnitude.
type Remap struct {
	UsedL, UsedH []bool

	// Overflow is set when Analyse saw a value of magnitude above MapScale.
	// Such blocks cannot be remapped.
	Overflow bool
}

// NewRemap returns an empty Remap.
func NewRemap() *Remap {
	return &Remap{
		UsedL: make([]bool, MapScale+1),
		UsedH: make([]bool, MapScale+1),
	}
}

// Reset clears the bitmaps.
func (r *Remap) Reset() {
	clear(r.UsedL)
	clear(r.UsedH)
	r.Overflow = false
}

// Analyse marks every value of src as used.
func (r *Remap) Analyse(src []int32) {
	for _, v := range src {
		switch {
		case v > MapScale || v < -MapScale:
			if !r.Overflow {
				log.Printf("sparse: value %d outside map range", v)
			}
			r.Overflow = true
		case v > 0:
			r.UsedH[v] = true
		case v < 0:
			r.UsedL[-v] = true
		}
	}
}

// IsUsed reports whether v was seen by Analyse. Zero always counts as used.
func (r *Remap) IsUsed(v int32) bool {
	switch {
	case v > MapScale || v < -MapScale:
		return false
	case v > 0:
		return r.UsedH[v]
	case v < 0:
		return r.UsedL[-v]
	}
	return true
}

// Map returns the signed count of used values in (pred, pred+err].
func (r *Remap) Map(pred, err int32) int32 {
	if err == 0 {
		return 0
	}
	sgn := int32(1)
	if err < 0 {
		err, sgn = -err, -1
	}
	var merr int32
	for i := int32(1); i <= err; i++ {
		if r.IsUsed(pred + sgn*i) {
			merr++
		}
	}
	return sgn * merr
}

// Unmap inverts Map by scanning away from pred until merr used values have been passed.
func (r *Remap) Unmap(pred, merr int32) int32 {
	if merr == 0 {
		return 0
	}
	sgn := int32(1)
	if merr < 0 {
		merr, sgn = -merr, -1
	}
	var err, terr int32
	for terr < merr {
		err++
		v := pred + sgn*err
		if (v > MapScale && sgn > 0) || (v < -MapScale && sgn < 0) {
			// Nothing beyond the map range is used; the error cannot be reached.
			break
		}
		if r.IsUsed(v) {
			terr++
		}
	}
	return sgn * err
}
