package sparse

import (
	"math"
)

// SparseThreshold is the cost ratio above which a block is considered sparse.
const SparseThreshold = 1.35

// An Analyser measures how much of the value range spanned by a block is actually used.
type Analyser struct {
	MinVal, MaxVal int32

	// FractionUsed is the percentage of values in [MinVal, MaxVal] that occur.
	FractionUsed float64
	// FractionCost is the ratio of the summed magnitudes to the summed ranks of the block.
	FractionCost float64

	used      []bool
	prefixSum []int32
}

// Analyse fills in the statistics of buf.
func (a *Analyser) Analyse(buf []int32) {
	a.MinVal, a.MaxVal = math.MaxInt32, math.MinInt32
	for _, v := range buf {
		a.MinVal = min(a.MinVal, v)
		a.MaxVal = max(a.MaxVal, v)
	}
	a.FractionUsed, a.FractionCost = 0, 0
	if len(buf) == 0 {
		return
	}

	rng := int(int64(a.MaxVal) - int64(a.MinVal) + 1)
	a.used = append(a.used[:0], make([]bool, rng)...)
	unique := 0
	for _, v := range buf {
		idx := int(v - a.MinVal)
		if !a.used[idx] {
			a.used[idx] = true
			unique++
		}
	}
	a.FractionUsed = float64(unique) * 100 / float64(rng)

	a.prefixSum = append(a.prefixSum[:0], make([]int32, rng+1)...)
	for i, u := range a.used {
		a.prefixSum[i+1] = a.prefixSum[i]
		if u {
			a.prefixSum[i+1]++
		}
	}

	var sum0, sum1 float64
	for _, v := range buf {
		sum0 += math.Abs(float64(v))
		sum1 += math.Abs(float64(a.mapVal(v)))
	}
	if sum1 > 0 {
		a.FractionCost = sum0 / sum1
	}
}

// mapVal returns the signed number of used values between 0 (exclusive) and v.
func (a *Analyser) mapVal(v int32) int32 {
	if v == 0 {
		return 0
	}
	zero := -int64(a.MinVal)
	var start, end int64
	sgn := int32(1)
	if v > 0 {
		start, end = zero+1, zero+int64(v)
	} else {
		start, end = zero+int64(v), zero-1
		sgn = -1
	}
	n := int64(len(a.used))
	start = max(0, min(start, n))
	end = max(-1, min(end, n-1))
	if end < start {
		return 0
	}
	return sgn * (a.prefixSum[end+1] - a.prefixSum[start])
}

// A Segment is a run of samples coded as one frame.
type Segment struct {
	Start, Length int
	Sparse        bool
}

// Segments splits the first n samples of every channel into runs of sparse or dense blocks of
// blockLen samples. Runs shorter than minLen are merged into their predecessor.
func Segments(ch [][]int32, n, blockLen, minLen int) []Segment {
	var segs []Segment
	push := func(s Segment) {
		if s.Length < minLen && len(segs) > 0 {
			segs[len(segs)-1].Length += s.Length
			return
		}
		segs = append(segs, s)
	}

	var a Analyser
	var cur Segment
	for start := 0; start < n; start += blockLen {
		length := min(blockLen, n-start)
		var cost float64
		for _, c := range ch {
			a.Analyse(c[start : start+length])
			cost += a.FractionCost
		}
		cost /= float64(len(ch))
		sparse := cost > SparseThreshold

		switch {
		case start == 0:
			cur = Segment{Start: 0, Length: length, Sparse: sparse}
		case sparse == cur.Sparse:
			cur.Length += length
		default:
			push(cur)
			cur = Segment{Start: start, Length: length, Sparse: sparse}
		}
	}
	if cur.Length > 0 {
		push(cur)
	}
	return segs
}
