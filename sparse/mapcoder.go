package sparse

import (
	"github.com/fumin/sac/ac"
	"github.com/fumin/sac/model"
)

const (
	mapCntRate    = 500
	mapCntSSERate = 300
	mapMixRate    = 1000
	mapMixSSERate = 500
)

// A MapCoder codes the used bitmaps of a Remap, interleaving the negative and positive
// maps magnitude by magnitude.
type MapCoder struct {
	cnt      [24]model.LinearCounter16
	cctx     [64]model.LinearCounter16
	mixl     [4]*model.NMixLogistic
	mixh     [4]*model.NMixLogistic
	finalmix *model.NMixLogistic
	sse      *model.SSE

	// indices of the counters and mixer of the current bit
	pc  [4]int
	px  int
	mix *model.NMixLogistic
	in  [5]uint32
	ul  []bool
	uh  []bool
}

// NewMapCoder returns a MapCoder over the bitmaps of r.
func NewMapCoder(r *Remap) *MapCoder {
	dom := model.LogDomain()
	m := &MapCoder{
		finalmix: model.NewNMixLogistic(dom, 2),
		sse:      model.NewSSE(dom, 32),
		ul:       r.UsedL,
		uh:       r.UsedH,
	}
	for i := range m.cnt {
		m.cnt[i] = model.NewLinearCounter16()
	}
	for i := range m.cctx {
		m.cctx[i] = model.NewLinearCounter16()
	}
	for i := range m.mixl {
		m.mixl[i] = model.NewNMixLogistic(dom, 5)
		m.mixh[i] = model.NewNMixLogistic(dom, 5)
	}
	return m
}

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// history packs up to four bits preceding i in used, most recent in the lowest bit.
func history(used []bool, i int) int {
	var h int
	for k := 1; k <= 4 && i-k >= 1; k++ {
		h |= bit(used[i-k]) << (k - 1)
	}
	return h
}

func (m *MapCoder) predict(own, other []bool, i, otherIdx, base int, mixers *[4]*model.NMixLogistic) uint32 {
	ctx1 := bit(own[i-1])
	ctx2 := bit(other[otherIdx])
	ctx3 := 0
	if i > 1 {
		ctx3 = bit(own[i-2])
	}
	m.pc = [4]int{
		base + ctx1,
		base + 2 + ctx2,
		base + 4 + ctx1<<1 + ctx3,
		base + 8 + ctx1<<1 + ctx2,
	}
	m.px = base/12*32 + history(own, i)
	m.mix = mixers[ctx1+ctx3<<1]
	for k, idx := range m.pc {
		m.in[k] = uint32(m.cnt[idx].P1)
	}
	m.in[4] = uint32(m.cctx[m.px].P1)
	return m.predictSSE(m.mix.Predict(m.in[:]))
}

// predictLow uses the previous negative flags and the positive flag of the previous magnitude.
func (m *MapCoder) predictLow(i int) uint32 {
	return m.predict(m.ul, m.uh, i, i-1, 0, &m.mixl)
}

// predictHigh uses the previous positive flags and the negative flag of the same magnitude.
func (m *MapCoder) predictHigh(i int) uint32 {
	return m.predict(m.uh, m.ul, i, i, 12, &m.mixh)
}

func (m *MapCoder) predictSSE(p1 uint32) uint32 {
	m.in[0], m.in[1] = m.sse.Predict(p1), p1
	return m.finalmix.Predict(m.in[:2])
}

func (m *MapCoder) update(bit int) {
	for _, idx := range m.pc {
		m.cnt[idx].Update(bit, mapCntRate)
	}
	m.cctx[m.px].Update(bit, mapCntRate)
	m.mix.Update(bit, mapMixRate)
	m.sse.Update(bit, mapCntSSERate)
	m.finalmix.Update(bit, mapMixSSERate)
}

// Encode codes both bitmaps into enc.
func (m *MapCoder) Encode(enc ac.Encoder) {
	for i := 1; i <= MapScale; i++ {
		b := bit(m.ul[i])
		enc.EncodeBitOne(m.predictLow(i), b)
		m.update(b)

		b = bit(m.uh[i])
		enc.EncodeBitOne(m.predictHigh(i), b)
		m.update(b)
	}
}

// Decode reconstructs both bitmaps from dec.
func (m *MapCoder) Decode(dec ac.Decoder) {
	for i := 1; i <= MapScale; i++ {
		b := dec.DecodeBitOne(m.predictLow(i))
		m.update(b)
		m.ul[i] = b != 0

		b = dec.DecodeBitOne(m.predictHigh(i))
		m.update(b)
		m.uh[i] = b != 0
	}
}
