package model

// An SSE refines a probability through an interpolated curve over the stretched domain.
// Two curves are kept, selected by the previously coded bit.
type SSE struct {
	dom            *Domain
	tscale, xscale int32
	curves         [2][]LinearCounter16

	lb     int
	pquant int32
}

// NewSSE returns a stage with n interpolation steps, initialized to the identity mapping.
func NewSSE(dom *Domain, n int) *SSE {
	s := &SSE{dom: dom, tscale: dom.Max}
	s.xscale = 2 * s.tscale / int32(n-1)
	if s.xscale == 0 {
		s.xscale = 1
	}
	for k := range s.curves {
		s.curves[k] = make([]LinearCounter16, n+1)
		for i := range s.curves[k] {
			p := dom.Inv(int32(i)*s.xscale - s.tscale)
			s.curves[k][i].P1 = uint16(clampP(int32(p)))
		}
	}
	return s
}

// Predict maps p1 through the curve of the last seen bit.
func (s *SSE) Predict(p1 uint32) uint32 {
	pq := min(2*s.tscale, max(0, s.dom.Fwd(p1)+s.tscale))
	s.pquant = min(pq/s.xscale, int32(len(s.curves[0])-2))
	pmod := pq - s.pquant*s.xscale
	c := s.curves[s.lb]
	pl := int32(c[s.pquant].P1)
	ph := int32(c[s.pquant+1].P1)
	px := (pl*(s.xscale-pmod) + ph*pmod) / s.xscale
	return clampP(px)
}

// Update moves the two bins around the last prediction toward bit.
func (s *SSE) Update(bit int, rate int32) {
	c := s.curves[s.lb]
	c[s.pquant].Update(bit, rate)
	c[s.pquant+1].Update(bit, rate)
	s.lb = bit
}
