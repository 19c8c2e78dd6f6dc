package model

import (
	"math/rand"
	"testing"

	"github.com/fumin/sac/ac"
)

func TestDomain(t *testing.T) {
	dom := LogDomain()
	if dom != LogDomain() {
		t.Fatalf("LogDomain is rebuilt on every call")
	}
	prev := dom.Fwd(0)
	for p := uint32(1); p < ac.PScale; p++ {
		x := dom.Fwd(p)
		if x < prev {
			t.Fatalf("Fwd(%d) = %d < Fwd(%d) = %d", p, x, p-1, prev)
		}
		prev = x

		q := int32(dom.Inv(x))
		if d := q - int32(p); d > 40 || d < -40 {
			t.Errorf("Inv(Fwd(%d)) = %d", p, q)
		}
	}
	if dom.Min != -dom.Max {
		t.Errorf("asymmetric domain %d %d", dom.Min, dom.Max)
	}
	if got := dom.Inv(0); got != ac.PScale/2 {
		t.Errorf("Inv(0) = %d", got)
	}
}

func TestLinearCounter16(t *testing.T) {
	c := NewLinearCounter16()
	c.Update(1, 500)
	if c.P1 != 16634 {
		t.Fatalf("%d", c.P1)
	}
	for i := 0; i < 10000; i++ {
		c.Update(1, 500)
	}
	// The rounded step vanishes once the error drops below PScale/(2*rate).
	if c.P1 < 32700 {
		t.Errorf("%d", c.P1)
	}
	for i := 0; i < 10000; i++ {
		c.Update(0, 500)
	}
	if c.P1 > 40 {
		t.Errorf("%d", c.P1)
	}
}

func TestLinearCounterLimit(t *testing.T) {
	c := NewLinearCounterLimit()
	c.Update(1, 150)
	if c.P1 != 20480 {
		t.Fatalf("%d", c.P1)
	}

	// With a long history the counter estimates the frequency of ones.
	rnd := rand.New(rand.NewSource(1))
	c = NewLinearCounterLimit()
	for i := 0; i < 20000; i++ {
		bit := 0
		if rnd.Float64() < 0.2 {
			bit = 1
		}
		c.Update(bit, 300)
	}
	if p := float64(c.P1) / ac.PScale; p < 0.1 || p > 0.3 {
		t.Errorf("%f", p)
	}
}

func TestNMixLogistic(t *testing.T) {
	m := NewNMixLogistic(LogDomain(), 2)
	if p := m.Predict([]uint32{30000, 100}); p != ac.PScale/2 {
		t.Fatalf("untrained mixer predicted %d", p)
	}

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		bit := rnd.Intn(2)
		p := uint32(2000)
		if bit == 1 {
			p = 30000
		}
		m.Predict([]uint32{p, ac.PScale / 2})
		m.Update(bit, 1000)
	}
	if p := m.Predict([]uint32{30000, ac.PScale / 2}); p <= 30000 {
		t.Errorf("one: %d", p)
	}
	if p := m.Predict([]uint32{2000, ac.PScale / 2}); p >= 2768 {
		t.Errorf("zero: %d", p)
	}
}

func TestMix2(t *testing.T) {
	m := NewMix2()
	if p := m.Predict(1000, 3000); p != 2000 {
		t.Fatalf("%d", p)
	}
	for i := 0; i < 5000; i++ {
		bit := i & 1
		good, bad := uint32(4000), uint32(28000)
		if bit == 1 {
			good, bad = bad, good
		}
		m.Predict(bad, good)
		m.Update(bit, 250)
	}
	if p := m.Predict(4000, 28000); p < 27000 {
		t.Errorf("%d", p)
	}
}

func TestSSE(t *testing.T) {
	s := NewSSE(LogDomain(), 15)
	prev := uint32(0)
	for p := uint32(1); p < ac.PScale; p += 97 {
		q := s.Predict(p)
		if q < prev {
			t.Fatalf("SSE(%d) = %d < %d", p, q, prev)
		}
		prev = q
	}
	if q := s.Predict(ac.PScale / 2); q < ac.PScale/2-100 || q > ac.PScale/2+100 {
		t.Fatalf("%d", q)
	}

	before := s.Predict(20000)
	for i := 0; i < 100; i++ {
		s.Predict(20000)
		s.Update(1, 250)
	}
	if after := s.Predict(20000); after <= before {
		t.Errorf("%d <= %d", after, before)
	}
}
