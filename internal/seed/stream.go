package seed

import (
	"math"
	"math/rand/v2"
)

// Stream is a single-owner random source with the distributions the
// simulation needs. It is not safe for concurrent use.
type Stream struct {
	r     *rand.Rand
	draws int
}

// Float64 returns a uniform value in [0, 1).
func (s *Stream) Float64() float64 {
	s.draws++
	return s.r.Float64()
}

// Draws reports how many uniform values the stream has produced.
func (s *Stream) Draws() int { return s.draws }

// Bernoulli returns true with probability p.
func (s *Stream) Bernoulli(p float64) bool {
	return s.Float64() < p
}

// Uniform returns a value in [lo, hi).
func (s *Stream) Uniform(lo, hi float64) float64 {
	return lo + s.Float64()*(hi-lo)
}

// IntRange returns an integer in [lo, hi] inclusive using exactly one draw.
func (s *Stream) IntRange(lo, hi int) int {
	if hi <= lo {
		s.Float64()
		return lo
	}
	n := lo + int(math.Floor(s.Float64()*float64(hi-lo+1)))
	if n > hi {
		n = hi
	}
	return n
}

// Normal returns a normal variate via the Box-Muller transform. It always
// consumes two draws.
func (s *Stream) Normal(mu, sigma float64) float64 {
	u1 := 1 - s.Float64()
	u2 := s.Float64()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mu + sigma*z
}

// LogNormal returns exp(Normal(mu, sigma)).
func (s *Stream) LogNormal(mu, sigma float64) float64 {
	return math.Exp(s.Normal(mu, sigma))
}

// Gamma returns a Gamma(shape, 1) variate using Marsaglia-Tsang.
func (s *Stream) Gamma(shape float64) float64 {
	if shape <= 0 {
		return 0
	}
	if shape < 1 {
		u := s.Float64()
		return s.Gamma(shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := s.Normal(0, 1)
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := s.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// Beta returns a Beta(a, b) variate in [0, 1].
func (s *Stream) Beta(a, b float64) float64 {
	x := s.Gamma(a)
	y := s.Gamma(b)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// Choice picks an index with probability proportional to its weight using one
// draw. It returns -1 when no weight is positive.
func (s *Stream) Choice(weights []float64) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}

	target := s.Float64() * total
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		if target < w {
			return i
		}
		target -= w
	}
	return last
}
