// Package rng provides the single deterministic random stream used
// throughout a TROLL simulation and the non-uniform samplers built on top
// of it: Rayleigh dispersal radii, lognormal intraspecific multipliers,
// and the sequential-binomial decomposition of a multinomial draw.
//
// The core simulation is single-threaded (see scheduler.go in package
// troll), so
// one *rand.Rand owned by the Simulation and threaded explicitly through
// calls is sufficient to make two runs with the same seed bit-identical,
// matching the Determinism law in the specification.
package rng

import (
	"math"
	"math/rand"
)

// Stream wraps the process-wide deterministic generator. It is never
// shared across goroutines; the core kernel runs single-threaded.
type Stream struct {
	r *rand.Rand
}

// New returns a Stream seeded deterministically from seed.
func New(seed int64) *Stream {
	return &Stream{r: rand.New(rand.NewSource(seed))}
}

// Float64 returns a uniform draw in [0,1).
func (s *Stream) Float64() float64 { return s.r.Float64() }

// Intn returns a uniform draw in [0,n).
func (s *Stream) Intn(n int) int { return s.r.Intn(n) }

// UniformAngle draws an angle in [0, 2π).
func (s *Stream) UniformAngle() float64 { return s.r.Float64() * 2 * math.Pi }

// Rayleigh draws a radius from a Rayleigh distribution with scale ds,
// used for seed dispersal distance (spec §4.7): r = ds*sqrt(-2*ln(U)).
func (s *Stream) Rayleigh(ds float64) float64 {
	u := s.r.Float64()
	if u <= 0 {
		u = 1e-12
	}
	return ds * math.Sqrt(-2*math.Log(u))
}

// Normal draws N(mean, sd).
func (s *Stream) Normal(mean, sd float64) float64 {
	return mean + sd*s.r.NormFloat64()
}

// Lognormal draws a lognormal variate with the given underlying normal
// mean and standard deviation (mean ≈ 1 when meanLog=0, used for the
// height/CR/CD/dbhmax intraspecific multipliers in spec §3).
func (s *Stream) Lognormal(meanLog, sdLog float64) float64 {
	return math.Exp(s.Normal(meanLog, sdLog))
}

// DeviceIndex draws a deterministic intraspecific-multiplier table index
// in [0, n), grounded in the source's dev_rand = uniform_int(0, 10000)
// convention described in spec §9 (preserved verbatim, including its
// documented off-by-one ambiguity — see DESIGN.md).
func (s *Stream) DeviceIndex(n int) int { return s.Intn(n) }

// Binomial draws a Binomial(n, p) variate via direct simulation. n is
// expected to be small (per-site multinomial decomposition), so a direct
// sum of Bernoulli trials is both simple and exact.
func (s *Stream) Binomial(n int, p float64) int {
	if p <= 0 || n <= 0 {
		return 0
	}
	if p >= 1 {
		return n
	}
	k := 0
	for i := 0; i < n; i++ {
		if s.r.Float64() < p {
			k++
		}
	}
	return k
}

// Multinomial decomposes a draw of n total trials across the categories
// with the given probabilities (which need not be pre-normalized) into
// per-category counts using the standard sequential-conditional-binomial
// reduction: draw category 0 as Binomial(n, p0/sum), then category 1 as
// Binomial(remaining, p1/remaining-sum), etc. This avoids a dependency on
// GSL's gsl_ran_multinomial (spec §9) while producing the same
// distribution.
func (s *Stream) Multinomial(n int, p []float64) []int {
	counts := make([]int, len(p))
	remaining := n
	var total float64
	for _, v := range p {
		total += v
	}
	for i, v := range p {
		if remaining <= 0 || total <= 0 {
			break
		}
		frac := v / total
		if frac > 1 {
			frac = 1
		}
		k := s.Binomial(remaining, frac)
		counts[i] = k
		remaining -= k
		total -= v
	}
	return counts
}

// Choice picks an index in [0, len(weights)) with probability proportional
// to weights; when the weights sum to zero or less it picks uniformly.
func (s *Stream) Choice(weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return s.Intn(len(weights))
	}
	target := s.r.Float64() * total
	var acc float64
	for i, w := range weights {
		acc += w
		if target <= acc {
			return i
		}
	}
	return len(weights) - 1
}
