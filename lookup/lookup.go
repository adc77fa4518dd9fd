// Package lookup precomputes the temperature-response curves, the
// radiation-attenuation (absorbed/average flux) table and the relative
// crown-voxel spiral order used throughout a TROLL simulation. VPD and
// wind are not tabulated here: the below-canopy VPD and temperature
// decrements are computed directly in package voxel, and the wind profile
// in package soilwater. Everything here is built once at startup and is
// read-only thereafter (spec §5, "Lookup tables: allocated once, read-only
// thereafter").
package lookup

import (
	"math"
)

// Physical/physiological constants used to build the temperature-response
// curves. These mirror the Farquhar-von Caemmerer-Berry parameterization
// referenced in spec §4.3.
const (
	rgas        = 8.314   // J mol-1 K-1
	tRef        = 298.15  // K, reference temperature (25 C)
	eaKm        = 79430.0 // J/mol, activation energy for Km(T)
	eaGammaStar = 37830.0 // J/mol, activation energy for Gamma*(T)
	eaVcmax     = 65330.0 // J/mol
	eaJmax      = 43540.0 // J/mol
	edJmax      = 200000.0
	sJmax       = 650.0
	eaRdark     = 46390.0 // J/mol
)

// temperature bin resolution used for the cached curves (spec §4.3: "cached
// tables (0.1°C bins)").
const (
	tMinC    = -20.0
	tMaxC    = 55.0
	tBinSize = 0.1
)

// Tables holds every precomputed curve and table needed by the leaf flux
// solver, the voxel field and the crown geometry spiral order.
type Tables struct {
	// Temperature axis, degrees C, shared by every f(T) curve below.
	TAxis []float64

	Km        []float64 // Michaelis-Menten constant for Rubisco, Pa-equivalent units folded into Farquhar usage
	GammaStar []float64 // CO2 compensation point
	VcmaxF    []float64 // temperature scaling factor for Vcmax, relative to 25C
	JmaxF     []float64 // temperature scaling factor for Jmax, relative to 25C
	RdarkF    []float64 // temperature scaling factor for Rdark, relative to 25C

	// Absorbed/average flux lookup, indexed by (int(aPrev*20), int(delta*20)).
	// See spec §4.1.
	absorbed   [][]float64
	avgFlux    [][]float64
	aPrevCeil  float64
	deltaCeil  float64
	aPrevBins  int
	deltaBins  int
	binsPerLAI float64 // 20, per spec (int(x*20))
}

// NewTables builds every table. kpar is the PAR extinction coefficient used
// by the Beer-Lambert kernel (spec §4.1); it is a simulation-level parameter, not a lookup constant,
// but the absorbed-flux table is parameterized on it, so it is baked into
// the table at construction time.
func NewTables(kpar float64) *Tables {
	t := &Tables{binsPerLAI: 20, aPrevCeil: 19.95, deltaCeil: 9.95}
	t.buildTemperatureCurves()
	t.buildAbsorbedFluxTable(kpar)
	return t
}

func (t *Tables) buildTemperatureCurves() {
	n := int((tMaxC-tMinC)/tBinSize) + 1
	t.TAxis = make([]float64, n)
	t.Km = make([]float64, n)
	t.GammaStar = make([]float64, n)
	t.VcmaxF = make([]float64, n)
	t.JmaxF = make([]float64, n)
	t.RdarkF = make([]float64, n)
	for i := 0; i < n; i++ {
		tc := tMinC + float64(i)*tBinSize
		t.TAxis[i] = tc
		tk := tc + 273.15
		t.Km[i] = arrhenius(1.0, eaKm, tk)
		t.GammaStar[i] = arrhenius(1.0, eaGammaStar, tk)
		t.VcmaxF[i] = arrhenius(1.0, eaVcmax, tk)
		t.JmaxF[i] = peaked(1.0, eaJmax, edJmax, sJmax, tk)
		t.RdarkF[i] = arrhenius(1.0, eaRdark, tk)
	}
}

// arrhenius evaluates the standard Arrhenius temperature-scaling function
// relative to 25 C.
func arrhenius(a0, ea, tk float64) float64 {
	return a0 * math.Exp(ea*(tk-tRef)/(tRef*rgas*tk))
}

// peaked evaluates a peaked Arrhenius function (used for Jmax, which
// declines at high temperature), per the standard Medlyn/Farquhar
// parameterization.
func peaked(a0, ea, ed, s, tk float64) float64 {
	num := arrhenius(a0, ea, tk)
	den := 1 + math.Exp((s*tk-ed)/(rgas*tk))
	denRef := 1 + math.Exp((s*tRef-ed)/(rgas*tRef))
	return num * denRef / den
}

// Index returns the bin index for temperature tc (degrees C), clamped to
// the table's range.
func (t *Tables) Index(tc float64) int {
	i := int(math.Round((tc - tMinC) / tBinSize))
	if i < 0 {
		i = 0
	}
	if i >= len(t.TAxis) {
		i = len(t.TAxis) - 1
	}
	return i
}

func (t *Tables) buildAbsorbedFluxTable(kpar float64) {
	t.aPrevBins = int(t.aPrevCeil*t.binsPerLAI) + 1
	t.deltaBins = int(t.deltaCeil*t.binsPerLAI) + 1
	t.absorbed = make([][]float64, t.aPrevBins)
	t.avgFlux = make([][]float64, t.aPrevBins)
	for i := 0; i < t.aPrevBins; i++ {
		t.absorbed[i] = make([]float64, t.deltaBins)
		t.avgFlux[i] = make([]float64, t.deltaBins)
		aPrev := float64(i) / t.binsPerLAI
		for j := 0; j < t.deltaBins; j++ {
			delta := float64(j) / t.binsPerLAI
			if delta <= 0 {
				// Δ guarded against zero in the absorption kernel, spec §7.
				t.absorbed[i][j] = 0
				t.avgFlux[i][j] = math.Exp(-kpar * aPrev)
				continue
			}
			above := math.Exp(-kpar * aPrev)
			within := 1 - math.Exp(-kpar*delta)
			t.absorbed[i][j] = above * within / delta
			t.avgFlux[i][j] = above * within / (kpar * delta)
		}
	}
}

// Absorbed returns absorbed-PPFD-per-leaf-area in a voxel with aPrev leaf
// area above it and delta leaf area within it (spec §4.1).
func (t *Tables) Absorbed(aPrev, delta float64) float64 {
	i, j := t.fluxIndex(aPrev, delta)
	return t.absorbed[i][j]
}

// AverageFlux returns the corresponding average transmitted flux fraction.
func (t *Tables) AverageFlux(aPrev, delta float64) float64 {
	i, j := t.fluxIndex(aPrev, delta)
	return t.avgFlux[i][j]
}

func (t *Tables) fluxIndex(aPrev, delta float64) (int, int) {
	if aPrev > t.aPrevCeil {
		aPrev = t.aPrevCeil
	}
	if aPrev < 0 {
		aPrev = 0
	}
	if delta > t.deltaCeil {
		delta = t.deltaCeil
	}
	if delta < 0 {
		delta = 0
	}
	i := int(aPrev * t.binsPerLAI)
	j := int(delta * t.binsPerLAI)
	if i >= t.aPrevBins {
		i = t.aPrevBins - 1
	}
	if j >= t.deltaBins {
		j = t.deltaBins - 1
	}
	return i, j
}

// Offset is a relative (drow, dcol) crown-voxel position.
type Offset struct {
	DRow, DCol int
	Dist2      int
}

// SpiralOrder returns the 51x51 relative-offset table ordered by squared
// Euclidean distance from the center, with a small deterministic
// perturbation applied so that filled-gap placements do not create
// artefact regularity (spec §4.2: "exchange positions 5<->8, 12<->15, ...
// on stride 7, distance 3").
func SpiralOrder() []Offset {
	const half = 25
	offsets := make([]Offset, 0, (2*half+1)*(2*half+1))
	for dr := -half; dr <= half; dr++ {
		for dc := -half; dc <= half; dc++ {
			offsets = append(offsets, Offset{DRow: dr, DCol: dc, Dist2: dr*dr + dc*dc})
		}
	}
	stableSortByDist(offsets)
	shuffleStride7Distance3(offsets)
	return offsets
}

// stableSortByDist performs an insertion-based stable sort on squared
// distance; deterministic tie-breaking is inherited from the generation
// order above (row-major), matching "break ties arbitrarily but
// deterministically" in spec §4.2.
func stableSortByDist(o []Offset) {
	for i := 1; i < len(o); i++ {
		v := o[i]
		j := i - 1
		for j >= 0 && o[j].Dist2 > v.Dist2 {
			o[j+1] = o[j]
			j--
		}
		o[j+1] = v
	}
}

// shuffleStride7Distance3 exchanges entries at positions 5<->8, 12<->15,
// ... every stride of 7, each with the entry 3 positions further on. The
// swap is unconditional and runs over the whole table, per spec §4.2's
// literal description, so every entry ends at most 3 positions from its
// sorted place.
func shuffleStride7Distance3(o []Offset) {
	const stride = 7
	const distanceBand = 3
	for base := 5; base+distanceBand < len(o); base += stride {
		o[base], o[base+distanceBand] = o[base+distanceBand], o[base]
	}
}

// MonotonicDecreasing reports whether v is non-increasing, used to
// validate the LAI3D top-down accumulation invariant (spec §3, I8) on
// lookup-derived axes.
func MonotonicDecreasing(v []float64) bool {
	for i := 1; i < len(v); i++ {
		if v[i] > v[i-1] {
			return false
		}
	}
	return true
}
