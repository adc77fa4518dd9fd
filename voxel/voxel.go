// Package voxel implements the 3D leaf-area-density grid (LAI3D) and its
// Beer-Lambert incident-light kernel (spec §4.1).
package voxel

import (
	"math"

	"github.com/ctessum/sparse"
	"github.com/ecotroll/troll/lookup"
)

// Field is the LAI3D voxel grid: (HMax+1) height layers by Sites ground
// cells (cols*rows plus 2*SBORD border sites, spec §3). It wraps a
// ctessum/sparse.DenseArray the same way the teacher wraps gridded
// meteorology fields (CTMData in vargrid.go), since both are dense,
// index-addressed numeric grids allocated once and refilled every timestep.
type Field struct {
	HMax   int
	Cols   int
	Rows   int
	SBORD  int
	Sites  int
	Kpar   float64
	Tables *lookup.Tables

	data *sparse.DenseArray // shape [HMax+1, Sites]
}

// New allocates a Field. The backing array is allocated once; Clear
// zeroes it in place every timestep rather than reallocating (spec §5
// resource policy: "all large arrays allocated once... freed at
// shutdown").
func New(hmax, cols, rows, sbord int, kpar float64, tables *lookup.Tables) *Field {
	sites := cols*rows + 2*sbord
	return &Field{
		HMax: hmax, Cols: cols, Rows: rows, SBORD: sbord, Sites: sites,
		Kpar: kpar, Tables: tables,
		data: sparse.ZerosDense(hmax+1, sites),
	}
}

// Clear zeroes the field at the start of every timestep (spec §3:
// "Initialised zero every timestep").
func (f *Field) Clear() {
	for i := range f.data.Elements {
		f.data.Elements[i] = 0
	}
}

// Add accumulates raw leaf area density into voxel (h, site). Called once
// per crown voxel by CrownGeometry.ForEachVoxel before AccumulateTopDown
// converts the raw per-layer values into the cumulative-from-top LAI3D
// values the rest of the model reads.
func (f *Field) Add(h, site int, density float64) {
	if h < 0 || h > f.HMax || site < 0 || site >= f.Sites {
		return
	}
	f.data.Set(f.data.Get(h, site)+density, h, site)
}

// AccumulateTopDown turns the raw per-layer leaf area densities into
// cumulative-from-top totals, so that LAI3D[h][site] is the total leaf
// area index at and above height h (spec invariant I8: LAI3D[h] >=
// LAI3D[h+1]).
func (f *Field) AccumulateTopDown() {
	for s := 0; s < f.Sites; s++ {
		for h := f.HMax - 1; h >= 0; h-- {
			f.data.Set(f.data.Get(h, s)+f.data.Get(h+1, s), h, s)
		}
	}
}

// At returns LAI3D[h][site], the cumulative leaf area index at and above
// height h.
func (f *Field) At(h, site int) float64 {
	if h < 0 {
		h = 0
	}
	if h > f.HMax {
		return 0
	}
	return f.data.Get(h, site)
}

// Above returns the leaf area strictly above height h (LAI3D[h+1]).
func (f *Field) Above(h, site int) float64 {
	if h+1 > f.HMax {
		return 0
	}
	return f.data.Get(h+1, site)
}

// Transmittance returns exp(-kpar*LAI3D[h][site]) in [0,1].
func (f *Field) Transmittance(h, site int) float64 {
	v := math.Exp(-f.Kpar * f.At(h, site))
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}

// IncidentPPFD returns the photon flux incident at (h, site), given the
// day's shortwave/PAR irradiance wDaily above the canopy (spec §4.1).
func (f *Field) IncidentPPFD(h, site int, wDaily float64) float64 {
	aPrev := f.Above(h, site)
	return wDaily * f.Tables.AverageFlux(aPrev, 1.0)
}

// AbsorbedPPFD returns the absorbed-flux-per-leaf-area within voxel (h,
// site) given the day's irradiance above canopy.
func (f *Field) AbsorbedPPFD(h, site int, wDaily float64) float64 {
	aPrev := f.Above(h, site)
	delta := f.At(h, site) - aPrev
	if delta < 0 {
		delta = 0
	}
	return wDaily * f.Tables.Absorbed(aPrev, delta)
}

// VPDDecrement computes the below-canopy VPD reduction at cumulative
// leaf-area-above labove over a layer of thickness deltaL (spec §4.1).
// Floored at 0.25 once cumulative LAI reaches 7.
func VPDDecrement(labove, deltaL float64) float64 {
	if labove >= 7 {
		return 0.25
	}
	if deltaL <= 0 {
		deltaL = 1e-6
	}
	rem := 7 - labove
	remBelow := rem - deltaL
	if remBelow < 0 {
		remBelow = 0
	}
	term := (math.Pow(rem, 1.5) - math.Pow(remBelow, 1.5)) / deltaL
	v := 0.25 + 0.188982*term
	if v < 0.25 {
		v = 0.25
	}
	return v
}

// TemperatureDecrement computes the below-canopy temperature reduction
// (degrees C), capped at 3 (spec §4.1).
func TemperatureDecrement(labove, deltaL float64) float64 {
	d := 0.4285714 * (labove + 0.5*deltaL)
	if d > 3 {
		d = 3
	}
	if d < 0 {
		d = 0
	}
	return d
}
