// Package leafflux implements the iterative leaf-temperature / stomatal
// conductance / assimilation / transpiration solver: Farquhar-von
// Caemmerer-Berry photosynthesis coupled to Medlyn stomatal conductance
// and Penman-Monteith transpiration (spec §4.3).
package leafflux

import (
	"math"

	"github.com/ecotroll/troll/lookup"
)

// Physical constants (spec §4.3 unit conversion section and standard
// leaf-gas-exchange parameterizations).
const (
	cp        = 29.3  // J mol-1 K-1, molar heat capacity of air
	lambda    = 44000. // J/mol, latent heat of vaporization of water
	co2H2Orat = 1.6    // ratio of H2O to CO2 diffusivity through stomata
	maxIter   = 30
	tolTleaf  = 0.01 // degrees C
	daysPerSecToGPerTimestep = 15.7788 // 3600*365.25*12*1e-6, per spec §4.3
)

// Environment is the microclimate driving a single leaf layer's flux
// solve, already corrected for position within the canopy (spec §4.3
// inputs).
type Environment struct {
	AbsorbedPPFD float64 // umol photons m-2 s-1
	IncidentPPFD float64 // umol photons m-2 s-1, above the tree
	VPDAir       float64 // kPa
	TAir         float64 // degrees C
	Wind         float64 // m/s
	LWExtinction float64 // long-wave extinction factor
	PressurekPa  float64 // atmospheric pressure, kPa
}

// LeafParams are the per-tree, temperature-25C-reference leaf
// physiological parameters (spec §3 Tree fields).
type LeafParams struct {
	Vcmax25 float64 // umol m-2 s-1
	Jmax25  float64 // umol m-2 s-1
	Rdark25 float64 // umol m-2 s-1
	G0, G1  float64 // Medlyn stomatal model parameters
	Theta   float64 // curvature of the light-response (electron transport) curve
	Phi     float64 // quantum yield
	Absorptance float64
	DayResp     float64 // DAYRESP scalar on Rday
	CO2Ambient  float64 // umol/mol, Cair
}

// WaterStress carries the optional water-module stomatal/photosynthetic
// limitation factors (spec §4.5); when water is disabled both are 1.
type WaterStress struct {
	WSF   float64 // stomatal
	WSF_A float64 // photosynthetic capacity
}

// Result is the per-leaf-area outcome of SolveLeaf.
type Result struct {
	Anet  float64 // umol CO2 m-2 s-1
	E     float64 // mol H2O m-2 s-1
	Tleaf float64 // degrees C
}

// Solver binds the precomputed temperature-response tables.
type Solver struct {
	Tables *lookup.Tables
}

// New returns a Solver bound to tables.
func New(tables *lookup.Tables) *Solver { return &Solver{Tables: tables} }

// SolveLeaf runs the iterative leaf-temperature / conductance solve (spec
// §4.3, "Per-leaf solver (WATER on)"). When water is WaterStress{1,1} this
// degenerates to the no-water-module case.
func (s *Solver) SolveLeaf(env Environment, leaf LeafParams, water WaterStress) Result {
	vpd := env.VPDAir
	if vpd < 0.0005 {
		// VPD_a floored at 0.0005 kPa before stomatal call, spec §7.
		vpd = 0.0005
	}
	press := env.PressurekPa
	if press <= 0 {
		press = 101.3
	}

	tleaf := env.TAir
	var anet, e float64

	for iter := 0; iter < maxIter; iter++ {
		idx := s.Tables.Index(tleaf)
		km := s.Tables.Km[idx]
		gammaStar := s.Tables.GammaStar[idx]
		vcmax := leaf.Vcmax25 * s.Tables.VcmaxF[idx]
		jmax := leaf.Jmax25 * s.Tables.JmaxF[idx]
		rday := leaf.Rdark25 * s.Tables.RdarkF[idx] * leaf.DayResp

		vcmax *= water.WSF_A
		jmax *= water.WSF_A

		alphaI := leaf.Absorptance * leaf.Phi * env.AbsorbedPPFD
		j := nonRectangularHyperbola(alphaI, jmax, leaf.Theta)

		cs := leaf.CO2Ambient
		gfac := 1 + leaf.G1*water.WSF/math.Sqrt(vpd)

		ac := quadraticBranch(vcmax, km, gammaStar, cs, leaf.G0, gfac)
		aj := quadraticBranch(j/4, 2*gammaStar, gammaStar, cs, leaf.G0, gfac)

		anetGross := ac
		if aj < anetGross {
			anetGross = aj
		}
		anet = anetGross - rday

		gsC := leaf.G0 + gfac*anet/cs
		if gsC < leaf.G0 {
			gsC = leaf.G0
		}
		gsV := gsC * co2H2Orat

		rNi := 0.2188*env.AbsorbedPPFD + 0.0036*env.IncidentPPFD
		slope := esatSlope(tleaf)
		gamma := psychrometric(press)
		gb := boundaryLayerConductance(env.Wind)

		gv := gb * gsV / (gb + gsV)
		if gv <= 0 {
			// Penman-Monteith guards GV>0, spec §7.
			gv = 1e-6
		}

		eNew := penmanMonteith(rNi, vpd, slope, gamma, gb, gv, press)

		tleafNew := env.TAir + 0.25*(rNi-lambda*eNew)/(env.LWExtinction*cp*press/8.314/ (env.TAir+273.15))
		delta := tleafNew - tleaf
		tleaf = tleafNew
		e = eNew
		if math.Abs(delta) < tolTleaf {
			break
		}
	}

	if anet < -1e6 || math.IsNaN(anet) {
		anet = 0
	}
	if e < 0 || math.IsNaN(e) {
		e = 0
	}
	return Result{Anet: anet, E: e, Tleaf: tleaf}
}

// ClosedFormNoWater implements the no-water-module closed-form collapse
// described in spec §4.3: "Farquhar without water module collapses to a
// closed form with ci/ca = g1/(g1+sqrt(VPD))".
func (s *Solver) ClosedFormNoWater(env Environment, leaf LeafParams) Result {
	idx := s.Tables.Index(env.TAir)
	km := s.Tables.Km[idx]
	gammaStar := s.Tables.GammaStar[idx]
	vcmax := leaf.Vcmax25 * s.Tables.VcmaxF[idx]
	jmax := leaf.Jmax25 * s.Tables.JmaxF[idx]
	rday := leaf.Rdark25 * s.Tables.RdarkF[idx] * leaf.DayResp

	vpd := env.VPDAir
	if vpd < 0.0005 {
		vpd = 0.0005
	}
	ciOverCa := leaf.G1 / (leaf.G1 + math.Sqrt(vpd))
	ci := ciOverCa * leaf.CO2Ambient

	alphaI := leaf.Absorptance * leaf.Phi * env.AbsorbedPPFD
	j := nonRectangularHyperbola(alphaI, jmax, leaf.Theta)

	ac := vcmax * (ci - gammaStar) / (ci + km)
	aj := (j / 4) * (ci - gammaStar) / (ci + 2*gammaStar)
	a := ac
	if aj < a {
		a = aj
	}
	anet := a - rday
	return Result{Anet: anet, Tleaf: env.TAir}
}

// nonRectangularHyperbola solves the standard non-rectangular-hyperbola
// light-response curve for electron transport rate J.
func nonRectangularHyperbola(alphaI, jmax, theta float64) float64 {
	if theta <= 0 {
		theta = 0.001
	}
	sum := alphaI + jmax
	disc := sum*sum - 4*theta*alphaI*jmax
	if disc < 0 {
		disc = 0
	}
	return (sum - math.Sqrt(disc)) / (2 * theta)
}

// quadraticBranch solves the Medlyn-coupled Farquhar branch (Rubisco- or
// RuBP-limited, selected by the caller's choice of vmaxLike/kmLike) for
// gross assimilation, returning the larger root of A*x^2+B*x+C=0 as
// required by spec §4.3.
//
// Derivation: with gs = g0 + gfac*A/Cs and Ci = Cs - A/gs, substituting
// into A*(Ci+Km) = Vmax*(Ci-Gamma) and collecting terms in A yields:
//
//	Q = (Cs+Km)*gfac - Cs
//	P = (Cs+Km)*g0*Cs
//	Q2 = (Cs-Gamma)*gfac - Cs
//	P2 = (Cs-Gamma)*g0*Cs
//	Q*A^2 + (P - Vmax*Q2)*A - Vmax*P2 = 0
func quadraticBranch(vmaxLike, kmLike, gammaStar, cs, g0, gfac float64) float64 {
	q := (cs+kmLike)*gfac - cs
	p := (cs + kmLike) * g0 * cs
	q2 := (cs-gammaStar)*gfac - cs
	p2 := (cs - gammaStar) * g0 * cs

	a := q
	b := p - vmaxLike*q2
	c := -vmaxLike * p2

	if math.Abs(a) < 1e-12 {
		if b == 0 {
			return 0
		}
		return -c / b
	}
	disc := b*b - 4*a*c
	if disc < 0 {
		disc = 0
	}
	sq := math.Sqrt(disc)
	r1 := (-b + sq) / (2 * a)
	r2 := (-b - sq) / (2 * a)
	if r1 > r2 {
		return r1
	}
	return r2
}

// esatSlope approximates the slope of the saturation vapor pressure curve
// (kPa/K) at temperature tc (degrees C).
func esatSlope(tc float64) float64 {
	esat := 0.6108 * math.Exp(17.27*tc/(tc+237.3))
	return 4098 * esat / ((tc + 237.3) * (tc + 237.3))
}

// psychrometric returns the psychrometric constant (kPa/K) at the given
// pressure (kPa).
func psychrometric(pressKPa float64) float64 {
	const cpAir = 1.013e-3 // MJ kg-1 C-1
	const latentMJ = 2.45  // MJ/kg
	const ratio = 0.622
	return cpAir * pressKPa / (ratio * latentMJ)
}

// boundaryLayerConductance approximates leaf boundary-layer conductance to
// water vapor (mol m-2 s-1) from wind speed.
func boundaryLayerConductance(wind float64) float64 {
	if wind < 0.1 {
		wind = 0.1
	}
	return 0.147 * math.Sqrt(wind/0.01)
}

// penmanMonteith returns transpiration (mol H2O m-2 s-1) from the
// resistance-form Penman-Monteith equation.
func penmanMonteith(rNi, vpd, slope, gamma, gb, gv, pressKPa float64) float64 {
	if gv <= 0 {
		gv = 1e-6
	}
	rhoCp := 1200. // J m-3 K-1, approx air heat capacity per volume
	num := slope*rNi + rhoCp*vpd*gb
	den := slope + gamma*(1+gb/gv)
	if den <= 0 {
		return 0
	}
	eMassFlux := num / den / lambda // kg m-2 s-1 (approx)
	eMol := eMassFlux / 0.018
	if eMol < 0 {
		eMol = 0
	}
	return eMol
}
