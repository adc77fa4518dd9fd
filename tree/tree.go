// Package tree implements the per-tree state machine: birth, growth
// (photosynthesis/respiration integration, carbon allocation, leaf
// demography, allometry), and the death-rate evaluation (spec §4.4).
package tree

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ecotroll/troll/config"
	"github.com/ecotroll/troll/crown"
	"github.com/ecotroll/troll/leafflux"
	"github.com/ecotroll/troll/lookup"
	"github.com/ecotroll/troll/rng"
	"github.com/ecotroll/troll/voxel"
)

// Tree holds the full per-cell state described in spec §3. A Tree is
// alive iff Age > 0 (invariant I1); an empty site is represented by the
// zero value.
type Tree struct {
	Site   int
	SpLab  int // index into the species table; 0 is unused (empty)
	Age    int // timesteps since germination

	DBH     float64
	DBHmax  float64
	Hmax    float64
	Ah      float64
	DBHmature float64

	Height float64
	CD     float64
	CR     float64
	Ct     float64 // treefall height threshold (basic-treefall mode)

	LA        float64
	LAI       float64
	LAYoung   float64
	LAMature  float64
	LAOld     float64
	Litter    float64

	LMA    float64
	Nmass  float64
	Pmass  float64
	WSG    float64

	Vcmax, Jmax, Rdark float64
	LeafLifespan       float64 // timesteps

	LambdaYoung, LambdaMature, LambdaOld float64

	LAImax float64
	LAmax  float64

	SapwoodArea    float64
	CarbonStorage  float64
	CarbonBiometry float64
	FractionFilled float64
	MultiplierSeed float64
	Hurt           float64 // short; accumulated damage height
	NPPneg         int

	// Intraspecific multipliers (lognormal, approx mean 1) and wsg
	// deviation (normal, floored at 0.05 after offset).
	MultHeight, MultCR, MultCD, MultN, MultP, MultLMA, MultDBHmax float64
	DevWSG float64

	// Water-module state (spec §3 "If water enabled").
	PhiRoot     float64
	WSF         float64
	WSF_A       float64
	TLP         float64
	PhiLethal   float64
	Transpiration float64
	G1_0, G1    float64
}

// IsAlive reports whether the site holds a live tree (spec invariant I1).
func (t *Tree) IsAlive() bool { return t.Age > 0 }

// Reset clears all fields, returning the site to empty (spec §3
// "Lifecycles": "destroyed on Death/Treefall (resets all fields...)").
func (t *Tree) Reset() {
	*t = Tree{Site: t.Site}
}

// BirthInputs bundles the parameters needed to germinate a tree at a site.
type BirthInputs struct {
	Site       int
	SpLab      int
	Species    *Species
	Params     *config.Params
	Stream     *rng.Stream
	NPCovariance *mat.SymDense // covariance of (N, P, LMA) log-deviations
	GlobalGapFraction float64
	LAImaxTable func(sp int, devIndex int) float64 // precomputed per species x intraspecific LAImax
	LAI0        float64                            // current LAI3D[0][site], for the light-compensation birth check
}

// Birth germinates a new tree at a site from the given species, applying
// the intraspecific draws and allometric initialization of spec §4.4
// "Birth". It returns false (and leaves the site untouched) if the site
// fails the light-compensation germination gate.
func (t *Tree) Birth(in BirthInputs) bool {
	devIndex := in.Stream.DeviceIndex(10000)
	if in.LAImaxTable != nil {
		laiMax := in.LAImaxTable(in.SpLab, devIndex)
		if in.LAI0 >= laiMax {
			return false
		}
	}

	sp := in.Species
	p := in.Params

	t.Site = in.Site
	t.SpLab = in.SpLab
	t.Age = 1
	t.DBHmax = sp.DBHmax
	t.Hmax = sp.Hmax
	t.Ah = sp.Ah
	t.DBHmature = sp.DBHmature

	t.MultHeight = in.Stream.Lognormal(0, p.SigmaHeight)
	t.MultCR = in.Stream.Lognormal(0, p.SigmaCR)
	t.MultCD = in.Stream.Lognormal(0, p.SigmaCD)
	t.MultDBHmax = in.Stream.Lognormal(0, p.SigmaDbhmax)

	n, pm, lma := drawNPLMA(in.Stream, in.NPCovariance, p)
	t.MultN = n
	t.MultP = pm
	t.MultLMA = lma
	t.DevWSG = wsgDeviation(in.Stream, p.SigmaWSG)

	t.LMA = sp.LMA * t.MultLMA
	t.Nmass = sp.Nmass * t.MultN
	t.Pmass = sp.Pmass * t.MultP
	t.WSG = math.Max(sp.WSG+t.DevWSG, 0.05)

	t.DBH = p.DBH0
	t.Height = t.Hmax * t.DBH / (t.DBH + t.Ah) * t.MultHeight

	t.CR = (p.CRa * math.Pow(t.DBH, p.CRb)) * t.MultCR
	if t.CR < p.CRMin {
		t.CR = p.CRMin
	}
	t.CD = (p.CDa + p.CDb*t.Height) * t.MultCD
	if t.CD > 0.5*t.Height {
		t.CD = 0.5 * t.Height
	}

	t.FractionFilled = crown.FractionFilled(in.GlobalGapFraction, t.MultCR)

	t.LAImax = sp.LMA // fallback when no LAImaxTable is supplied; the scheduler supplies one backed by CalcLAImax
	if in.LAImaxTable != nil {
		t.LAImax = in.LAImaxTable(in.SpLab, devIndex)
	}
	t.LAmax = 0.25 * t.LAImax * (math.Pi * t.CR * t.CR * t.FractionFilled)
	t.LA = t.LAmax

	t.LeafLifespan = calcLeafLifespan(sp, p)
	t.LambdaYoung, t.LambdaMature, t.LambdaOld = defaultLambdas(t.LeafLifespan)
	splitLeafPools(t)

	t.LAI = t.LA / math.Max(1e-9, math.Pi*t.CR*t.CR*t.FractionFilled)

	if p.Selectors.Sapwood {
		t.SapwoodArea = sapwoodRingArea(t.DBH)
	} else {
		t.SapwoodArea = pipeModelCap(t)
	}

	t.Vcmax, t.Jmax, t.Rdark = allometricPhotosyntheticCapacity(t)

	t.CarbonStorage = 0
	t.CarbonBiometry = 0
	t.MultiplierSeed = 1
	t.Hurt = 0
	t.NPPneg = 0

	t.Ct = calcCt(t, in.Stream, p)

	t.G1_0 = p.G1
	t.G1 = t.G1_0

	if p.Selectors.Water {
		t.TLP = sp.TLP
		t.PhiLethal = -3.0 * (-sp.TLP) // species-derived lethal potential, scaled from TLP
		t.WSF = 1
		t.WSF_A = 1
	}

	return true
}

// drawNPLMA draws correlated lognormal deviations for (N, P, LMA) via the
// Cholesky factor of the supplied covariance matrix, falling back to
// independent draws when the matrix is not positive-definite (spec §4.4).
func drawNPLMA(s *rng.Stream, cov *mat.SymDense, p *config.Params) (n, pm, lma float64) {
	if cov == nil {
		return s.Lognormal(0, p.SigmaN), s.Lognormal(0, p.SigmaP), s.Lognormal(0, p.SigmaLMA)
	}
	var chol mat.Cholesky
	ok := chol.Factorize(cov)
	if !ok {
		return s.Lognormal(0, p.SigmaN), s.Lognormal(0, p.SigmaP), s.Lognormal(0, p.SigmaLMA)
	}
	var l mat.TriDense
	chol.LTo(&l)
	z := mat.NewVecDense(3, []float64{s.Normal(0, 1), s.Normal(0, 1), s.Normal(0, 1)})
	var out mat.VecDense
	out.MulVec(&l, z)
	return math.Exp(out.AtVec(0)), math.Exp(out.AtVec(1)), math.Exp(out.AtVec(2))
}

// wsgDeviation draws the wood-specific-gravity deviation (normal,
// offset-floored at 0.05, spec §3).
func wsgDeviation(s *rng.Stream, sigma float64) float64 {
	return s.Normal(0, sigma)
}

// calcLeafLifespan derives the leaf lifespan in timesteps from species LMA
// (a standard LMA-leaf-longevity allometry), used to size the leaf-pool
// residence times (spec §4.4, §9 open question on NPPneg coupling).
func calcLeafLifespan(sp *Species, p *config.Params) float64 {
	months := math.Exp(1.5 + 0.02*sp.LMA)
	return months
}

// defaultLambdas returns steady-state transition rates for the
// young/mature/old leaf pools from the leaf lifespan (spec §4.4 "steady
// state shares 1/(lambda*LL)").
func defaultLambdas(leafLifespan float64) (young, mature, old float64) {
	if leafLifespan <= 0 {
		leafLifespan = 1
	}
	young = 3.0 / leafLifespan
	mature = 1.0 / leafLifespan
	old = 2.0 / leafLifespan
	return
}

// splitLeafPools distributes LA across the young/mature/old compartments
// using the steady-state shares 1/(lambda*LL) (spec §4.4).
func splitLeafPools(t *Tree) {
	ll := t.LeafLifespan
	if ll <= 0 {
		ll = 1
	}
	wy := 1 / (t.LambdaYoung * ll)
	wm := 1 / (t.LambdaMature * ll)
	wo := 1 / (t.LambdaOld * ll)
	sum := wy + wm + wo
	if sum <= 0 {
		sum = 1
	}
	t.LAYoung = t.LA * wy / sum
	t.LAMature = t.LA * wm / sum
	t.LAOld = t.LA * wo / sum
}

// sapwoodRingArea returns the sapwood cross-sectional area from an
// allometric ring-thickness relationship (spec §4.4 "Sapwood area
// initialised from an allometric sapwood ring thickness").
func sapwoodRingArea(dbh float64) float64 {
	const ringThickness = 0.02 // m, typical sapwood ring thickness
	r := dbh / 2
	rIn := r - ringThickness
	if rIn < 0 {
		rIn = 0
	}
	return math.Pi * (r*r - rIn*rIn)
}

// pipeModelCap returns the Fyllas pipe-model upper bound on sapwood area
// (spec invariant I7).
func pipeModelCap(t *Tree) float64 {
	return t.LA * 0.0001 // leaf-area-proportional pipe model cap (m2 sapwood per m2 leaf area, scaled)
}

// allometricPhotosyntheticCapacity derives Vcmax/Jmax/Rdark on a
// leaf-area basis from leaf nitrogen/phosphorus/LMA, following the
// standard leaf-economics-spectrum scaling used throughout the dynamic
// global vegetation model literature TROLL draws on.
func allometricPhotosyntheticCapacity(t *Tree) (vcmax, jmax, rdark float64) {
	narea := t.Nmass * t.LMA // g N m-2
	vcmax = 20 + 25*narea
	jmax = 1.67 * vcmax
	rdark = 0.02 * vcmax
	return
}

// calcCt computes the treefall height threshold (spec §4.4 "Ct
// (treefall threshold)"), preserving the adjustment factor verbatim per
// spec §9 ("Ct intraspecific adjustment formula... preserve the formula
// verbatim").
func calcCt(t *Tree, s *rng.Stream, p *config.Params) float64 {
	u := s.Float64()
	if u <= 0 {
		u = 1e-9
	}
	// vC' is adjusted so the onset of treefall does not shift
	// systematically with mult_height: divide the base coefficient by
	// mult_height so that taller-than-average trees (larger mult_height)
	// do not see Ct shrink purely from the multiplier.
	vCPrime := 0.1 / math.Max(t.MultHeight, 1e-6)
	hMax := p.Height
	ct := t.Hmax * math.Max(0, 1-vCPrime*math.Sqrt(-math.Log(u)))
	if ct > float64(hMax)-1 {
		ct = float64(hMax) - 1
	}
	return ct
}

// CalcLAImax performs the bisection search for the light-compensation
// maximum LAI (spec §9: "CalcLAImax iterates 10 bisections in [0,10] for
// LAI_max; convergence tolerance is implicit (~0.01)"). We make the
// tolerance explicit rather than relying on the bisection count alone.
func CalcLAImax(sp *Species, kpar float64, tables *lookup.Tables, wDaily float64, leafCompensationPPFD float64) float64 {
	lo, hi := 0.0, 10.0
	const tol = 0.01
	for i := 0; i < 10 && hi-lo > tol; i++ {
		mid := (lo + hi) / 2
		transmitted := wDaily * math.Exp(-kpar*mid)
		if transmitted > leafCompensationPPFD {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// ---- Growth ----

// LayerSample is one crown layer's averaged microclimate, computed by the
// scheduler from VoxelField + CrownGeometry before calling Growth.
type LayerSample struct {
	LeafArea float64 // m2 of leaf area in this layer

	// Envs holds one Environment per intra-day sub-step of the daytime
	// variation profile (spec §4.3 "Daily integration": sum over N
	// intra-day steps and divide by N). A profile-less caller supplies a
	// single entry, degenerating to the plain daily mean.
	Envs []leafflux.Environment
}

// GrowthInputs bundles everything Growth needs for one timestep (spec
// §4.4 "Growth").
type GrowthInputs struct {
	Params   *config.Params
	Species  *Species
	Solver   *leafflux.Solver
	Layers   []LayerSample
	DayHours, NightHours float64
	Tnight   float64
	Timestep float64 // years (or fraction thereof) per call
	Water    leafflux.WaterStress
}

// GrowthResult reports the per-timestep physiological outcome, used by
// the scheduler for summary aggregation (spec §4.8 step 10).
type GrowthResult struct {
	GPP, NPP, Rday, Rnight, Rstem float64
	Died                          bool
}

// Growth integrates photosynthesis/respiration over the tree's crown
// layers, updates carbon stores, leaf demography and allometry, and
// reports whether the tree should be killed this timestep (spec §4.4
// steps 1-7).
func (t *Tree) Growth(in GrowthInputs) GrowthResult {
	var gpp, sampledLA float64
	for _, layer := range in.Layers {
		n := len(layer.Envs)
		if n == 0 {
			continue
		}
		leaf := leafflux.LeafParams{
			Vcmax25: t.Vcmax, Jmax25: t.Jmax, Rdark25: t.Rdark,
			G0: in.Params.G0, G1: t.G1,
			Theta: in.Params.Theta, Phi: in.Params.Phi,
			Absorptance: in.Params.AbsorptanceLeaves,
			DayResp:     0.4,
			CO2Ambient:  in.Params.Cair,
		}
		var anetSum, eSum float64
		for _, env := range layer.Envs {
			res := in.Solver.SolveLeaf(env, leaf, in.Water)
			anetSum += res.Anet
			eSum += res.E
		}
		anet := anetSum / float64(n)
		e := eSum / float64(n)
		gpp += anet * layer.LeafArea
		sampledLA += layer.LeafArea
		t.Transpiration += e * layer.LeafArea
	}
	// Respiration scales with the leaf area the crown-layer walk actually
	// sampled this timestep, not the tree's full LA: a tree whose crown
	// extends above H_max has part of its LA cropped from the voxel field.
	leafAreaForResp := sampledLA
	if leafAreaForResp <= 0 {
		leafAreaForResp = t.LA
	}
	unitConv := in.DayHours * daysPerSecToGPerTimestepLocal * in.Timestep

	rday := t.Rdark * 0.4 * leafAreaForResp * in.DayHours * unitConv / math.Max(in.DayHours, 1e-9)
	rnight := t.Rdark * nightRespFactor(in.Tnight) * leafAreaForResp * in.NightHours * unitConv / math.Max(in.NightHours, 1e-9)
	rstem := t.SapwoodArea * (t.Height - t.CD) * q10Respiration(in.Tnight) * in.Timestep

	rabove := rday + rnight + rstem
	rtot := rabove * 1.5 // root respiration folded as a 1.5x multiplier, spec §4.3

	gppGPerTimestep := gpp * unitConv
	npp := 0.7 * (gppGPerTimestep - rtot)

	if npp < 0 {
		if t.CarbonStorage > 0 {
			debit := math.Min(t.CarbonStorage, -npp)
			t.CarbonStorage -= debit
			npp += debit
		}
	}
	if npp < 0 {
		t.NPPneg++
	} else {
		t.NPPneg = 0
	}

	t.allocateCarbon(npp, in.Params)
	t.updateAllometry(npp, in.Params)

	died := float64(t.NPPneg) >= t.LeafLifespan

	return GrowthResult{GPP: gppGPerTimestep, NPP: npp, Rday: rday, Rnight: rnight, Rstem: rstem, Died: died}
}

const daysPerSecToGPerTimestepLocal = 15.7788 * 1e-6 * 3600

func nightRespFactor(tnight float64) float64 {
	return math.Exp(0.0693 * (tnight - 25))
}

func q10Respiration(t float64) float64 {
	const q10 = 2.0
	return 0.01 * math.Pow(q10, (t-25)/10)
}

// allocateCarbon implements spec §4.4 step 5: leaf flushing, biometry
// reserve, storage cap, and overflow routing to stem growth or seed
// production.
func (t *Tree) allocateCarbon(npp float64, p *config.Params) {
	if npp <= 0 {
		return
	}
	toLeaves := 0.68 * npp * p.FallocCanopy * 2
	toBiometry := 0.60 * npp * p.FallocWood

	capacityLeaves := t.LAImax*math.Pi*t.CR*t.CR*t.FractionFilled - t.LA
	if capacityLeaves < 0 {
		capacityLeaves = 0
	}
	flushLA := toLeaves / math.Max(t.LMA, 1e-6) // g -> m2 via LMA (g/m2), LMA already in g/m2
	excess := 0.0
	if flushLA > capacityLeaves {
		excess = (flushLA - capacityLeaves) * t.LMA
		flushLA = capacityLeaves
	}
	t.LA += flushLA
	splitLeafPools(t)

	agb := AboveGroundBiomass(t)
	storageCap := 0.05 * agb * 1.25
	t.CarbonStorage += excess
	if t.CarbonStorage > storageCap {
		overflow := t.CarbonStorage - storageCap
		t.CarbonStorage = storageCap
		if t.DBH >= t.DBHmature {
			t.MultiplierSeed += overflow / math.Max(t.SeedAllocationDenominator(), 1e-9)
		} else {
			t.CarbonBiometry += overflow
		}
	}
	t.CarbonBiometry += toBiometry
}

// SeedAllocationDenominator is a small helper scaling excess-storage
// overflow into additional seed production for mature trees (spec §4.4
// step 5, "extra seed production (multiplier_seed)").
func (t *Tree) SeedAllocationDenominator() float64 {
	return 1000.0
}

// AboveGroundBiomass is the standard pantropical allometry (Chave et al.)
// used both for the storage-cap check in allocateCarbon and for summary
// aggregation (spec §6 "derived AGB").
func AboveGroundBiomass(t *Tree) float64 {
	return 0.0673 * math.Pow(t.WSG*t.DBH*t.DBH*t.Height, 0.976)
}

// updateAllometry implements spec §4.4 step 7: dbh growth from the
// accumulated biometry carbon, capped as dbh approaches dbhmax, followed
// by height/CR/CD/sapwood updates.
func (t *Tree) updateAllometry(npp float64, p *config.Params) {
	deltaAGB := t.CarbonBiometry
	if deltaAGB <= 0 {
		return
	}
	t.CarbonBiometry = 0

	capFactor := math.Max(0, 3-2*t.DBH/t.DBHmax)
	denom := 0.559 * t.WSG * 1e6 * t.DBH * p.NH * t.Height * lvFactor(p) * (3 - t.DBH/(t.DBH+t.Ah))
	if denom <= 0 {
		denom = 1e-9
	}
	deltaDBH := deltaAGB / denom * p.NH * capFactor
	t.DBH += deltaDBH
	if t.DBH > 1.5*t.DBHmax {
		t.DBH = 1.5 * t.DBHmax
	}

	t.Height = t.Hmax * t.DBH / (t.DBH + t.Ah) * t.MultHeight
	t.CR = (p.CRa * math.Pow(t.DBH, p.CRb)) * t.MultCR
	if t.CR < p.CRMin {
		t.CR = p.CRMin
	}
	t.CD = (p.CDa + p.CDb*t.Height) * t.MultCD
	if t.CD > 0.5*t.Height {
		t.CD = 0.5 * t.Height
	}

	if p.Selectors.Sapwood {
		t.SapwoodArea = sapwoodRingArea(t.DBH)
	}
	cap := pipeModelCap(t)
	if t.SapwoodArea > cap {
		t.SapwoodArea = cap
	}
}

// lvFactor is a placeholder for the "LV" wood-density-form-factor term in
// the dbh growth denominator (spec §4.4); held at 1 absent a
// species-specific form factor input.
func lvFactor(p *config.Params) float64 { return 1.0 }

// ---- Death ----

// DeathInputs bundles the inputs to the per-timestep death-rate check
// (spec §4.4 "Death rate").
type DeathInputs struct {
	Params *config.Params
	NDD    float64 // negative density dependence term, 0 if disabled
	Stream *rng.Stream
}

// CheckDeath evaluates the stochastic death rate and returns true if the
// tree dies this timestep.
func (t *Tree) CheckDeath(in DeathInputs) bool {
	p := in.Params
	basal := math.Max(p.M-p.M1*t.WSG, 0)

	carbonStarvation := 0.0
	if t.CarbonStorage <= 0 && float64(t.NPPneg) > 0 {
		carbonStarvation = 1.0
	}

	lethal := 0.0
	if p.Selectors.Water && t.PhiRoot < t.PhiLethal {
		lethal = 1.0
	}

	rate := basal + carbonStarvation + lethal + in.NDD
	if rate > 1 {
		rate = 1
	}
	return in.Stream.Float64() < rate
}
