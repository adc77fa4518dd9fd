package troll

import (
	"math"
	"sort"

	"github.com/ecotroll/troll/config"
	"github.com/ecotroll/troll/crown"
	"github.com/ecotroll/troll/leafflux"
	"github.com/ecotroll/troll/seedbank"
	"github.com/ecotroll/troll/soilwater"
	"github.com/ecotroll/troll/summary"
	"github.com/ecotroll/troll/tree"
	"github.com/ecotroll/troll/voxel"
)

// dayHours/nightHours split the daily cycle for respiration integration
// (spec §4.3 "Rday"/"Rnight"); TROLL's tropical sites run close to a fixed
// 12h/12h day-night split year-round, so this is a constant rather than a
// derived quantity.
const (
	dayHours   = 12.0
	nightHours = 12.0
)

// StepResult is everything Step reports for one timestep (spec §4.8 step
// 10 plus bookkeeping useful to callers driving a multi-step run).
type StepResult struct {
	Global     summary.Global
	PerSpecies []summary.PerSpecies
	Fallen     int
	Died       int
	Recruited  int
}

// Step advances the simulation by one timestep, implementing the ten
// scheduler steps of spec §4.8 in order.
func (s *Simulation) Step() StepResult {
	clim := s.selectClimate(s.Iter)

	// Step 2: annual seed bank refresh + dispersal.
	if s.Params.IterPerYear > 0 && s.Iter%s.Params.IterPerYear == 0 {
		s.annualSeedRefresh()
	}

	// Step 3: NDD recomputation (if enabled). The per-species conspecific
	// basal-area penalty is computed once here and added to the death rate
	// in growAndKill; recruitment does not use it.
	ndd := s.nddField()

	// Step 4: recruitment on every empty site.
	recruited := s.recruitEmptySites()

	// Step 5: rebuild LAI3D from every live tree's crown.
	s.rebuildVoxelField()

	// Step 6: per-DCELL aggregates (water module only).
	if s.Selectors.Water {
		s.rebuildDCellAggregates(clim)
	}

	// Step 7: treefall, secondary then primary.
	fallen := s.runTreefall()

	// Step 9 prep: zero this timestep's soil-water accumulators. Growth
	// (step 8) records transpiration on each tree (Tree.Transpiration) but
	// does not add it to the per-layer soil sink, so Withdraw removes no
	// transpired water.
	if s.Selectors.Water {
		s.Soil.ClearTranspiration()
	}

	// Step 8: per-tree Water_availability -> Growth or Death.
	growthResults, died := s.growAndKill(clim, ndd)

	// Step 9: soil water refill/withdraw.
	if s.Selectors.Water {
		s.updateSoilWater(clim)
	}

	// Step 10: summary aggregation.
	g, perSp := summary.Aggregate(s.AliveTrees(), growthResults, len(s.Species)-1)

	s.Iter++
	return StepResult{Global: g, PerSpecies: perSp, Fallen: fallen, Died: died, Recruited: recruited}
}

func (s *Simulation) annualSeedRefresh() {
	freq := make([]float64, len(s.Species))
	for sp := 1; sp < len(s.Species); sp++ {
		freq[sp] = s.Species[sp].RegionalFrequency
	}
	total := int(s.Params.CSeedRain * float64(s.Grid.Rows*s.Grid.Cols))
	if total > 0 {
		s.Seeds.AnnualRefresh(s.Stream, total, freq)
	}

	var mature []seedbank.MatureTree
	for _, t := range s.Trees {
		if !t.IsAlive() || !seedbank.IsMature(t) {
			continue
		}
		sp := s.Species[t.SpLab]
		mature = append(mature, seedbank.MatureTree{
			Site: t.Site, SpLab: t.SpLab, Nbs0: s.Params.Nbs0,
			MultiplierSeed: t.MultiplierSeed, Ds: sp.Ds,
		})
	}
	s.Seeds.Disperse(mature, s.Stream)
}

// nddField computes the negative-density-dependence penalty per species,
// proportional to that species' conspecific basal area share of the
// simulated area (spec glossary "NDD"); disabled selectors return nil and
// every site/species sees a zero penalty.
func (s *Simulation) nddField() map[int]float64 {
	if !s.Selectors.NDD {
		return nil
	}
	basal := make(map[int]float64, len(s.Species))
	for _, t := range s.Trees {
		if !t.IsAlive() {
			continue
		}
		basal[t.SpLab] += 0.7853981633974483 * t.DBH * t.DBH
	}
	area := float64(s.Grid.Rows * s.Grid.Cols)
	if area <= 0 {
		area = 1
	}
	penalty := make(map[int]float64, len(basal))
	for sp, ba := range basal {
		penalty[sp] = 0.1 * ba / area
	}
	return penalty
}

func (s *Simulation) recruitEmptySites() int {
	count := 0
	for _, site := range s.EmptySites() {
		gate := seedbank.RecruitGate{LAI0: s.Voxel.At(0, site)}
		if s.Selectors.RecruitmentGate == config.GateLAImax {
			gate.LAImaxTable = func(sp int) float64 { return s.Species[sp].LCP }
		}
		if s.Selectors.Water && s.Soil != nil {
			dcell := s.DCells.DCellIndex(site)
			gate.WaterCoupled = true
			gate.PsiSoilTop = s.Soil.States[dcell].Psi[0]
			gate.SpeciesTLP = func(sp int) float64 { return s.Species[sp].TLP }
		}
		sp, ok := s.Seeds.RecruitTree(site, s.Stream, gate)
		if !ok {
			continue
		}
		row, col := s.Grid.RowCol(site)
		mult := crownMultiplier(s, sp, row, col)
		t := s.Trees[site]
		ok = t.Birth(tree.BirthInputs{
			Site: site, SpLab: sp, Species: s.Species[sp], Params: s.Params, Stream: s.Stream,
			GlobalGapFraction: s.Params.CrownGapFraction, LAI0: s.Voxel.At(0, site),
			LAImaxTable: func(spIdx, devIdx int) float64 { return mult },
		})
		if ok {
			count++
		}
	}
	return count
}

// GerminateAt germinates a tree of the given species at site, outside the
// normal recruitment gate, for seeding a run from an inventory snapshot
// (spec §6 "Inventory file"). It returns false if the site is already
// occupied or the species index is out of range.
func (s *Simulation) GerminateAt(site, spIdx int) bool {
	if site < 0 || site >= len(s.Trees) || s.Trees[site].IsAlive() {
		return false
	}
	if spIdx <= 0 || spIdx >= len(s.Species) || s.Species[spIdx] == nil {
		return false
	}
	row, col := s.Grid.RowCol(site)
	mult := crownMultiplier(s, spIdx, row, col)
	t := s.Trees[site]
	return t.Birth(tree.BirthInputs{
		Site: site, SpLab: spIdx, Species: s.Species[spIdx], Params: s.Params, Stream: s.Stream,
		GlobalGapFraction: s.Params.CrownGapFraction, LAI0: s.Voxel.At(0, site),
		LAImaxTable: func(spIdx, devIdx int) float64 { return mult },
	})
}

// crownMultiplier precomputes a species' intraspecific LAImax via the
// bisection solve (spec §9 CalcLAImax); devIndex is folded into the
// species-level table rather than resolved per-draw since tree.Birth only
// needs the final LAImax value.
func crownMultiplier(s *Simulation, sp, row, col int) float64 {
	species := s.Species[sp]
	const leafCompensationPPFD = 15.0 // umol m-2 s-1, representative understory light compensation point
	return tree.CalcLAImax(species, s.Params.Klight, s.Tables, 1000, leafCompensationPPFD)
}

func (s *Simulation) rebuildVoxelField() {
	s.Voxel.Clear()
	for _, t := range s.Trees {
		if !t.IsAlive() {
			continue
		}
		row, col := s.Grid.RowCol(t.Site)
		params := s.treeCrownParams(t)
		top := topLayerHeight(t, s.Params.Height)
		crown.ForEachVoxel(params, s.Spiral, row, col, top, s.Grid.Site, func(h, site int, density float64) {
			s.Voxel.Add(h, site, density)
		})
	}
	s.Voxel.AccumulateTopDown()
}

func (s *Simulation) treeCrownParams(t *tree.Tree) crown.Params {
	profile := crown.Uniform
	if s.Selectors.LAIProfile == config.LAIGradient {
		profile = crown.Gradient
	}
	return crown.Params{
		Height: t.Height, CR: t.CR, CD: t.CD, LA: t.LA, FractionFilled: t.FractionFilled,
		Shape: crown.Shape{
			Umbrella:   s.Selectors.CrownShape == config.Umbrella,
			ShapeCrown: s.Params.ShapeCrown,
			Profile:    profile,
		},
	}
}

func topLayerHeight(t *tree.Tree, hMax int) int {
	h := int(math.Ceil(t.Height))
	if h > hMax {
		h = hMax
	}
	if h < 0 {
		h = 0
	}
	return h
}

func (s *Simulation) rebuildDCellAggregates(clim Climate) {
	sums := make([]float64, s.DCells.NbDCells)
	maxH := make([]float64, s.DCells.NbDCells)
	counts := make([]int, s.DCells.NbDCells)
	for _, t := range s.Trees {
		if !t.IsAlive() {
			continue
		}
		d := s.DCells.DCellIndex(t.Site)
		sums[d] += t.LAI
		counts[d]++
		if t.Height > maxH[d] {
			maxH[d] = t.Height
		}
	}
	for d := range s.Soil.States {
		st := &s.Soil.States[d]
		h := maxH[d]
		if h <= 0 {
			h = 1
		}
		st.CanopyHeightMean = h
		st.WindTop = soilwater.Wind(h, h, clim.WS)
	}
}

func (s *Simulation) runTreefall() int {
	s.Treefall.BeginTimestep()
	alive := s.AliveTrees()
	fallen1, diedInPlace := s.Treefall.TriggerSecondary(alive, 1, s.Stream)
	done := make(map[int]bool, len(fallen1)+len(diedInPlace))
	for _, t := range append(fallen1, diedInPlace...) {
		done[t.Site] = true
	}
	standing := make([]*tree.Tree, 0, len(alive))
	for _, t := range alive {
		if !done[t.Site] {
			standing = append(standing, t)
		}
	}
	fallen2 := s.Treefall.TriggerPrimary(standing, 1, s.Stream)

	fallenSet := make(map[int]bool, len(fallen1)+len(fallen2))
	for _, t := range fallen1 {
		fallenSet[t.Site] = true
	}
	for _, t := range fallen2 {
		fallenSet[t.Site] = true
	}
	for _, t := range diedInPlace {
		t.Reset()
	}
	for site := range fallenSet {
		s.Trees[site].Reset()
	}
	s.Treefall.EndTimestep(alive)
	return len(fallenSet) + len(diedInPlace)
}

func (s *Simulation) growAndKill(clim Climate, ndd map[int]float64) ([]summary.StepGrowth, int) {
	var results []summary.StepGrowth
	died := 0
	for _, t := range s.Trees {
		if !t.IsAlive() {
			continue
		}
		sp := s.Species[t.SpLab]

		water := leafflux.WaterStress{WSF: 1, WSF_A: 1}
		if s.Selectors.Water && s.Soil != nil {
			water = s.waterAvailability(t, sp)
		}

		layers := s.buildLayerSamples(t, clim)
		gr := t.Growth(tree.GrowthInputs{
			Params: s.Params, Species: sp, Solver: s.Solver, Layers: layers,
			DayHours: dayHours, NightHours: nightHours, Tnight: clim.TNight,
			Timestep: 1, Water: water,
		})
		results = append(results, summary.StepGrowth{SpLab: t.SpLab, GrowthResult: gr, Litter: t.Litter})

		nddTerm := 0.0
		if ndd != nil {
			nddTerm = ndd[t.SpLab]
		}
		if gr.Died || t.CheckDeath(tree.DeathInputs{Params: s.Params, NDD: nddTerm, Stream: s.Stream}) {
			t.Reset()
			died++
		}
	}
	return results, died
}

// waterAvailability computes phi_root/WSF/WSF_A/g1 for one tree via its
// dcell's soil water state (spec §4.5 "Water_availability").
func (s *Simulation) waterAvailability(t *tree.Tree, sp *tree.Species) leafflux.WaterStress {
	dcell := s.DCells.DCellIndex(t.Site)
	profile := soilwater.RootProfile{TotalBiomass: t.LA * t.LMA, DepthScale: soilwater.RootDepth(t.DBH)}
	bounds := layerBounds(s.Soil.Layers)

	wsfB := 1.0
	if sp.TLP != 0 {
		wsfB = math.Log(0.5) / sp.TLP
	}
	g10 := t.G1_0
	if g10 <= 0 {
		g10 = s.Params.G1
	}
	res := s.Soil.WaterAvailability(dcell, profile, bounds, t.Height, g10, t.TLP, wsfB)
	t.PhiRoot, t.WSF, t.WSF_A, t.G1 = res.PhiRoot, res.WSF, res.WSF_A, res.G1
	return leafflux.WaterStress{WSF: t.WSF, WSF_A: t.WSF_A}
}

// layerAccumulator collects the density-weighted microclimate sums for one
// height layer while walking a tree's crown voxels.
type layerAccumulator struct {
	weight                        float64
	absPPFD, incPPFD, vpd, t, wind float64
}

// buildLayerSamples computes the per-crown-layer averaged microclimate a
// tree's Growth call integrates over (spec §4.4 "Compute mean absorbed
// PPFD, VPD, T, wind per crown layer via CrownGeometry + LeafFluxSolver").
func (s *Simulation) buildLayerSamples(t *tree.Tree, clim Climate) []tree.LayerSample {
	row, col := s.Grid.RowCol(t.Site)
	params := s.treeCrownParams(t)
	top := topLayerHeight(t, s.Params.Height)

	acc := make(map[int]*layerAccumulator)
	wDaily := clim.ShortwaveIrradiance
	crown.ForEachVoxel(params, s.Spiral, row, col, top, s.Grid.Site, func(h, site int, density float64) {
		if density <= 0 {
			return
		}
		aPrev := s.Voxel.Above(h, site)
		total := s.Voxel.At(h, site)
		delta := total - aPrev
		if delta < 0 {
			delta = 0
		}
		a := acc[h]
		if a == nil {
			a = &layerAccumulator{}
			acc[h] = a
		}
		absPPFD := wDaily * s.Tables.Absorbed(aPrev, delta)
		incPPFD := wDaily * s.Tables.AverageFlux(aPrev, 1.0)
		localVPD := clim.VPD * vpdAt(aPrev, delta)
		tAir := clim.TDay - tempDropAt(aPrev, delta)
		a.weight += density
		a.absPPFD += absPPFD * density
		a.incPPFD += incPPFD * density
		a.vpd += localVPD * density
		a.t += tAir * density
		a.wind += clim.WS * density
	})

	hs := make([]int, 0, len(acc))
	for h := range acc {
		hs = append(hs, h)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(hs)))

	daytime := s.Daytime
	if daytime == nil || daytime.NbSteps() == 0 {
		daytime = defaultDaytimeProfile()
	}
	n := daytime.NbSteps()

	layers := make([]tree.LayerSample, 0, len(hs))
	for _, h := range hs {
		a := acc[h]
		if a.weight <= 0 {
			continue
		}
		meanAbsPPFD := a.absPPFD / a.weight
		meanIncPPFD := a.incPPFD / a.weight
		meanVPD := a.vpd / a.weight
		meanT := a.t / a.weight
		meanWind := a.wind / a.weight

		envs := make([]leafflux.Environment, n)
		for i := 0; i < n; i++ {
			envs[i] = leafflux.Environment{
				AbsorbedPPFD: meanAbsPPFD * daytime.Light[i],
				IncidentPPFD: meanIncPPFD * daytime.Light[i],
				VPDAir:       meanVPD * daytime.VPD[i],
				TAir:         meanT * daytime.T[i],
				Wind:         meanWind * daytime.Wind[i],
				LWExtinction: 1,
				PressurekPa:  s.Params.Press,
			}
		}
		layers = append(layers, tree.LayerSample{LeafArea: a.weight, Envs: envs})
	}
	return layers
}

func vpdAt(aPrev, delta float64) float64     { return voxel.VPDDecrement(aPrev, delta) }
func tempDropAt(aPrev, delta float64) float64 { return voxel.TemperatureDecrement(aPrev, delta) }

func (s *Simulation) updateSoilWater(clim Climate) {
	for d := range s.Soil.States {
		laiTop := 0.0
		site, ok := s.DCells.Sites.Site(d/s.DCells.LinearNbDCells*s.DCells.LengthDCell, d%s.DCells.LinearNbDCells*s.DCells.LengthDCell)
		if ok {
			laiTop = s.Voxel.At(0, site)
		}
		s.Soil.Refill(d, clim.Rain, laiTop)
		s.Soil.Withdraw(d, s.Soil.States[d].WindTop)
	}
}
