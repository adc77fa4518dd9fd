package tree

import (
	"math"
	"testing"

	"github.com/ecotroll/troll/config"
	"github.com/ecotroll/troll/leafflux"
	"github.com/ecotroll/troll/lookup"
	"github.com/ecotroll/troll/rng"
)

func testParams() *config.Params {
	return &config.Params{
		DBH0: 0.01, H0: 1, CRa: 2, CRb: 0.5, CDa: 1, CDb: 0.2, CRMin: 0.5,
		SigmaHeight: 0.1, SigmaCR: 0.1, SigmaCD: 0.1, SigmaDbhmax: 0.05,
		SigmaN: 0.1, SigmaP: 0.1, SigmaLMA: 0.1, SigmaWSG: 0.05,
		Klight: 0.5, AbsorptanceLeaves: 0.9, Theta: 0.7, Phi: 0.3,
		G0: 0.01, G1: 4, Cair: 400, FallocWood: 0.3, FallocCanopy: 0.3,
		M: 0.02, M1: 0.01, Height: 40, NH: 1,
	}
}

func testSpecies() *Species {
	sp := &Species{Name: "Fakus", LMA: 100, Nmass: 0.02, Pmass: 0.001, WSG: 0.6, DBHmax: 0.6, Hmax: 25, Ah: 0.4, Ds: 20, TLP: -1.5}
	sp.Finalize()
	return sp
}

func TestBirthInitializesAliveTree(t *testing.T) {
	stream := rng.New(1)
	sp := testSpecies()
	p := testParams()
	tr := &Tree{}
	ok := tr.Birth(BirthInputs{
		Site: 5, SpLab: 1, Species: sp, Params: p, Stream: stream,
		GlobalGapFraction: 0.1, LAI0: 0, LAImaxTable: func(s, d int) float64 { return 4 },
	})
	if !ok {
		t.Fatal("Birth refused to germinate under an empty-canopy gate")
	}
	if !tr.IsAlive() {
		t.Error("a tree just born should be alive (Age > 0)")
	}
	if tr.DBH <= 0 || tr.Height <= 0 || tr.CR <= 0 {
		t.Errorf("Birth left non-positive allometry: DBH=%g Height=%g CR=%g", tr.DBH, tr.Height, tr.CR)
	}
	if tr.LA <= 0 {
		t.Errorf("Birth left non-positive leaf area: %g", tr.LA)
	}
}

func TestBirthRefusedWhenCanopyAboveLAImax(t *testing.T) {
	stream := rng.New(1)
	sp := testSpecies()
	p := testParams()
	tr := &Tree{}
	ok := tr.Birth(BirthInputs{
		Site: 5, SpLab: 1, Species: sp, Params: p, Stream: stream,
		LAI0: 5, LAImaxTable: func(s, d int) float64 { return 4 },
	})
	if ok {
		t.Error("Birth should refuse germination when existing canopy LAI already exceeds the species' LAImax")
	}
	if tr.IsAlive() {
		t.Error("a refused Birth must not leave the site alive")
	}
}

func TestResetReturnsSiteToEmpty(t *testing.T) {
	tr := &Tree{Site: 3, Age: 5, DBH: 0.2}
	tr.Reset()
	if tr.IsAlive() {
		t.Error("Reset should leave the tree dead (Age==0)")
	}
	if tr.Site != 3 {
		t.Errorf("Reset should preserve the Site index, got %d", tr.Site)
	}
}

func TestGrowthIncreasesDBHUnderPositiveNPP(t *testing.T) {
	stream := rng.New(2)
	sp := testSpecies()
	p := testParams()
	tr := &Tree{}
	tr.Birth(BirthInputs{
		Site: 1, SpLab: 1, Species: sp, Params: p, Stream: stream,
		GlobalGapFraction: 0.1, LAImaxTable: func(s, d int) float64 { return 6 },
	})
	dbhBefore := tr.DBH

	solver := leafflux.New(lookup.NewTables(p.Klight))
	env := leafflux.Environment{AbsorbedPPFD: 800, IncidentPPFD: 1000, VPDAir: 1, TAir: 27, Wind: 1.5, LWExtinction: 1, PressurekPa: 101.3}
	layers := []LayerSample{{LeafArea: tr.LA, Envs: []leafflux.Environment{env}}}

	var result GrowthResult
	for i := 0; i < 20; i++ {
		result = tr.Growth(GrowthInputs{
			Params: p, Species: sp, Solver: solver, Layers: layers,
			DayHours: 12, NightHours: 12, Tnight: 22, Timestep: 1,
			Water: leafflux.WaterStress{WSF: 1, WSF_A: 1},
		})
	}
	if result.GPP <= 0 {
		t.Errorf("expected positive GPP under ample light, got %g", result.GPP)
	}
	if tr.DBH < dbhBefore {
		t.Errorf("DBH should not shrink under repeated positive-NPP growth: before=%g after=%g", dbhBefore, tr.DBH)
	}
}

func TestAboveGroundBiomassScalesWithSize(t *testing.T) {
	small := &Tree{WSG: 0.6, DBH: 0.1, Height: 5}
	big := &Tree{WSG: 0.6, DBH: 0.5, Height: 20}
	if AboveGroundBiomass(big) <= AboveGroundBiomass(small) {
		t.Error("a larger tree should have greater above-ground biomass")
	}
}

func TestCheckDeathRateNeverExceedsOne(t *testing.T) {
	stream := rng.New(4)
	p := testParams()
	p.M = 5 // deliberately absurd to probe the rate>1 clamp
	tr := &Tree{WSG: 0.1, CarbonStorage: 0, NPPneg: 1}
	died := 0
	for i := 0; i < 200; i++ {
		if tr.CheckDeath(DeathInputs{Params: p, Stream: stream}) {
			died++
		}
	}
	if died != 200 {
		t.Errorf("a clamped rate of 1 should kill every trial, got %d/200 deaths", died)
	}
}

func TestCalcLAImaxConverges(t *testing.T) {
	sp := testSpecies()
	tables := lookup.NewTables(0.5)
	lai := CalcLAImax(sp, 0.5, tables, 1000, 15)
	if lai < 0 || lai > 10 {
		t.Errorf("CalcLAImax out of its [0,10] search bracket: %g", lai)
	}
	if math.IsNaN(lai) {
		t.Error("CalcLAImax returned NaN")
	}
}
