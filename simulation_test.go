package troll

import (
	"testing"

	"github.com/ecotroll/troll/config"
	"github.com/ecotroll/troll/tree"
)

func testSpeciesTable() []*tree.Species {
	sp := &tree.Species{
		Name: "Fakus", LMA: 100, Nmass: 0.02, Pmass: 0.001, WSG: 0.6,
		DBHmax: 0.6, Hmax: 25, Ah: 0.4, Ds: 15, SeedMass: 1,
		RegionalFrequency: 1, TLP: -1.5, LeafArea: 20,
	}
	sp.Finalize()
	return []*tree.Species{nil, sp}
}

func testSimParams() *config.Params {
	return &config.Params{
		Rows: 12, Cols: 12, Height: 40, NbIter: 5, SBORD: 3,
		NV: 1, NH: 1, LengthDCell: 4,
		Klight: 0.5, AbsorptanceLeaves: 0.9, Theta: 0.7, Phi: 0.3, G0: 0.01, G1: 4,
		DBH0: 0.01, H0: 1, CRa: 2, CRb: 0.5, CDa: 1, CDb: 0.2, CRMin: 0.5,
		ShapeCrown: 0.6, CrownGapFraction: 0.1, Dens: 1,
		FallocWood: 0.3, FallocCanopy: 0.3, CSeedRain: 0.01, Nbs0: 5,
		SigmaHeight: 0.1, SigmaCR: 0.1, SigmaCD: 0.1, SigmaDbhmax: 0.05,
		SigmaN: 0.1, SigmaP: 0.1, SigmaLMA: 0.1, SigmaWSG: 0.05,
		LeafdemResolution: 1, PTFSecondary: 0.3, HurtDecay: 0.9,
		M: 0.02, M1: 0.01, Cair: 400, Press: 101.3, IterPerYear: 3,
	}
}

func newTestSimulation(sel config.Selectors) *Simulation {
	p := testSimParams()
	p.Selectors = sel
	sim := New(p, sel, testSpeciesTable(), 42, nil)
	for _, site := range sim.EmptySites()[:10] {
		sim.GerminateAt(site, 1)
	}
	return sim
}

func TestNewAllocatesOneTreePerSite(t *testing.T) {
	sim := newTestSimulation(config.Selectors{})
	if len(sim.Trees) != sim.Grid.Sites {
		t.Errorf("len(Trees) = %d, want %d (one per site)", len(sim.Trees), sim.Grid.Sites)
	}
}

func TestGerminateAtRefusesOccupiedSite(t *testing.T) {
	sim := newTestSimulation(config.Selectors{})
	alive := sim.AliveTrees()
	if len(alive) == 0 {
		t.Fatal("setup failed: expected some germinated trees")
	}
	site := alive[0].Site
	if sim.GerminateAt(site, 1) {
		t.Error("GerminateAt should refuse an already-occupied site")
	}
}

func TestStepRunsWithoutPanicAndKeepsInvariants(t *testing.T) {
	sim := newTestSimulation(config.Selectors{})
	for i := 0; i < 5; i++ {
		res := sim.Step()
		if res.Global.Abundance < 0 {
			t.Fatalf("iteration %d: negative abundance %d", i, res.Global.Abundance)
		}
		// Invariant I1: every tree reported alive has Age > 0.
		for _, tr := range sim.AliveTrees() {
			if !tr.IsAlive() {
				t.Fatalf("iteration %d: AliveTrees returned a dead tree at site %d", i, tr.Site)
			}
		}
	}
	if sim.Iter != 5 {
		t.Errorf("Iter = %d after 5 Step calls, want 5", sim.Iter)
	}
}

func TestStepWithWaterModuleEnabled(t *testing.T) {
	sim := newTestSimulation(config.Selectors{Water: true})
	if sim.Soil == nil {
		t.Fatal("Water selector enabled but Soil model was not constructed")
	}
	for i := 0; i < 3; i++ {
		sim.Step()
	}
	for d, st := range sim.Soil.States {
		for l, v := range st.SWC {
			if v < 0 {
				t.Errorf("dcell %d layer %d SWC went negative: %g", d, l, v)
			}
		}
	}
}

func TestLayerBoundsAccumulatesThickness(t *testing.T) {
	layers := defaultSoilLayers()
	bounds := layerBounds(layers)
	if len(bounds) != len(layers)+1 {
		t.Fatalf("len(bounds) = %d, want %d", len(bounds), len(layers)+1)
	}
	if bounds[0] != 0 {
		t.Errorf("bounds[0] = %g, want 0", bounds[0])
	}
	want := layers[0].Thickness + layers[1].Thickness + layers[2].Thickness
	if got := bounds[len(bounds)-1]; got != want {
		t.Errorf("total depth = %g, want %g", got, want)
	}
}

func TestDeterminismSameSeedSameTrajectory(t *testing.T) {
	sim1 := newTestSimulation(config.Selectors{})
	sim2 := newTestSimulation(config.Selectors{})
	for i := 0; i < 3; i++ {
		r1 := sim1.Step()
		r2 := sim2.Step()
		if r1.Global.Abundance != r2.Global.Abundance || r1.Global.GPP != r2.Global.GPP {
			t.Fatalf("iteration %d: identical seeds diverged: %+v vs %+v", i, r1.Global, r2.Global)
		}
	}
}
