package leafflux

import (
	"math"
	"testing"

	"github.com/ecotroll/troll/lookup"
)

func testSolver() *Solver {
	return New(lookup.NewTables(0.5))
}

func testLeaf() LeafParams {
	return LeafParams{
		Vcmax25: 50, Jmax25: 90, Rdark25: 1.2,
		G0: 0.01, G1: 4, Theta: 0.7, Phi: 0.3, Absorptance: 0.9,
		DayResp: 0.7, CO2Ambient: 400,
	}
}

func TestSolveLeafConverges(t *testing.T) {
	s := testSolver()
	env := Environment{AbsorbedPPFD: 800, IncidentPPFD: 1000, VPDAir: 1.2, TAir: 28, Wind: 1.5, LWExtinction: 1, PressurekPa: 101.3}
	res := s.SolveLeaf(env, testLeaf(), WaterStress{WSF: 1, WSF_A: 1})
	if math.IsNaN(res.Anet) || math.IsNaN(res.E) || math.IsNaN(res.Tleaf) {
		t.Fatalf("SolveLeaf produced NaN: %+v", res)
	}
	if res.Anet <= 0 {
		t.Errorf("expected net assimilation to be positive under ample light, got %g", res.Anet)
	}
	if res.E <= 0 {
		t.Errorf("expected positive transpiration under ample light, got %g", res.E)
	}
}

func TestSolveLeafDarkHasNoNetGain(t *testing.T) {
	s := testSolver()
	env := Environment{AbsorbedPPFD: 0, IncidentPPFD: 0, VPDAir: 1.2, TAir: 25, Wind: 1, LWExtinction: 1, PressurekPa: 101.3}
	res := s.SolveLeaf(env, testLeaf(), WaterStress{WSF: 1, WSF_A: 1})
	if res.Anet > 0 {
		t.Errorf("expected non-positive net assimilation in darkness, got %g", res.Anet)
	}
}

func TestWaterStressReducesAssimilation(t *testing.T) {
	s := testSolver()
	env := Environment{AbsorbedPPFD: 800, IncidentPPFD: 1000, VPDAir: 1.2, TAir: 28, Wind: 1.5, LWExtinction: 1, PressurekPa: 101.3}
	full := s.SolveLeaf(env, testLeaf(), WaterStress{WSF: 1, WSF_A: 1})
	stressed := s.SolveLeaf(env, testLeaf(), WaterStress{WSF: 0.3, WSF_A: 0.3})
	if stressed.Anet >= full.Anet {
		t.Errorf("water-stressed Anet (%g) should be lower than unstressed (%g)", stressed.Anet, full.Anet)
	}
}

func TestClosedFormNoWaterPositiveUnderLight(t *testing.T) {
	s := testSolver()
	env := Environment{AbsorbedPPFD: 600, IncidentPPFD: 900, VPDAir: 1.0, TAir: 27, Wind: 1, LWExtinction: 1, PressurekPa: 101.3}
	closed := s.ClosedFormNoWater(env, testLeaf())
	if math.IsNaN(closed.Anet) {
		t.Fatal("ClosedFormNoWater produced NaN Anet")
	}
	if closed.Anet <= 0 {
		t.Errorf("expected positive closed-form assimilation under ample light, got %g", closed.Anet)
	}
}

func TestQuadraticBranchPositiveRoot(t *testing.T) {
	a := quadraticBranch(50, 400, 40, 400, 0.01, 5)
	if a <= 0 {
		t.Errorf("quadraticBranch should pick the physically meaningful positive assimilation root, got %g", a)
	}
}

func TestNonRectangularHyperbolaBoundedByJmax(t *testing.T) {
	j := nonRectangularHyperbola(1000, 90, 0.7)
	if j > 90 {
		t.Errorf("electron transport rate %g should never exceed Jmax=90", j)
	}
	if j <= 0 {
		t.Errorf("expected positive electron transport under strong light, got %g", j)
	}
}
