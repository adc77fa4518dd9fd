package troll

import "testing"

func TestNDDFieldNilWhenDisabled(t *testing.T) {
	sim := newTestSimulation(testSimParams().Selectors)
	if f := sim.nddField(); f != nil {
		t.Errorf("nddField() = %v, want nil when the NDD selector is off", f)
	}
}

func TestNDDFieldPenalizesHigherBasalArea(t *testing.T) {
	sim := newTestSimulation(testSimParams().Selectors)
	sim.Selectors.NDD = true
	sim.Params.Selectors.NDD = true

	alive := sim.AliveTrees()
	if len(alive) == 0 {
		t.Fatal("setup failed: expected germinated trees")
	}
	alive[0].DBH = 1.0
	f := sim.nddField()
	if f == nil || f[alive[0].SpLab] <= 0 {
		t.Errorf("nddField() = %v, want a positive penalty for species %d with a large tree", f, alive[0].SpLab)
	}
}

func TestRecruitEmptySitesFillsFromSeedBank(t *testing.T) {
	sim := newTestSimulation(testSimParams().Selectors)
	empties := sim.EmptySites()
	if len(empties) == 0 {
		t.Fatal("setup failed: expected empty sites")
	}
	for _, site := range empties {
		sim.Seeds.FillSeed(sim.gridRowCol(site))
	}
	recruited := sim.recruitEmptySites()
	if recruited == 0 {
		t.Error("recruitEmptySites() = 0, want at least one recruit when every empty site carries a seed")
	}
}

// gridRowCol is a small test helper adapting site indices to the
// row/col pair FillSeed expects.
func (s *Simulation) gridRowCol(site int) (int, int, int) {
	row, col := s.Grid.RowCol(site)
	return row, col, 1
}
