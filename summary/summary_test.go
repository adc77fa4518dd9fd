package summary

import (
	"testing"

	"github.com/ecotroll/troll/tree"
)

func TestAggregateCountsOnlyAliveTrees(t *testing.T) {
	alive := &tree.Tree{Age: 5, SpLab: 1, DBH: 0.2, WSG: 0.6, Height: 10}
	dead := &tree.Tree{Age: 0, SpLab: 1, DBH: 0.2, WSG: 0.6, Height: 10}
	g, perSp := Aggregate([]*tree.Tree{alive, dead}, nil, 2)
	if g.Abundance != 1 {
		t.Errorf("Global.Abundance = %d, want 1 (dead trees excluded)", g.Abundance)
	}
	if perSp[1].Abundance != 1 {
		t.Errorf("PerSpecies[1].Abundance = %d, want 1", perSp[1].Abundance)
	}
}

func TestAggregateSumsBasalAreaAndAGB(t *testing.T) {
	t1 := &tree.Tree{Age: 1, SpLab: 1, DBH: 0.2, WSG: 0.6, Height: 10}
	t2 := &tree.Tree{Age: 1, SpLab: 1, DBH: 0.3, WSG: 0.6, Height: 15}
	g, perSp := Aggregate([]*tree.Tree{t1, t2}, nil, 2)

	wantBasal := basalArea(0.2) + basalArea(0.3)
	if g.BasalArea != wantBasal {
		t.Errorf("Global.BasalArea = %g, want %g", g.BasalArea, wantBasal)
	}
	wantAGB := tree.AboveGroundBiomass(t1) + tree.AboveGroundBiomass(t2)
	if g.AGB != wantAGB {
		t.Errorf("Global.AGB = %g, want %g", g.AGB, wantAGB)
	}
	if perSp[1].BasalArea != wantBasal {
		t.Errorf("PerSpecies[1].BasalArea = %g, want %g", perSp[1].BasalArea, wantBasal)
	}
}

func TestAggregateSumsGrowthBySpecies(t *testing.T) {
	growth := []StepGrowth{
		{SpLab: 1, GrowthResult: tree.GrowthResult{GPP: 10, NPP: 5}},
		{SpLab: 1, GrowthResult: tree.GrowthResult{GPP: 20, NPP: 8}},
		{SpLab: 2, GrowthResult: tree.GrowthResult{GPP: 100, NPP: 50}},
	}
	g, perSp := Aggregate(nil, growth, 2)
	if g.GPP != 130 {
		t.Errorf("Global.GPP = %g, want 130", g.GPP)
	}
	if perSp[1].GPP != 30 || perSp[1].NPP != 13 {
		t.Errorf("PerSpecies[1] GPP/NPP = %g/%g, want 30/13", perSp[1].GPP, perSp[1].NPP)
	}
	if perSp[2].GPP != 100 {
		t.Errorf("PerSpecies[2].GPP = %g, want 100", perSp[2].GPP)
	}
}

func TestBasalAreaFormula(t *testing.T) {
	if got := basalArea(1); got <= 0.78 || got >= 0.79 {
		t.Errorf("basalArea(1) = %g, want approx pi/4 = 0.7854", got)
	}
}
