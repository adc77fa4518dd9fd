package tree

import "testing"

func TestFinalizeDerivesDBHmatureAndLCP(t *testing.T) {
	sp := &Species{Name: "Fakus", LMA: 120, Nmass: 0.02, DBHmax: 0.8}
	sp.Finalize()
	if sp.DBHmature != 0.4 {
		t.Errorf("DBHmature = %g, want 0.4 (half of DBHmax)", sp.DBHmature)
	}
	if sp.LCP <= 0 {
		t.Errorf("LCP = %g, want positive", sp.LCP)
	}
}

func TestFinalizeHigherLMALowerNmassRaisesLCP(t *testing.T) {
	shade := &Species{LMA: 150, Nmass: 0.01}
	shade.Finalize()
	pioneer := &Species{LMA: 60, Nmass: 0.03}
	pioneer.Finalize()
	if shade.LCP <= pioneer.LCP {
		t.Errorf("a high-LMA/low-Nmass species should have a higher light compensation proxy than a low-LMA/high-Nmass one: shade=%g pioneer=%g", shade.LCP, pioneer.LCP)
	}
}
