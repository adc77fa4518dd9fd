package lookup

import (
	"math"
	"testing"
)

func TestTemperatureCurvesRiseToReference(t *testing.T) {
	tab := NewTables(0.5)
	// Vcmax scaling should rise from a cool bin up to the 25C reference,
	// where every Arrhenius curve is normalized to 1.0.
	i25 := tab.Index(25)
	i10 := tab.Index(10)
	if tab.VcmaxF[i25] <= tab.VcmaxF[i10] {
		t.Errorf("VcmaxF(25C)=%g should exceed VcmaxF(10C)=%g", tab.VcmaxF[i25], tab.VcmaxF[i10])
	}
	if math.Abs(tab.VcmaxF[i25]-1.0) > 1e-6 {
		t.Errorf("VcmaxF at the 25C reference bin should be 1.0, got %g", tab.VcmaxF[i25])
	}
}

func TestIndexClampsToRange(t *testing.T) {
	tab := NewTables(0.5)
	if got := tab.Index(-1000); got != 0 {
		t.Errorf("Index(-1000) = %d, want 0", got)
	}
	if got := tab.Index(1000); got != len(tab.TAxis)-1 {
		t.Errorf("Index(1000) = %d, want %d", got, len(tab.TAxis)-1)
	}
}

func TestAbsorbedFluxTableBounds(t *testing.T) {
	tab := NewTables(0.5)
	// Zero leaf area within a voxel absorbs nothing, but still transmits.
	if a := tab.Absorbed(0, 0); a != 0 {
		t.Errorf("Absorbed(0,0) = %g, want 0", a)
	}
	if flux := tab.AverageFlux(0, 0); flux != 1 {
		t.Errorf("AverageFlux(0,0) = %g, want 1 (no attenuation above an empty column)", flux)
	}
	// More leaf area above should only ever reduce (or hold) absorption
	// available to deeper voxels with the same delta.
	a1 := tab.Absorbed(1, 0.5)
	a2 := tab.Absorbed(3, 0.5)
	if a2 > a1 {
		t.Errorf("Absorbed(3,0.5)=%g should not exceed Absorbed(1,0.5)=%g", a2, a1)
	}
}

func TestSpiralOrderIsSortedByDistance(t *testing.T) {
	offsets := SpiralOrder()
	if len(offsets) != 51*51 {
		t.Fatalf("SpiralOrder returned %d offsets, want %d", len(offsets), 51*51)
	}
	// The stride-7 shuffle only swaps entries 3 positions apart, so no
	// entry may be closer to the center than any entry 4 or more positions
	// before it.
	violations := 0
	maxBefore := -1
	for i := 4; i < len(offsets); i++ {
		if offsets[i-4].Dist2 > maxBefore {
			maxBefore = offsets[i-4].Dist2
		}
		if offsets[i].Dist2 < maxBefore {
			violations++
		}
	}
	if violations > 0 {
		t.Errorf("SpiralOrder has %d entries closer to the center than an entry 4 or more positions earlier", violations)
	}
	if offsets[0].DRow != 0 || offsets[0].DCol != 0 {
		t.Errorf("SpiralOrder[0] = %+v, want the center offset (0,0)", offsets[0])
	}
}

func TestMonotonicDecreasing(t *testing.T) {
	if !MonotonicDecreasing([]float64{5, 4, 4, 2, 0}) {
		t.Error("expected a non-increasing sequence to report monotonic")
	}
	if MonotonicDecreasing([]float64{5, 4, 6, 2}) {
		t.Error("expected a sequence with an increase to report non-monotonic")
	}
}
