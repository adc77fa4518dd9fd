package crown

import (
	"testing"

	"github.com/ecotroll/troll/lookup"
)

func TestFractionFilled(t *testing.T) {
	if f := FractionFilled(0.1, 1); f != 0.9 {
		t.Errorf("FractionFilled(0.1, 1) = %g, want 0.9", f)
	}
	if f := FractionFilled(0.1, 2); f != 0.225 {
		t.Errorf("FractionFilled(0.1, 2) = %g, want 0.225 (quartered by doubled crown radius)", f)
	}
	if f := FractionFilled(0.99, 0); f > 1 {
		t.Errorf("FractionFilled should clamp to 1, got %g", f)
	}
}

func TestForEachVoxelStaysWithinGrid(t *testing.T) {
	spiral := lookup.SpiralOrder()
	grid := func(row, col int) (int, bool) {
		if row < 0 || row >= 20 || col < 0 || col >= 20 {
			return 0, false
		}
		return row*20 + col, true
	}

	p := Params{Height: 15, CR: 3, CD: 4, LA: 100, FractionFilled: 0.8, Shape: Shape{Profile: Uniform}}
	visited := map[int]bool{}
	totalDensity := 0.0
	ForEachVoxel(p, spiral, 10, 10, 15, grid, func(h, site int, density float64) {
		if site < 0 || site >= 400 {
			t.Fatalf("voxel placed at out-of-range site %d", site)
		}
		visited[site] = true
		totalDensity += density
	})
	if len(visited) == 0 {
		t.Error("ForEachVoxel placed no voxels")
	}
	if totalDensity <= 0 {
		t.Error("ForEachVoxel accumulated no leaf area density")
	}
}

func TestForEachVoxelCropsAtBoundary(t *testing.T) {
	spiral := lookup.SpiralOrder()
	grid := func(row, col int) (int, bool) {
		if row < 0 || row >= 20 || col < 0 || col >= 20 {
			return 0, false
		}
		return row*20 + col, true
	}
	// Centered at a corner, half the crown's footprint falls off-grid.
	p := Params{Height: 10, CR: 4, CD: 3, LA: 50, FractionFilled: 1, Shape: Shape{Profile: Uniform}}
	count := 0
	ForEachVoxel(p, spiral, 0, 0, 10, grid, func(h, site int, density float64) {
		count++
	})
	if count == 0 {
		t.Error("expected at least some voxels placed even when the crown is cropped at the grid edge")
	}
}

func TestGradientProfileWeightsTopHeavy(t *testing.T) {
	spiral := lookup.SpiralOrder()
	grid := func(row, col int) (int, bool) { return row*50 + col, row >= 0 && row < 50 && col >= 0 && col < 50 }
	p := Params{Height: 20, CR: 3, CD: 6, LA: 120, FractionFilled: 1, Shape: Shape{Profile: Gradient}}

	densByLayer := map[int]float64{}
	ForEachVoxel(p, spiral, 25, 25, 20, grid, func(h, site int, density float64) {
		densByLayer[h] += density
	})
	if densByLayer[20] <= densByLayer[15] {
		t.Errorf("gradient profile should weight the top layer (h=20, %.3f) above a lower layer (h=15, %.3f)", densByLayer[20], densByLayer[15])
	}
}
