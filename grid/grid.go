// Package grid holds the horizontal site lattice and the coarser DCELL
// aggregation it is grouped into for the soil water model (spec §3 "DCELL
// soil grid").
package grid

import (
	"fmt"

	"github.com/ctessum/unit"
)

// Grid is the horizontal site lattice: Cols*Rows interior sites plus
// SBORD padding sites before and after them in the linear site index
// (spec §3). Site never resolves a coordinate to a padding site, so crown
// voxels past the simulated area are cropped (spec §4.2 "Crown edges may
// be cropped at the grid boundary").
type Grid struct {
	Rows, Cols int
	SBORD      int
	Sites      int
}

// New builds a Grid for the given dimensions.
func New(rows, cols, sbord int) *Grid {
	return &Grid{Rows: rows, Cols: cols, SBORD: sbord, Sites: rows*cols + 2*sbord}
}

// Site resolves a (row, col) coordinate to its interior site index, or
// returns ok=false if it falls outside [0,rows)x[0,cols) — the crown
// package's SiteLookup contract (spec §4.2).
func (g *Grid) Site(row, col int) (int, bool) {
	if row < 0 || row >= g.Rows || col < 0 || col >= g.Cols {
		return 0, false
	}
	return g.SBORD + row*g.Cols + col, true
}

// RowCol inverts Site for an interior site index.
func (g *Grid) RowCol(site int) (row, col int) {
	s := site - g.SBORD
	return s / g.Cols, s % g.Cols
}

// DCellLength validates the general-parameters file's length_dcell value
// and returns it as a dimensioned length, the one place in the model where
// a unit mix-up (sites vs. meters) would silently corrupt every downstream
// soil water computation (spec §6 general parameters file, `length_dcell`).
// Everywhere else in the model a DCELL length is used as a plain int
// number of sites (DCellGrid.LengthDCell), matching the teacher's own practice of unwrapping
// *unit.Unit to float64 immediately after validating it at the config
// boundary (emissions/aep/inventory.go).
func DCellLength(lengthDCell float64) (*unit.Unit, error) {
	if lengthDCell <= 0 {
		return nil, fmt.Errorf("troll: length_dcell must be positive, got %g", lengthDCell)
	}
	return unit.New(lengthDCell, unit.Dimensions{unit.LengthDim: 1}), nil
}

// DCellGrid is the coarser grid the soil water model operates over: each
// dcell covers lengthDCell x lengthDCell sites (spec §3).
type DCellGrid struct {
	Sites         *Grid
	LengthDCell   int // sites per dcell edge
	LinearNbDCells int
	NbDCells      int
}

// NewDCellGrid derives the DCELL aggregation from the site grid and the
// per-edge length in sites.
func NewDCellGrid(sites *Grid, lengthDCell int) *DCellGrid {
	if lengthDCell < 1 {
		lengthDCell = 1
	}
	linear := (sites.Rows + lengthDCell - 1) / lengthDCell
	colsLinear := (sites.Cols + lengthDCell - 1) / lengthDCell
	if colsLinear > linear {
		linear = colsLinear
	}
	return &DCellGrid{Sites: sites, LengthDCell: lengthDCell, LinearNbDCells: linear, NbDCells: linear * linear}
}

// DCellIndex returns the dcell index covering the given interior site.
func (d *DCellGrid) DCellIndex(site int) int {
	row, col := d.Sites.RowCol(site)
	dr := row / d.LengthDCell
	dc := col / d.LengthDCell
	return dr*d.LinearNbDCells + dc
}
