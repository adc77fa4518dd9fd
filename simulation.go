package troll

import (
	"github.com/sirupsen/logrus"

	"github.com/ecotroll/troll/config"
	"github.com/ecotroll/troll/crown"
	"github.com/ecotroll/troll/grid"
	"github.com/ecotroll/troll/leafflux"
	"github.com/ecotroll/troll/lookup"
	"github.com/ecotroll/troll/rng"
	"github.com/ecotroll/troll/seedbank"
	"github.com/ecotroll/troll/soilwater"
	"github.com/ecotroll/troll/tree"
	"github.com/ecotroll/troll/treefall"
	"github.com/ecotroll/troll/voxel"
)

// Simulation owns every array and subsystem a TROLL run needs, replacing
// the source's process-wide global state with a single context explicitly
// threaded through the scheduler (spec §9 "Re-architecture of patterns").
type Simulation struct {
	Params    *config.Params
	Selectors config.Selectors
	Species   []*tree.Species // index 0 unused, matching Tree.SpLab

	Grid   *grid.Grid
	DCells *grid.DCellGrid

	Tables *lookup.Tables
	Spiral []lookup.Offset
	Voxel  *voxel.Field
	Solver *leafflux.Solver

	Soil     *soilwater.Model // nil when Selectors.Water is false
	Treefall *treefall.Engine
	Seeds    *seedbank.Bank

	Trees []*tree.Tree // dense, index-addressable pool, one per site (spec §9)

	Stream *rng.Stream

	Climates []Climate
	Daytime  *DaytimeProfile

	Log *logrus.Logger

	Iter int
}

// New builds a Simulation ready to Step, allocating every large array once
// (spec §5 resource policy).
func New(p *config.Params, sel config.Selectors, species []*tree.Species, seed int64, log *logrus.Logger) *Simulation {
	if log == nil {
		log = logrus.StandardLogger()
	}
	g := grid.New(p.Rows, p.Cols, p.SBORD)
	tables := lookup.NewTables(p.Klight)

	s := &Simulation{
		Params:    p,
		Selectors: sel,
		Species:   species,
		Grid:      g,
		Tables:    tables,
		Spiral:    lookup.SpiralOrder(),
		Voxel:     voxel.New(p.Height, p.Cols, p.Rows, p.SBORD, p.Klight, tables),
		Solver:    leafflux.New(tables),
		Treefall:  treefall.New(g, p.PTFSecondary, p.HurtDecay, p.NV),
		Seeds:     seedbank.New(g, len(species)-1, sel.SeedTradeoff),
		Trees:     make([]*tree.Tree, g.Sites),
		Stream:    rng.New(seed),
		Daytime:   defaultDaytimeProfile(),
		Log:       log,
	}
	for i := range s.Trees {
		s.Trees[i] = &tree.Tree{Site: i}
	}
	if sel.Water {
		dcellLen, err := grid.DCellLength(p.LengthDCell)
		lengthDCell := 1
		if err == nil {
			lengthDCell = int(dcellLen.Value())
		}
		if lengthDCell < 1 {
			lengthDCell = 1
		}
		s.DCells = grid.NewDCellGrid(g, lengthDCell)
		s.Soil = soilwater.New(s.DCells, defaultSoilLayers(), sel.RetentionCurve, sel.SoilLayerWeight)
	}
	return s
}

// defaultSoilLayers is the layer stack New gives every water-enabled
// Simulation. Neither New nor trollutil.Run reads the scenario's soil file
// (spec §6 "Soil file"), so these layers stay in place unless a caller
// replaces Simulation.Soil.
func defaultSoilLayers() []soilwater.Layer {
	return []soilwater.Layer{
		{Thickness: 0.3, ThetaSat: 0.45, ThetaResidual: 0.08, ThetaFC: 0.30, Ksat: 1e-5, PsiEntry: 0.001, BCb: 5, VGAlpha: 2, VGn: 1.4},
		{Thickness: 0.7, ThetaSat: 0.42, ThetaResidual: 0.07, ThetaFC: 0.28, Ksat: 5e-6, PsiEntry: 0.0015, BCb: 6, VGAlpha: 1.5, VGn: 1.3},
		{Thickness: 1.0, ThetaSat: 0.40, ThetaResidual: 0.06, ThetaFC: 0.25, Ksat: 2e-6, PsiEntry: 0.002, BCb: 7, VGAlpha: 1.2, VGn: 1.25},
	}
}

// layerBounds returns the cumulative depth (m) at the top of each layer
// plus the bottom of the deepest layer, for the root-profile weighting in
// soilwater.WaterAvailability.
func layerBounds(layers []soilwater.Layer) []float64 {
	bounds := make([]float64, len(layers)+1)
	for i, l := range layers {
		bounds[i+1] = bounds[i] + l.Thickness
	}
	return bounds
}

// AliveTrees returns every live tree (age > 0), the spec's invariant I1
// definition of "alive".
func (s *Simulation) AliveTrees() []*tree.Tree {
	out := make([]*tree.Tree, 0, len(s.Trees))
	for _, t := range s.Trees {
		if t.IsAlive() {
			out = append(out, t)
		}
	}
	return out
}

// EmptySites returns the site indices with no live tree.
func (s *Simulation) EmptySites() []int {
	var out []int
	for i, t := range s.Trees {
		if !t.IsAlive() {
			out = append(out, i)
		}
	}
	return out
}
