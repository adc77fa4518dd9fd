// Package seedbank implements the per-site species seed presence map,
// yearly external seed rain, mature-tree dispersal, and site-based
// recruitment gating (spec §4.7).
package seedbank

import (
	"math"

	"github.com/ecotroll/troll/grid"
	"github.com/ecotroll/troll/rng"
	"github.com/ecotroll/troll/tree"
)

// Bank holds SPECIES_SEEDS, the per-site species seed map (spec §3
// "Lifecycles"). When SeedTradeoff is disabled, each (site, species) count
// is clamped to {0,1}, a presence flag; several species can be present at
// one site, so the sum over species at a site is not limited to 1. When
// enabled, counts accumulate without bound.
type Bank struct {
	Grid         *grid.Grid
	NbSpecies    int
	SeedTradeoff bool

	counts [][]int // [site][sp]
}

// New allocates a Bank over g's sites for nbSpecies species (species index
// 0 left unused, matching tree.Tree.SpLab's convention).
func New(g *grid.Grid, nbSpecies int, seedTradeoff bool) *Bank {
	b := &Bank{Grid: g, NbSpecies: nbSpecies, SeedTradeoff: seedTradeoff}
	b.counts = make([][]int, g.Sites)
	for i := range b.counts {
		b.counts[i] = make([]int, nbSpecies+1)
	}
	return b
}

// FillSeed registers a seed of species sp landing at (row, col); out-of-
// grid coordinates are silently dropped (dispersal can land beyond the
// simulated area, spec §4.7 "calls FillSeed(col+delta_col, row+delta_row,
// sp_lab)").
func (b *Bank) FillSeed(row, col, sp int) {
	site, ok := b.Grid.Site(row, col)
	if !ok {
		return
	}
	if b.SeedTradeoff {
		b.counts[site][sp]++
		return
	}
	if b.counts[site][sp] == 0 {
		b.counts[site][sp] = 1
	}
}

// Present reports whether species sp has a seed present at site (count >
// 0 either way).
func (b *Bank) Present(site, sp int) bool { return b.counts[site][sp] > 0 }

// Count returns the raw seed count at (site, sp).
func (b *Bank) Count(site, sp int) int { return b.counts[site][sp] }

// Consume removes the seed(s) of species sp at site once a tree germinates
// there (spec §4.7 "RecruitTree").
func (b *Bank) Consume(site, sp int) {
	b.counts[site][sp] = 0
}

// SpeciesAt lists the species with a seed present at site, for
// RecruitTree's uniform choice among them.
func (b *Bank) SpeciesAt(site int) []int {
	var out []int
	for sp := 1; sp < len(b.counts[site]); sp++ {
		if b.counts[site][sp] > 0 {
			out = append(out, sp)
		}
	}
	return out
}

// AnnualRefresh performs the yearly external seed rain (spec §4.7 step i):
// a Multinomial(n=totalSeeds, p=uniform) draw distributes totalSeeds
// events across sites, then for each site with k events, a
// Multinomial(n=k, p=regionalFrequencies) draw picks species and calls
// FillSeed.
func (b *Bank) AnnualRefresh(s *rng.Stream, totalSeeds int, regionalFrequencies []float64) {
	sites := b.Grid.Sites
	uniform := make([]float64, sites)
	for i := range uniform {
		uniform[i] = 1
	}
	perSite := s.Multinomial(totalSeeds, uniform)
	for site, k := range perSite {
		if k <= 0 {
			continue
		}
		row, col := b.Grid.RowCol(site)
		if row < 0 || row >= b.Grid.Rows {
			continue
		}
		bySpecies := s.Multinomial(k, regionalFrequencies)
		for sp, n := range bySpecies {
			for i := 0; i < n; i++ {
				b.FillSeed(row, col, sp+1)
			}
		}
	}
}

// MatureTree is the subset of tree.Tree fields dispersal needs; kept
// narrow so the seedbank package does not need the full tree state to
// disperse.
type MatureTree struct {
	Site           int
	SpLab          int
	Nbs0           float64
	MultiplierSeed float64
	Ds             float64 // species dispersal scale, m
}

// Disperse runs dispersal for every mature tree (dbh >= dbhmature is the
// caller's filter before building the MatureTree slice): nbs =
// nbs0*multiplier_seed seeds, each landing at a Rayleigh(ds)-distributed
// radius and uniform angle from the parent (spec §4.7 step ii).
func (b *Bank) Disperse(trees []MatureTree, s *rng.Stream) {
	for _, t := range trees {
		nbs := int(math.Round(t.Nbs0 * t.MultiplierSeed))
		if nbs <= 0 {
			continue
		}
		row0, col0 := b.Grid.RowCol(t.Site)
		for i := 0; i < nbs; i++ {
			radius := s.Rayleigh(t.Ds)
			angle := s.UniformAngle()
			drow := int(math.Round(radius * math.Sin(angle)))
			dcol := int(math.Round(radius * math.Cos(angle)))
			b.FillSeed(row0+drow, col0+dcol, t.SpLab)
		}
	}
}

// RecruitGate decides, for a candidate species at an empty site, whether
// germination is permitted under the configured recruitment gate (spec
// §4.7 "Under LCP_alternative..."; "Under water coupling...").
type RecruitGate struct {
	LAImaxTable func(sp int) float64 // per-species LAImax threshold (LAImax recruitment gate)
	LAI0        float64              // current LAI3D[0][site]

	WaterCoupled  bool
	PsiSoilTop    float64 // psi_soil[0][dcell]
	SpeciesTLP    func(sp int) float64
}

// Allows reports whether species sp may germinate at the site this gate
// was built for.
func (g RecruitGate) Allows(sp int) bool {
	if g.LAImaxTable != nil && g.LAI0 >= g.LAImaxTable(sp) {
		return false
	}
	if g.WaterCoupled && g.SpeciesTLP != nil {
		if g.PsiSoilTop <= 0.5*g.SpeciesTLP(sp) {
			return false
		}
	}
	return true
}

// RecruitTree picks one species uniformly among those present and passing
// the gate at an empty site, returning (sp, ok) (spec §4.7 "pick one
// uniformly at random").
func (b *Bank) RecruitTree(site int, s *rng.Stream, gate RecruitGate) (int, bool) {
	candidates := b.SpeciesAt(site)
	if len(candidates) == 0 {
		return 0, false
	}
	var eligible []int
	for _, sp := range candidates {
		if gate.Allows(sp) {
			eligible = append(eligible, sp)
		}
	}
	if len(eligible) == 0 {
		return 0, false
	}
	sp := eligible[s.Intn(len(eligible))]
	b.Consume(site, sp)
	return sp, true
}

// IsMature reports whether a tree is old enough to disperse seeds (spec
// §4.7: "dbh >= dbhmature").
func IsMature(t *tree.Tree) bool { return t.DBH >= t.DBHmature }
