package tree

// Species holds the static, per-species parameters (spec §3 "Species
// (static, per species s)").
type Species struct {
	Name string

	LMA       float64 // g/m2
	Nmass     float64 // g/g
	Pmass     float64 // g/g
	WSG       float64 // g/cm3
	DBHmax    float64 // m
	Hmax      float64 // m
	Ah        float64 // m, height allometry half-saturation
	Ds        float64 // m, dispersal scale (Rayleigh kernel)
	SeedMass  float64 // g
	RegionalFrequency float64
	TLP       float64 // MPa
	LeafArea  float64 // cm2
	SeedsExternal float64 // s_seeds_external, external seed rain count

	// Derived once at load time.
	DBHmature float64 // 0.5*DBHmax
	LCP       float64 // light compensation point equivalent
}

// Finalize computes the once-only derived fields (spec §3 "Derived
// once").
func (s *Species) Finalize() {
	s.DBHmature = 0.5 * s.DBHmax
	// LCP via a simple leaf-economics proxy: higher LMA/lower Nmass
	// species tolerate lower light. This is the "per-tree equivalent via
	// lookup" placeholder the spec leaves open (no closed form given);
	// CalcLAImax performs the authoritative bisection-based computation
	// used at birth (spec §9 open question on its tolerance).
	s.LCP = 2.0 * s.LMA / (1 + s.Nmass*100)
}
