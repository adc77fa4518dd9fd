// Package config holds the runtime configuration for a TROLL simulation:
// the scenario manifest (paths + feature selectors, spec §9's runtime
// replacement for the source's compile-time macros) and the general
// simulation parameters read from the whitespace-table "general
// parameters" file (spec §6).
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// CrownShape selects the crown silhouette model (spec §9).
type CrownShape int

const (
	Cylinder CrownShape = iota
	Umbrella
)

// ClimateMode selects how the climate series is indexed (spec §4.8).
type ClimateMode int

const (
	Periodic ClimateMode = iota
	FullSeries
)

// LAIProfileMode selects the vertical leaf-area distribution within a
// crown (spec §4.2).
type LAIProfileMode int

const (
	LAIUniform LAIProfileMode = iota
	LAIGradient
)

// RetentionCurve selects the soil water retention model (spec §4.5).
type RetentionCurve int

const (
	BrooksCorey RetentionCurve = iota
	VanGenuchten
)

// RecruitmentGate selects the germination light gate (spec §4.7).
type RecruitmentGate int

const (
	GateLCP RecruitmentGate = iota
	GateLAImax
)

// LARegulation selects the dynamic-leaf-area regulation mode (spec §4.4).
type LARegulation int

const (
	LAStatic LARegulation = iota
	LADynamicV1
	LADynamicV2
)

// Selectors bundles the boolean/enum feature flags that replace the
// source's preprocessor macros (spec §9's "Re-architecture of patterns").
type Selectors struct {
	Water             bool
	CrownShape        CrownShape
	ClimateMode       ClimateMode
	PhenologyDrought  bool
	LAIProfile        LAIProfileMode
	LARegulation      LARegulation
	Sapwood           bool
	SeedsAdditional   bool
	SoilLayerWeight   int // 0, 1, or 2 (spec §3)
	RetentionCurve    RetentionCurve
	NonRandom         bool
	GPPCrown          bool
	BasicTreefall     bool
	SeedTradeoff      bool
	NDD               bool
	CrownMM           bool
	OutputExtended    bool
	OutputInventory   bool
	LCPAlternative    bool
	RecruitmentGate   RecruitmentGate
}

// Params holds the general simulation parameters (spec §6 "General
// parameters file").
type Params struct {
	Rows, Cols, Height int
	NbIter             int
	NV, NH             float64
	LengthDCell        float64 // m, DCELL edge length
	SBORD              int

	Klight             float64
	AbsorptanceLeaves  float64
	Theta              float64
	Phi                float64
	G0                 float64
	G1                 float64

	DBH0, H0           float64
	CRa, CRb           float64
	CDa, CDb           float64
	CRMin              float64
	ShapeCrown         float64
	CrownGapFraction   float64
	Dens               float64

	FallocWood      float64
	FallocCanopy    float64
	CSeedRain       float64
	Nbs0            float64

	// Intraspecific variation (lognormal sigma's, normal sd for wsg, and
	// the (N,P,LMA) covariance matrix correlations).
	SigmaHeight, SigmaCR, SigmaCD, SigmaDbhmax float64
	SigmaN, SigmaP, SigmaLMA                   float64
	SigmaWSG                                   float64
	CorrNP, CorrNLMA, CorrPLMA                 float64

	LeafdemResolution int
	PTFSecondary      float64
	HurtDecay         float64

	M, M1 float64 // basal mortality parameters

	Cair  float64 // ppm
	Press float64 // kPa

	IterPerYear int

	Selectors Selectors
}

// Scenario is the top-level TOML manifest naming the whitespace-table
// input files and feature selectors (spec §6), loaded the same way
// inmaputil/config.go loads InMAP's run configuration with
// github.com/BurntSushi/toml.
type Scenario struct {
	GeneralParametersFile string `toml:"general_parameters_file"`
	SpeciesFile           string `toml:"species_file"`
	ClimateFile           string `toml:"climate_file"`
	DaytimeVariationFile  string `toml:"daytime_variation_file"`
	SoilFile              string `toml:"soil_file"`
	InventoryFile         string `toml:"inventory_file"`
	OutputDir             string `toml:"output_dir"`
	Seed                  int64  `toml:"seed"`

	Water           bool   `toml:"water"`
	CrownShape      string `toml:"crown_shape"`
	ClimateMode     string `toml:"climate_mode"`
	LAIProfile      string `toml:"lai_profile"`
	LARegulation    int    `toml:"la_regulation"`
	BasicTreefall   bool   `toml:"basic_treefall"`
	SeedTradeoff    bool   `toml:"seed_tradeoff"`
	NDD             bool   `toml:"ndd"`
	RetentionCurve  string `toml:"water_retention_curve"`
	RecruitmentGate string `toml:"recruitment_gate"`
}

// LoadScenario reads and parses a TOML scenario manifest.
func LoadScenario(path string) (*Scenario, error) {
	var s Scenario
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("troll: problem parsing scenario file %s: %w", path, err)
	}
	return &s, nil
}

// ToSelectors converts the scenario's string/bool fields into the typed
// Selectors struct consumed by the rest of the model.
func (s *Scenario) ToSelectors() Selectors {
	sel := Selectors{
		Water:         s.Water,
		BasicTreefall: s.BasicTreefall,
		SeedTradeoff:  s.SeedTradeoff,
		NDD:           s.NDD,
	}
	switch s.CrownShape {
	case "umbrella":
		sel.CrownShape = Umbrella
	default:
		sel.CrownShape = Cylinder
	}
	switch s.ClimateMode {
	case "full_series":
		sel.ClimateMode = FullSeries
	default:
		sel.ClimateMode = Periodic
	}
	switch s.LAIProfile {
	case "gradient":
		sel.LAIProfile = LAIGradient
	default:
		sel.LAIProfile = LAIUniform
	}
	switch s.RetentionCurve {
	case "van_genuchten":
		sel.RetentionCurve = VanGenuchten
	default:
		sel.RetentionCurve = BrooksCorey
	}
	switch s.RecruitmentGate {
	case "laimax":
		sel.RecruitmentGate = GateLAImax
	default:
		sel.RecruitmentGate = GateLCP
	}
	sel.LARegulation = LARegulation(s.LARegulation)
	return sel
}

// clampTolerance is the 1% tolerance band used when clamping out-of-range
// parameters to the nearest bound (spec §7).
const clampTolerance = 0.01

// Clamp clamps v into [lo, hi] and reports whether v was moved; logging is
// left to the caller. A value inside the 1% tolerance band just outside a
// bound is clamped and reported exactly like a value beyond the band, so
// the band does not change the result (spec §7: "Parameters out of
// [min,max] clamp to the closer bound with a 1% tolerance band").
func Clamp(v, lo, hi float64) (float64, bool) {
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	tol := span * clampTolerance
	if v < lo-tol {
		return lo, true
	}
	if v > hi+tol {
		return hi, true
	}
	if v < lo {
		return lo, true
	}
	if v > hi {
		return hi, true
	}
	return v, false
}

// mustExist is a small helper used by callers validating that a path was
// supplied before attempting to open it (spec §7 input-schema errors).
func mustExist(path, what string) error {
	if path == "" {
		return fmt.Errorf("troll: no %s specified", what)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("troll: %s %q: %w", what, path, err)
	}
	return nil
}

// Validate checks that the scenario names a general parameters file and
// species file, the two inputs the core cannot run without.
func (s *Scenario) Validate() error {
	if err := mustExist(s.GeneralParametersFile, "general parameters file"); err != nil {
		return err
	}
	if err := mustExist(s.SpeciesFile, "species file"); err != nil {
		return err
	}
	return nil
}
