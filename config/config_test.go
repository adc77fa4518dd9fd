package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClamp(t *testing.T) {
	cases := []struct {
		name        string
		v, lo, hi   float64
		want        float64
		wantClamped bool
	}{
		{"inside range", 5, 0, 10, 5, false},
		{"below with tolerance absorbed", -0.05, 0, 10, 0, true},
		{"below bound", -5, 0, 10, 0, true},
		{"above bound", 15, 0, 10, 10, true},
		{"exactly on bound", 10, 0, 10, 10, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, clamped := Clamp(c.v, c.lo, c.hi)
			if got != c.want || clamped != c.wantClamped {
				t.Errorf("Clamp(%g, %g, %g) = (%g, %v), want (%g, %v)", c.v, c.lo, c.hi, got, clamped, c.want, c.wantClamped)
			}
		})
	}
}

func TestLoadScenarioAndSelectors(t *testing.T) {
	dir := t.TempDir()
	generalPath := filepath.Join(dir, "general.txt")
	speciesPath := filepath.Join(dir, "species.txt")
	if err := os.WriteFile(generalPath, []byte("rows\n10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(speciesPath, []byte("s_name\nFakus\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	toml := `
general_parameters_file = "` + generalPath + `"
species_file = "` + speciesPath + `"
water = true
crown_shape = "umbrella"
climate_mode = "full_series"
lai_profile = "gradient"
water_retention_curve = "van_genuchten"
recruitment_gate = "laimax"
`
	scenarioPath := filepath.Join(dir, "scenario.toml")
	if err := os.WriteFile(scenarioPath, []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadScenario(scenarioPath)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	sel := s.ToSelectors()
	if !sel.Water || sel.CrownShape != Umbrella || sel.ClimateMode != FullSeries ||
		sel.LAIProfile != LAIGradient || sel.RetentionCurve != VanGenuchten || sel.RecruitmentGate != GateLAImax {
		t.Errorf("ToSelectors mismapped string fields: %+v", sel)
	}
}

func TestScenarioValidateMissingFile(t *testing.T) {
	s := &Scenario{GeneralParametersFile: "", SpeciesFile: ""}
	if err := s.Validate(); err == nil {
		t.Error("expected an error for a scenario missing required files")
	}
}
