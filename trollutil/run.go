package trollutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	troll "github.com/ecotroll/troll"
	"github.com/ecotroll/troll/config"
	"github.com/ecotroll/troll/tree"
)

// Run executes a full scenario: load inputs, build a Simulation, step it
// NbIter times logging one summary line per step, and write a final
// snapshot (spec §6 "Outputs"). The scenario's soil file is not read.
func Run(cfg *Cfg) error {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	scenario, err := config.LoadScenario(cfg.ScenarioFile)
	if err != nil {
		return err
	}
	if err := scenario.Validate(); err != nil {
		return err
	}

	f, err := os.Open(scenario.GeneralParametersFile)
	if err != nil {
		return fmt.Errorf("troll: opening general parameters file: %w", err)
	}
	p, warnings, err := troll.ReadGeneralParams(f)
	f.Close()
	if err != nil {
		return err
	}
	for _, w := range warnings {
		log.Warn(w)
	}
	p.Selectors = scenario.ToSelectors()
	if cfg.NbIterOverride > 0 {
		p.NbIter = cfg.NbIterOverride
	}

	sf, err := os.Open(scenario.SpeciesFile)
	if err != nil {
		return fmt.Errorf("troll: opening species file: %w", err)
	}
	species, err := troll.ReadSpeciesTable(sf)
	sf.Close()
	if err != nil {
		return err
	}

	seed := scenario.Seed
	if cfg.SeedOverride != 0 {
		seed = cfg.SeedOverride
	}

	sim := troll.New(p, p.Selectors, species, seed, log)

	if scenario.ClimateFile != "" {
		cf, err := os.Open(scenario.ClimateFile)
		if err != nil {
			return fmt.Errorf("troll: opening climate file: %w", err)
		}
		climates, err := troll.ReadClimateTable(cf)
		cf.Close()
		if err != nil {
			return err
		}
		sim.Climates = climates
	}

	if scenario.DaytimeVariationFile != "" {
		df, err := os.Open(scenario.DaytimeVariationFile)
		if err != nil {
			return fmt.Errorf("troll: opening daytime variation file: %w", err)
		}
		daytime, err := troll.ReadDaytimeProfile(df, 12)
		df.Close()
		if err != nil {
			return err
		}
		sim.Daytime = daytime
	}

	if scenario.InventoryFile != "" {
		if err := loadInventory(sim, scenario.InventoryFile, species); err != nil {
			return err
		}
	}

	outDir := scenario.OutputDir
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("troll: creating output directory: %w", err)
	}

	for i := 0; i < p.NbIter; i++ {
		res := sim.Step()
		log.WithFields(logrus.Fields{
			"iter":      i,
			"abundance": res.Global.Abundance,
			"agb":       res.Global.AGB,
			"gpp":       res.Global.GPP,
			"fallen":    res.Fallen,
			"died":      res.Died,
			"recruited": res.Recruited,
		}).Info("step complete")
	}

	snapPath := filepath.Join(outDir, "final_snapshot.txt")
	out, err := os.Create(snapPath)
	if err != nil {
		return fmt.Errorf("troll: creating snapshot file: %w", err)
	}
	defer out.Close()
	if err := troll.WriteSnapshot(out, sim.Grid, sim.AliveTrees(), species); err != nil {
		return fmt.Errorf("troll: writing snapshot: %w", err)
	}
	log.Infof("wrote final snapshot to %s", snapPath)
	return nil
}

// loadInventory germinates a tree for each inventory row at its named site
// (or the next free site, in row order, when coordinates are absent or off
// the grid), species matched by name (spec §6 "Inventory file"). Rows whose
// species name is not in the species table are skipped, and a row whose
// named site is already occupied germinates nothing. The row's
// dbh/height/CR/CD columns are not used: Birth initialises allometry from
// Species and Params.
func loadInventory(sim *troll.Simulation, path string, species []*tree.Species) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("troll: opening inventory file: %w", err)
	}
	defer f.Close()

	rows, err := troll.ReadInventory(f)
	if err != nil {
		return err
	}

	byName := make(map[string]int, len(species))
	for i, sp := range species {
		if sp != nil {
			byName[sp.Name] = i
		}
	}

	free := sim.EmptySites()
	freeIdx := 0
	for _, row := range rows {
		spIdx, ok := byName[row.SpeciesName]
		if !ok {
			continue
		}
		site := -1
		if row.HasCoordinates {
			if s, ok := sim.Grid.Site(row.Row, row.Col); ok {
				site = s
			}
		}
		if site < 0 {
			for freeIdx < len(free) {
				s := free[freeIdx]
				freeIdx++
				if !sim.Trees[s].IsAlive() {
					site = s
					break
				}
			}
		}
		if site < 0 {
			continue
		}
		_ = sim.GerminateAt(site, spIdx)
	}
	return nil
}
