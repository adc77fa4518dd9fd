// Package trollutil wires the CLI in cmd/troll/main.go together, the same
// split the teacher keeps between cmd/inmap and inmaputil (spec §9 "Ambient
// stack: CLI").
package trollutil

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags, matching inmap.Version's
// convention; it stays "dev" otherwise.
var Version = "dev"

// Cfg holds the parsed flag values shared across the run subcommand tree.
type Cfg struct {
	ScenarioFile string
	LogLevel     string
	NbIterOverride int
	SeedOverride   int64
}

// Root is the top-level command tree, mirroring inmaputil.Root's shape:
// a bare "troll" root with "run" and "version" subcommands.
var Root *cobra.Command

func init() {
	cfg := &Cfg{}

	Root = &cobra.Command{
		Use:   "troll",
		Short: "A tropical forest growth and light-competition simulator.",
		Long: `TROLL simulates tropical forest stand dynamics from per-tree light
competition, carbon allocation, treefall disturbance, and seed dispersal
described by a TOML scenario file. Use the subcommands below to run a
simulation or check the build version.`,
		DisableAutoGenTag: true,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  "version prints the version number of this build of troll.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("troll v%s\n", Version)
		},
		DisableAutoGenTag: true,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation from a scenario file.",
		Long: `run loads a TOML scenario file naming the general parameters, species,
climate, daytime variation and inventory files and steps the model for
the configured number of iterations, logging a summary line per step and
writing a final snapshot to the scenario's output directory. The soil
file named in the scenario is not read.`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.ScenarioFile == "" {
				return fmt.Errorf("troll: --scenario is required")
			}
			return Run(cfg)
		},
	}
	flags := runCmd.Flags()
	flags.StringVar(&cfg.ScenarioFile, "scenario", "", "path to the TOML scenario file")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "logrus level: debug, info, warn, error")
	flags.IntVar(&cfg.NbIterOverride, "nbiter", 0, "override the scenario's iteration count (0 = use scenario value)")
	flags.Int64Var(&cfg.SeedOverride, "seed", 0, "override the scenario's RNG seed (0 = use scenario value)")

	Root.AddCommand(versionCmd, runCmd)
}
