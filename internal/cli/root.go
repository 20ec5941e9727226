// Package cli implements the pypes CLI.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	verifyOnly  bool
	entrypoint  string
	allowUnsafe bool
	verbose     bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pypes",
	Short: "Verify and run capability-safe sandboxed-module agents",
	Long: `pypes statically proves that a blueprint's wiring cannot realize a
dangerous capability combination, then links and runs the sandboxed
modules it describes.

A blueprint names the components, wires consumer imports to provider
exports, and optionally declares a workflow of typed calls. Before any
module executes, the analyzer propagates capabilities over the wiring
graph and refuses blueprints that violate the safety rules (the lethal
trifecta and the deadly duo).

Examples:
  pypes --config agent.toml
  pypes --config agent.toml --verify-only
  pypes --config agent.toml --entrypoint planner
  pypes --config agent.toml --allow-unsafe`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "blueprint file (required)")
	rootCmd.Flags().BoolVar(&verifyOnly, "verify-only", false, "run the safety analyzer and exit")
	rootCmd.Flags().StringVarP(&entrypoint, "entrypoint", "e", "orchestrator", "component whose 'run' export to call when no workflow is declared")
	rootCmd.Flags().BoolVar(&allowUnsafe, "allow-unsafe", false, "proceed despite safety violations")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose wiring and call logging")
	_ = rootCmd.MarkFlagRequired("config")

	_ = viper.BindPFlag("verbose", rootCmd.Flags().Lookup("verbose"))
	viper.SetEnvPrefix("PYPES")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newVersionCmd())
}
