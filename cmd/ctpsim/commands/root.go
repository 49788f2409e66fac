package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// configPath is the shared --config flag: path to the simulation's YAML
// configuration file. Empty means [config.DefaultConfig].
var configPath string

// rootCmd is the top-level cobra command for ctpsim.
var rootCmd = &cobra.Command{
	Use:   "ctpsim",
	Short: "Collection Tree Protocol simulator",
	Long:  "ctpsim runs a Collection Tree Protocol simulation over a configured sensor-network topology.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (YAML)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(shellCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
