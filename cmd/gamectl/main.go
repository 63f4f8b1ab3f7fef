// Command gamectl inspects the asset catalog and runs portfolio
// projections from the command line, without a server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atmx/allocation-game/internal/catalog"
)

var catalogPath string

// rootCmd is the base command for the gamectl CLI
var rootCmd = &cobra.Command{
	Use:           "gamectl",
	Short:         "Allocation game tooling",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "Path to an asset catalog YAML (default: embedded catalog)")
}

func loadCatalog() (*catalog.Catalog, error) {
	if catalogPath == "" {
		return catalog.Default()
	}
	return catalog.Load(catalogPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
