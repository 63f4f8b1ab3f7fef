package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var assetsCmd = &cobra.Command{
	Use:   "assets [category]",
	Short: "List catalog instruments",
	Long: `List the instruments of the asset catalog, optionally restricted to
one category.

Examples:
  gamectl assets
  gamectl assets Crypto
  gamectl assets "Private Equity" --catalog ./assets.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAssets,
}

func init() {
	rootCmd.AddCommand(assetsCmd)
}

func runAssets(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	assets := cat.All()
	if len(args) == 1 {
		assets = cat.ByCategory(args[0])
		if len(assets) == 0 {
			return fmt.Errorf("no assets in category %q (have %v)", args[0], cat.Categories())
		}
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tRETURN\tVOL\tLOCKUP\tPENALTY")
	for _, a := range assets {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%.1f%%\t%d\t%.1f%%\n",
			a.Name, a.Category, a.ExpectedReturn*100, a.Volatility*100, a.Lockup, a.ExitPenalty*100)
	}
	return tw.Flush()
}
