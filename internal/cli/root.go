// Package cli provides the layerd command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "layerd",
	Short: "Community economic-layer engine",
	Long: `layerd runs the economic-layer engine for a community: per-member
economic modes (traditional, transitional, pure gift, chameleon), the
migrations between them, mode-filtered abundance and needs feeds, and
community-wide layer statistics.`,
	SilenceUsage: true,
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
