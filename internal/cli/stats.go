package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/layerline/layerd/internal/app/community"
	"github.com/layerline/layerd/internal/daemon"
	"github.com/layerline/layerd/internal/domain"
	"github.com/layerline/layerd/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringP("config", "c", "", "Path to TOML config file")
	statsCmd.Flags().String("community", "", "Limit to one community (default: global)")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the economic-layer distribution",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	communityID, _ := cmd.Flags().GetString("community")

	cfg, err := daemon.LoadConfig(path)
	if err != nil {
		return err
	}
	db, err := sqlite.Open(cfg.DataDir())
	if err != nil {
		return err
	}
	defer db.Close()

	agg := community.New(db, db)
	stats, err := agg.Stats(communityID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODE\tMEMBERS\tSHARE")
	for _, mode := range statModes() {
		fmt.Fprintf(w, "%s\t%d\t%d%%\n", mode, stats.Counts[mode], stats.Percentages[mode])
	}
	fmt.Fprintf(w, "TOTAL\t%d\t\n", stats.Total)
	return w.Flush()
}

// statModes returns the modes in display order for CLI output.
func statModes() []domain.EconomicMode {
	return domain.AllModes()
}
