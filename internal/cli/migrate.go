package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/layerline/layerd/internal/app/community"
	"github.com/layerline/layerd/internal/app/exchange"
	"github.com/layerline/layerd/internal/app/migration"
	"github.com/layerline/layerd/internal/daemon"
	"github.com/layerline/layerd/internal/domain"
	"github.com/layerline/layerd/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringP("config", "c", "", "Path to TOML config file")
	migrateCmd.Flags().StringP("reason", "r", "", "Reason recorded in the migration history")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate USER_ID TO_MODE",
	Short: "Migrate a user to another economic mode",
	Long: `Migrate a user to another economic mode against the local database.
TO_MODE is one of TRADITIONAL, TRANSITIONAL, GIFT_PURE, CHAMELEON.`,
	Args: cobra.ExactArgs(2),
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	userID, toMode := args[0], domain.EconomicMode(args[1])
	path, _ := cmd.Flags().GetString("config")
	reason, _ := cmd.Flags().GetString("reason")

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
	celebrations := exchange.NewCelebrations(db)
	executor := migration.New(db, celebrations, agg)

	result, err := executor.Migrate(userID, toMode, reason)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s\n%s\n", result.Message.Title, result.Message.Body)
	if result.CreditsConverted > 0 {
		fmt.Fprintf(os.Stdout, "Credits converted: %d\n", result.CreditsConverted)
	}
	if result.Warning != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", result.Warning)
	}
	return nil
}
