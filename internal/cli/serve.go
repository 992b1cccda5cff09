package cli

import (
	"github.com/spf13/cobra"

	"github.com/layerline/layerd/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("config", "c", "", "Path to TOML config file")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the layer engine daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := daemon.LoadConfig(path)
	if err != nil {
		return err
	}
	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}
	return d.Run()
}
