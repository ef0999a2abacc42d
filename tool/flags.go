package tool

import (
	"github.com/spf13/cobra"

	"github.com/moyoez/splitsend-go/types"
)

// BindFlags registers the persistent override flags on the root command.
func BindFlags(cmd *cobra.Command) *types.Config {
	cfg := &types.Config{}
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.Log, "log", "", "log mode: dev|prod|none")
	flags.StringVar(&cfg.UseConfigPath, "config", "", "override config file path")
	flags.StringVar(&cfg.UseDownloadDir, "download-dir", "", "override download directory")
	flags.StringVar(&cfg.UseStrategy, "strategy", "", "upload strategy: streaming|simple|s3")
	flags.StringVar(&cfg.UseListen, "listen", "", "status API listen address")
	flags.Int64Var(&cfg.UseMaxChunkMB, "max-chunk-mb", 0, "override maximum chunk size in MB")
	flags.BoolVar(&cfg.NoAPI, "no-api", false, "do not start the status API")
	flags.BoolVar(&cfg.SkipNotify, "skip-notify", false, "disable socket and websocket notifications")
	return cfg
}
