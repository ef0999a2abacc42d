// Package cli wires the splitsend commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/moyoez/splitsend-go/notify"
	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

var (
	flags   *types.Config
	rootCmd = &cobra.Command{
		Use:   "splitsend",
		Short: "Download videos and deliver them to Telegram in size-bounded parts",
		Long: `splitsend is a Telegram bot that downloads a video, splits it into
parts that fit the Bot API upload limit and sends them back to the chat.`,
		SilenceUsage: true,
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags = tool.BindFlags(rootCmd)
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSplitCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// loadConfig layers defaults, the config file, the environment and the
// flags, then applies the logging section.
func loadConfig(needToken bool) (types.AppConfig, error) {
	tool.InitLogger()
	cfg, err := tool.LoadConfig(flags.UseConfigPath)
	if err != nil {
		return cfg, err
	}
	tool.ApplyFlagOverrides(&cfg, *flags)
	if err := tool.ValidateConfig(cfg, needToken); err != nil {
		return cfg, err
	}
	if err := tool.ApplyLogConfig(cfg.Log); err != nil {
		return cfg, err
	}
	notify.SetUseNotify(!flags.SkipNotify)
	return cfg, nil
}
