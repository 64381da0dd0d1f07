package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	cfg    *Config
	logger *slog.Logger
)

// Execute runs the chatrelayd command tree.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "chatrelayd",
		Short:        "WebSocket chat relay with an external delivery round trip",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				loaded.Log.Level = logLevel
			}
			if logFormat != "" {
				loaded.Log.Format = logFormat
			}

			l, err := loaded.NewLogger()
			if err != nil {
				return err
			}
			slog.SetDefault(l)

			cfg, logger = loaded, l
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./chatrelay.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(serveCmd(), simulateCmd(), secretCmd())
	return root
}
