package main

import (
	"log/slog"
	"strings"
	"sync"

	"repair-stack/shared/config"
	"repair-stack/shared/logging"

	"github.com/spf13/cobra"
)

type commandContext struct {
	configFlag *string

	once   sync.Once
	config *config.Config
	logger *slog.Logger
	err    error
}

// ensureConfig loads the configuration once. An empty --config falls back to
// CONFIG_FILE and then config.yaml.
func (c *commandContext) ensureConfig() (*config.Config, *slog.Logger, error) {
	c.once.Do(func() {
		var cfg *config.Config
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			cfg, c.err = config.LoadFile(path)
		} else {
			cfg, c.err = config.Load()
		}
		if c.err != nil {
			return
		}
		c.logger, c.err = logging.NewFromConfig(cfg)
		c.config = cfg
	})
	return c.config, c.logger, c.err
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "repair-guide",
		Short:         "Find repair videos and extract their captions and storyboard frames",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newDevicesCommand(ctx))
	rootCmd.AddCommand(newAuthCommand(ctx))
	return rootCmd
}
