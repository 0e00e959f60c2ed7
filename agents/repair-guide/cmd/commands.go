package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	repairguide "repair-stack/agents/repair-guide"
	"repair-stack/agents/repair-guide/youtube"
	"repair-stack/shared/config"
	"repair-stack/shared/devices"
	"repair-stack/shared/scheduler"

	"github.com/spf13/cobra"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Run the pipeline once for a device query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			agent := repairguide.NewAgent(cfg, logger)
			if err := agent.Initialize(); err != nil {
				return err
			}
			defer agent.Close()

			set, err := agent.Search(cmd.Context(), strings.Join(args, " "))
			fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", repairguide.StatusFor(err))
			if err != nil {
				return errors.New(repairguide.Describe(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "device: %s\n", set.DeviceContext)
			fmt.Fprintln(cmd.OutOrStdout(), renderRecords(set.Videos))
			return nil
		},
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh the configured watch queries on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if len(cfg.Watch.Queries) == 0 {
				return &config.ConfigurationError{Field: "watch.queries", Reason: "no queries to watch"}
			}

			agent := repairguide.NewAgent(cfg, logger)
			defer agent.Close()
			s := scheduler.New(cfg.Watch, agent, logger)

			if once {
				logger.Info("running once")
				if err := agent.Initialize(); err != nil {
					return fmt.Errorf("failed to initialize agent: %w", err)
				}
				if err := s.RunOnce(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), s.Monitor().GetStatusSummary())
				return nil
			}

			logger.Info("starting scheduler")
			return s.Start(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single pass and exit")
	return cmd
}

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Manage the device-name database",
	}

	var dbPath string
	lookup := &cobra.Command{
		Use:   "lookup <query>",
		Short: "Resolve a query to a canonical device name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := dbPath
			if path == "" {
				path = os.Getenv("DEVICE_DB")
			}
			if path == "" {
				cfg, _, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				path = cfg.Devices.DatabasePath
			}
			if path == "" {
				return &config.ConfigurationError{Field: "devices.database_path", Reason: "is required (set DEVICE_DB or --db)"}
			}

			store, err := devices.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			query := strings.Join(args, " ")
			name, err := store.Lookup(cmd.Context(), query)
			if err != nil {
				return err
			}
			if name == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "no device matches %q\n", query)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
	lookup.Flags().StringVar(&dbPath, "db", "", "Device database path")

	build := &cobra.Command{
		Use:   "build <source.db> <devices.db>",
		Short: "Build the device database from a model/family catalogue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := devices.Build(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d device names to %s\n", n, args[1])
			return nil
		},
	}

	cmd.AddCommand(lookup, build)
	return cmd
}

func newAuthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize the YouTube Data API catalog with the device flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			yt := cfg.Catalog.YouTube
			if yt.ClientID == "" || yt.ClientSecret == "" {
				return &config.ConfigurationError{Field: "catalog.youtube.client_id", Reason: "client_id and client_secret are required for auth"}
			}
			yt.APIKey = ""
			if _, err := youtube.NewDataAPICatalog(cmd.Context(), yt, cfg.Download.StoryboardFormat, true, logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token saved to %s\n", yt.TokenFile)
			return nil
		},
	}
}
