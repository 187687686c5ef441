package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nci/gapfill/logging"
	"github.com/nci/gapfill/utils"
)

// overrides are the flags that take precedence over the config file.
type overrides struct {
	configFile string
	baseFolder string
	workers    int
	logLevel   string
}

func main() {
	var ov overrides
	var cfg *utils.Config

	rootCmd := &cobra.Command{
		Use:           "gapfill-batch",
		Short:         "Cloud and shadow detection and gap filling of Sentinel-2 date folders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = loadConfig(&ov)
			return err
		},
	}
	rootCmd.PersistentFlags().StringVarP(&ov.configFile, "config", "c", "", "YAML or JSON config file")
	rootCmd.PersistentFlags().StringVar(&ov.baseFolder, "base-folder", "", "Folder holding the YYYY-MM-DD date folders")
	rootCmd.PersistentFlags().IntVarP(&ov.workers, "workers", "n", 0, "Dates processed concurrently")
	rootCmd.PersistentFlags().StringVar(&ov.logLevel, "log-level", "", "debug, info, warn, error or critical")

	config := func() *utils.Config { return cfg }
	rootCmd.AddCommand(
		setupRunCommand(config, false),
		setupRunCommand(config, true),
		setupSummaryCommand(config),
		setupDatesCommand(config),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.CriticalEvent().Err(err).Msg("gapfill-batch failed")
		stop()
		os.Exit(1)
	}
}

func loadConfig(ov *overrides) (*utils.Config, error) {
	cfg := utils.DefaultConfig()
	if ov.configFile != "" {
		var err error
		if cfg, err = utils.LoadConfigFile(ov.configFile); err != nil {
			return nil, err
		}
	}
	if ov.baseFolder != "" {
		cfg.BaseFolder = ov.baseFolder
	}
	if ov.workers > 0 {
		cfg.Processor.Workers = ov.workers
	}
	if ov.logLevel != "" {
		cfg.Logging.Level = ov.logLevel
	}
	if cfg.OutputFolder == "" {
		cfg.OutputFolder = cfg.BaseFolder
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := logging.Init(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}
