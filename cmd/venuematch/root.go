package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/config"
	"github.com/kapu/venue-match-go/internal/util"
)

var (
	dataDirFlag  string
	logLevelFlag string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "venuematch",
	Short: "Match restaurant venues to distributor products",
	Long: `venuematch discovers venues, scrapes their menus and ingredients, parses a
product catalogue and asks a language model which products suit each venue.

Stages run in order and pass files through the data directory:
  venues -> menu-urls -> ingredients -> match
  menus and catalogue feed the same data directory independently.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (overrides DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
}

func setup(*cobra.Command, []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	if dataDirFlag != "" {
		loaded.Pipeline.DataDir = dataDirFlag
	}
	if logLevelFlag != "" {
		loaded.Logging.Level = logLevelFlag
	}

	l, err := util.NewLogger(loaded.Logging.Level, loaded.Logging.File)
	if err != nil {
		return err
	}
	cfg, logger = loaded, l
	return nil
}

// pathOr returns flagValue when set and the data directory file name otherwise.
func pathOr(flagValue, name string) string {
	if flagValue != "" {
		return flagValue
	}
	return cfg.DataPath(name)
}
