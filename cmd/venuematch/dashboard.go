package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/app"
	"github.com/kapu/venue-match-go/internal/constants"
	"github.com/kapu/venue-match-go/internal/dashboard"
	"github.com/kapu/venue-match-go/internal/datafile"
	"github.com/kapu/venue-match-go/internal/domain"
)

var (
	addrFlag    string
	matchesFlag string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the product match browser with sales pitches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		addr := addrFlag
		if addr == "" {
			addr = cfg.Dashboard.Addr
		}
		path := pathOr(matchesFlag, constants.FileNames.ProductMatches)

		container, err := app.Build(ctx, cfg, logger, app.Needs{LLM: true})
		if err != nil {
			logger.Error("Failed to assemble services", zap.Error(err))
			return err
		}
		defer container.Close()

		load := func() (domain.ProductMatches, error) {
			return datafile.LoadProductMatches(path, logger)
		}
		srv, err := dashboard.NewServer(load, container.LLM, container.Prompts, logger)
		if err != nil {
			return err
		}
		cmd.Printf("Dashboard on http://localhost%s\n", addr)
		return srv.Run(ctx, addr)
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides DASHBOARD_ADDR)")
	dashboardCmd.Flags().StringVar(&matchesFlag, "matches", "", "product matches file")
	rootCmd.AddCommand(dashboardCmd)
}
