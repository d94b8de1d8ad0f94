package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/app"
	"github.com/kapu/venue-match-go/pkg/errors"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the model provider and optional stores are reachable",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		container, err := app.Build(ctx, cfg, logger, app.Needs{LLM: true, Postgres: cfg.Postgres.Enabled})
		if err != nil {
			logger.Error("Failed to assemble services", zap.Error(err))
			return err
		}
		defer container.Close()

		failed := false
		report := func(name string, ok bool) {
			state := "ok"
			if !ok {
				state = "unreachable"
				failed = true
			}
			cmd.Printf("%-10s %s\n", name, state)
		}

		report("llm", container.LLM.Ping(ctx))
		cmd.Printf("%-10s %s\n", "circuit", container.LLM.CircuitStatus().State)

		if cfg.Redis.Enabled {
			report("redis", container.Cache != nil && container.Cache.IsConnected(ctx))
		}
		if container.Postgres != nil {
			report("postgres", container.Postgres.Ping(ctx) == nil)
		}

		if failed {
			return errors.NewTransientError("check", "one or more services are unreachable", nil)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
