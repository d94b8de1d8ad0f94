package main

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/app"
	"github.com/kapu/venue-match-go/internal/constants"
	"github.com/kapu/venue-match-go/internal/datafile"
	"github.com/kapu/venue-match-go/internal/store"
)

var exportMatchesFlag string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Copy product matches into PostgreSQL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path := pathOr(exportMatchesFlag, constants.FileNames.ProductMatches)

		matches, err := datafile.LoadProductMatches(path, logger)
		if err != nil {
			logger.Error("Cannot load product matches", zap.String("file", path), zap.Error(err))
			return err
		}

		container, err := app.Build(ctx, cfg, logger, app.Needs{Postgres: true})
		if err != nil {
			logger.Error("Failed to assemble services", zap.Error(err))
			return err
		}
		defer container.Close()

		runID := uuid.NewString()
		repo := store.NewMatchRepository(logger)
		var saved int
		err = container.Postgres.InTx(ctx, func(tx *sql.Tx) error {
			if err := repo.EnsureSchema(ctx, tx); err != nil {
				return err
			}
			saved, err = repo.SaveMatches(ctx, tx, runID, matches)
			return err
		})
		if err != nil {
			return err
		}

		cmd.Printf("Exported %d venues (run %s)\n", saved, runID)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportMatchesFlag, "matches", "", "product matches file")
	rootCmd.AddCommand(exportCmd)
}
