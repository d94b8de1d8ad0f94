package main

import (
	"context"
	stderrors "errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/app"
	"github.com/kapu/venue-match-go/internal/constants"
	"github.com/kapu/venue-match-go/internal/pipeline"
	"github.com/kapu/venue-match-go/pkg/errors"
)

var (
	inFlag       string
	outFlag      string
	locationFlag string
	typesFlag    []string
	pdfFlag      string
	ingredFlag   string
	catalogFlag  string
)

var venuesCmd = &cobra.Command{
	Use:   "venues",
	Short: "Find venues with a website through the Places API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		location := locationFlag
		if location == "" {
			location = cfg.Places.Location
		}
		types := typesFlag
		if len(types) == 0 {
			types = cfg.Places.VenueTypes
		}
		out := pathOr(outFlag, constants.FileNames.Venues)
		return runStage(cmd, app.Needs{Places: true}, func(ctx context.Context, p *pipeline.Pipeline) (pipeline.Summary, error) {
			return p.DiscoverVenues(ctx, types, location, out)
		})
	},
}

var menuURLsCmd = &cobra.Command{
	Use:   "menu-urls",
	Short: "Point each venue at its menu page",
	RunE: func(cmd *cobra.Command, _ []string) error {
		in := pathOr(inFlag, constants.FileNames.Venues)
		out := pathOr(outFlag, constants.FileNames.VenuesWithMenu)
		return runStage(cmd, app.Needs{Scraper: true}, func(ctx context.Context, p *pipeline.Pipeline) (pipeline.Summary, error) {
			return p.FindMenuURLs(ctx, in, out)
		})
	},
}

var ingredientsCmd = &cobra.Command{
	Use:   "ingredients",
	Short: "Extract ingredients from venue menu pages and PDFs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		in := pathOr(inFlag, constants.FileNames.VenuesWithMenu)
		out := pathOr(outFlag, constants.FileNames.Ingredients)
		return runStage(cmd, app.Needs{LLM: true, Scraper: true}, func(ctx context.Context, p *pipeline.Pipeline) (pipeline.Summary, error) {
			return p.RetrieveIngredients(ctx, in, out)
		})
	},
}

var menusCmd = &cobra.Command{
	Use:   "menus",
	Short: "Parse venue menus into sections and items",
	RunE: func(cmd *cobra.Command, _ []string) error {
		in := pathOr(inFlag, constants.FileNames.VenuesWithMenu)
		out := pathOr(outFlag, constants.FileNames.Menus)
		return runStage(cmd, app.Needs{LLM: true, Scraper: true}, func(ctx context.Context, p *pipeline.Pipeline) (pipeline.Summary, error) {
			return p.RetrieveMenus(ctx, in, out)
		})
	},
}

var catalogueCmd = &cobra.Command{
	Use:   "catalogue",
	Short: "Extract product names from the catalogue PDF",
	RunE: func(cmd *cobra.Command, _ []string) error {
		pdf := pdfFlag
		if pdf == "" {
			pdf = cfg.Pipeline.CataloguePDF
		}
		if pdf == "" {
			return errors.NewConfigError("catalogue PDF not set (use --pdf or CATALOGUE_PDF)")
		}
		out := pathOr(outFlag, constants.FileNames.Catalogue)
		return runStage(cmd, app.Needs{LLM: true}, func(ctx context.Context, p *pipeline.Pipeline) (pipeline.Summary, error) {
			return p.ParseCatalogue(ctx, pdf, out)
		})
	},
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match venue ingredients to catalogue products",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ingredients := pathOr(ingredFlag, constants.FileNames.Ingredients)
		catalogue := pathOr(catalogFlag, constants.FileNames.Catalogue)
		out := pathOr(outFlag, constants.FileNames.ProductMatches)
		return runStage(cmd, app.Needs{LLM: true}, func(ctx context.Context, p *pipeline.Pipeline) (pipeline.Summary, error) {
			return p.MatchProducts(ctx, ingredients, catalogue, out)
		})
	},
}

func init() {
	venuesCmd.Flags().StringVar(&outFlag, "out", "", "output file (default <data-dir>/venues.json)")
	venuesCmd.Flags().StringVar(&locationFlag, "location", "", "search location (overrides VENUE_LOCATION)")
	venuesCmd.Flags().StringSliceVar(&typesFlag, "types", nil, "venue types to search (overrides VENUE_TYPES)")

	for _, cmd := range []*cobra.Command{menuURLsCmd, ingredientsCmd, menusCmd} {
		cmd.Flags().StringVar(&inFlag, "in", "", "input venue file")
		cmd.Flags().StringVar(&outFlag, "out", "", "output file")
	}

	catalogueCmd.Flags().StringVar(&pdfFlag, "pdf", "", "catalogue PDF (overrides CATALOGUE_PDF)")
	catalogueCmd.Flags().StringVar(&outFlag, "out", "", "output file (default <data-dir>/catalogue.csv)")

	matchCmd.Flags().StringVar(&ingredFlag, "ingredients", "", "ingredients file")
	matchCmd.Flags().StringVar(&catalogFlag, "catalogue", "", "catalogue CSV")
	matchCmd.Flags().StringVar(&outFlag, "out", "", "output file (default <data-dir>/product_matches.json)")

	rootCmd.AddCommand(venuesCmd, menuURLsCmd, ingredientsCmd, menusCmd, catalogueCmd, matchCmd)
}

// runStage builds what the stage needs, runs it and prints its summary. An interrupted
// stage has already saved its progress and is not reported as a failure.
func runStage(cmd *cobra.Command, needs app.Needs, run func(context.Context, *pipeline.Pipeline) (pipeline.Summary, error)) error {
	ctx := cmd.Context()

	container, err := app.Build(ctx, cfg, logger, needs)
	if err != nil {
		logger.Error("Failed to assemble services", zap.Error(err))
		return err
	}
	defer container.Close()

	summary, err := run(ctx, container.Pipeline())
	cmd.Println(summary.String())
	if stderrors.Is(err, context.Canceled) {
		cmd.Println("Interrupted, progress saved.")
		return nil
	}
	return err
}
