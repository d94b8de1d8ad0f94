package pipeline

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/datafile"
	"github.com/kapu/venue-match-go/internal/domain"
	"github.com/kapu/venue-match-go/internal/extract"
	"github.com/kapu/venue-match-go/internal/prompt"
	"github.com/kapu/venue-match-go/internal/scrape"
	"github.com/kapu/venue-match-go/internal/util"
	"github.com/kapu/venue-match-go/pkg/errors"
)

// ParseCatalogue extracts product names from the distributor's PDF brochure and writes
// them, de-duplicated and sorted, as one CSV row.
func (p *Pipeline) ParseCatalogue(ctx context.Context, pdfPath, outPath string) (Summary, error) {
	logger := util.ForStage(p.logger, "catalogue")
	summary := Summary{Stage: "catalogue"}
	if err := p.requireLLM("catalogue"); err != nil {
		return summary, err
	}

	data, err := os.ReadFile(pdfPath)
	if err != nil {
		logger.Error("Cannot read catalogue PDF", zap.String("file", pdfPath), zap.Error(err))
		return summary, errors.NewInputError("catalogue.read", fmt.Sprintf("cannot read %s", pdfPath), err)
	}
	text, err := scrape.TextFromPDF(data)
	if err != nil {
		logger.Error("Cannot extract catalogue text", zap.String("file", pdfPath), zap.Error(err))
		return summary, errors.NewInputError("catalogue.read", fmt.Sprintf("unreadable PDF %s", pdfPath), err)
	}

	products, summary := p.catalogueProducts(ctx, logger, text, summary)
	catalogue := domain.NewCatalogue(products)
	if len(catalogue) == 0 {
		logger.Warn("No products extracted from catalogue", zap.String("file", pdfPath))
	}
	if err := datafile.SaveCatalogue(outPath, catalogue); err != nil {
		return summary, err
	}

	logger.Info("Catalogue saved", append(summary.fields(),
		zap.String("file", outPath),
		zap.Int("products", len(catalogue)),
	)...)
	return summary, ctx.Err()
}

// catalogueProducts collects product names from every chunk. Summary counts chunks.
func (p *Pipeline) catalogueProducts(ctx context.Context, logger *zap.Logger, text string, summary Summary) ([]string, Summary) {
	chunks := p.chunker.Chunk(text)
	logger.Info("Catalogue text chunked", zap.Int("chunks", len(chunks)), zap.Int("max_size", p.chunker.MaxSize()))

	var products []string
	for i, chunk := range chunks {
		if interrupted(ctx, logger) {
			break
		}

		pr, err := p.prompts.BuildCatalogue(prompt.TextVars{Text: chunk})
		if err != nil {
			summary.Failed++
			logger.Error("Cannot build catalogue prompt", zap.Error(err))
			continue
		}
		response, err := p.complete(ctx, logger, "catalogue.complete", pr)
		if err != nil {
			summary.Failed++
			logger.Error("Error processing chunk",
				zap.Int("chunk", i+1),
				zap.Error(err),
				zap.String("chunk_preview", util.TruncateString(chunk, 500)),
			)
			continue
		}

		result := p.extractor.ProductNames(response)
		if result.Source == extract.SourceRegex {
			logger.Info("Product names recovered by pattern match", zap.Int("chunk", i+1))
		}
		products = append(products, result.Names...)
		summary.Processed++
		logger.Info("Extracted products from chunk", zap.Int("chunk", i+1), zap.Int("count", len(result.Names)))
	}
	return products, summary
}
