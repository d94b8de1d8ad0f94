package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/kapu/venue-match-go/internal/domain"
)

const (
	systemCatalogue   = "You are a helpful assistant that extracts product names from catalogues."
	systemIngredients = "You are a helpful assistant that extracts ingredients from restaurant menu text."
	systemMenu        = "You are a helpful assistant that parses restaurant menus and returns the information in a valid JSON format."
	systemMatch       = "You are a helpful assistant that matches venue ingredients to suitable products."
	systemPitch       = "You are a helpful sales assistant providing product sales pitch for food distributors."
)

type TextVars struct {
	Text string
}

type matchVars struct {
	VenueJSON    string
	ProductsJSON string
}

type pitchVars struct {
	VenueName    string
	ProductsJSON string
}

// BuildCatalogue asks for the product names in one catalogue chunk.
func (pb *PromptBuilder) BuildCatalogue(vars TextVars) (Prompt, error) {
	return pb.build(systemCatalogue, TemplateCatalogue, vars)
}

// BuildIngredients asks for a comma-separated ingredient list.
func (pb *PromptBuilder) BuildIngredients(vars TextVars) (Prompt, error) {
	return pb.build(systemIngredients, TemplateIngredients, vars)
}

func (pb *PromptBuilder) BuildMenu(vars TextVars) (Prompt, error) {
	return pb.build(systemMenu, TemplateMenu, vars)
}

// BuildMatch asks for a {venue: [products]} object for one venue.
func (pb *PromptBuilder) BuildMatch(record domain.IngredientRecord, catalogue domain.Catalogue) (Prompt, error) {
	venueJSON, err := json.Marshal(record)
	if err != nil {
		return Prompt{}, fmt.Errorf("encode venue: %w", err)
	}
	productsJSON, err := json.Marshal([]string(catalogue))
	if err != nil {
		return Prompt{}, fmt.Errorf("encode catalogue: %w", err)
	}
	return pb.build(systemMatch, TemplateMatch, matchVars{
		VenueJSON:    string(venueJSON),
		ProductsJSON: string(productsJSON),
	})
}

func (pb *PromptBuilder) BuildPitch(venueName string, products []string) (Prompt, error) {
	if products == nil {
		products = []string{}
	}
	productsJSON, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return Prompt{}, fmt.Errorf("encode products: %w", err)
	}
	return pb.build(systemPitch, TemplatePitch, pitchVars{
		VenueName:    venueName,
		ProductsJSON: string(productsJSON),
	})
}

func (pb *PromptBuilder) build(system string, name TemplateName, data any) (Prompt, error) {
	user, err := pb.Render(name, data)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user}, nil
}
