package constants

import "time"

var RetryConfig = struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
}{
	MaxAttempts: 3,
	Delay:       5 * time.Second,
	Multiplier:  1, // fixed delay
}

var PlacesRetryConfig = struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}{
	MaxAttempts: 3,
	BaseDelay:   2 * time.Second,
	Multiplier:  2,
}

var PipelineConfig = struct {
	RequestDelay   time.Duration
	ChunkSize      int
	PreviewLength  int
	DefaultDataDir string
}{
	RequestDelay:   5 * time.Second, // pause between venues
	ChunkSize:      5000,
	PreviewLength:  500,
	DefaultDataDir: "data",
}

var BrowserConfig = struct {
	PopupTimeout  time.Duration
	BodyTimeout   time.Duration
	ScrollSettle  time.Duration
	HTTPTimeout   time.Duration
	PopupSelector string
	UserAgent     string
}{
	PopupTimeout:  5 * time.Second,
	BodyTimeout:   20 * time.Second,
	ScrollSettle:  5 * time.Second,
	HTTPTimeout:   30 * time.Second,
	PopupSelector: "button[class*='close'], div[class*='popup'] button, div[id*='popup'] button",
	UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// MenuKeywords are matched, in order, against lower-cased anchor text.
var MenuKeywords = []string{"menu", "food", "drink", "dining", "eat", "cuisine"}

// DefaultVenueTypes are searched when VENUE_TYPES is unset.
var DefaultVenueTypes = []string{"restaurant", "cafe", "bar"}

var FileNames = struct {
	Venues         string
	VenuesWithMenu string
	Ingredients    string
	Menus          string
	Catalogue      string
	ProductMatches string
}{
	Venues:         "venues.json",
	VenuesWithMenu: "venues_with_menu_urls.json",
	Ingredients:    "ingredients.json",
	Menus:          "menus.json",
	Catalogue:      "catalogue.csv",
	ProductMatches: "product_matches.json",
}

var CircuitBreakerConfig = struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	RateLimitTimeout time.Duration
}{
	FailureThreshold: 5,
	ResetTimeout:     30 * time.Second,
	RateLimitTimeout: 5 * time.Minute,
}

var CacheTTL = struct {
	Completion time.Duration
}{
	Completion: 24 * time.Hour,
}
