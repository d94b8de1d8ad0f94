package llm

import "github.com/kapu/venue-match-go/internal/prompt"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// FromPrompt turns a rendered prompt into a system + user conversation.
func FromPrompt(p prompt.Prompt) []Message {
	messages := make([]Message, 0, 2)
	if p.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: p.System})
	}
	return append(messages, Message{Role: RoleUser, Content: p.User})
}

// ModelPreset represents the model usage preset
type ModelPreset string

const (
	PresetCreative ModelPreset = "creative" // sales pitch
	PresetPrecise  ModelPreset = "precise"  // structured extraction
)

// ModelConfig holds sampling configuration shared by every provider
type ModelConfig struct {
	Temperature     float32
	TopP            float32
	MaxOutputTokens int
}

// GetPresetConfig returns the configuration for a preset
func GetPresetConfig(preset ModelPreset) ModelConfig {
	switch preset {
	case PresetCreative:
		return ModelConfig{
			Temperature:     0.7,
			TopP:            0.95,
			MaxOutputTokens: 1024,
		}
	case PresetPrecise:
		return ModelConfig{
			Temperature:     0.1,
			TopP:            0.9,
			MaxOutputTokens: 4096,
		}
	default:
		return GetPresetConfig(PresetPrecise)
	}
}

type callOptions struct {
	preset  ModelPreset
	noCache bool
	refresh bool
}

type Option func(*callOptions)

// WithPreset selects the sampling preset. The default is PresetPrecise.
func WithPreset(preset ModelPreset) Option {
	return func(o *callOptions) {
		o.preset = preset
	}
}

// WithoutCache bypasses the completion cache for one call.
func WithoutCache() Option {
	return func(o *callOptions) {
		o.noCache = true
	}
}

// WithRefresh skips the cached completion but stores the new one, replacing an
// answer the caller could not use.
func WithRefresh() Option {
	return func(o *callOptions) {
		o.refresh = true
	}
}

func applyOptions(opts []Option) callOptions {
	o := callOptions{preset: PresetPrecise}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// GenerateMetadata contains metadata about the generation
type GenerateMetadata struct {
	Provider     string
	Model        string
	UsedFallback bool
	CacheHit     bool
}
