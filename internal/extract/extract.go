// Package extract recovers structured payloads from language model responses that may
// wrap JSON in code fences or surround it with commentary.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/internal/constants"
	"github.com/kapu/venue-match-go/internal/util"
	"github.com/kapu/venue-match-go/pkg/errors"
)

// ProductNameField is the key each catalogue entry carries in model output.
const ProductNameField = "product name"

// Source records which recovery step produced a Result.
type Source string

const (
	SourceJSON  Source = "json"
	SourceRegex Source = "regex"
	SourceNone  Source = "none"
)

type Result struct {
	Names  []string
	Source Source
}

func (r Result) Empty() bool {
	return len(r.Names) == 0
}

var productNamePattern = regexp.MustCompile(`"product name":\s*"([^"]+)"`)

// Extractor never fails on bad input: the worst case is an empty Result and a log line.
type Extractor struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// ProductNames pulls the "product name" values out of response. A JSON list yields the
// field of every object carrying it; a single object yields a one-element result. When
// the payload does not parse, a regex scan for the literal field is used instead.
func (e *Extractor) ProductNames(response string) Result {
	content := Sanitize(response)
	content = StripFences(content)

	var (
		names  []string
		source = SourceNone
	)

	var data any
	if err := json.Unmarshal([]byte(content), &data); err == nil {
		names = namesFromValue(data)
		source = SourceJSON
	} else {
		e.logger.Warn("JSON parsing failed, falling back to regex scan", zap.Error(err))
		for _, m := range productNamePattern.FindAllStringSubmatch(content, -1) {
			names = append(names, m[1])
		}
		source = SourceRegex
	}

	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}

	if len(cleaned) == 0 {
		e.logger.Error("No product names extracted",
			zap.String("content_preview", util.TruncateString(content, constants.PipelineConfig.PreviewLength)),
		)
		return Result{Names: []string{}, Source: SourceNone}
	}
	return Result{Names: cleaned, Source: source}
}

func namesFromValue(data any) []string {
	switch v := data.(type) {
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				if name, ok := stringField(obj); ok {
					names = append(names, name)
				}
			}
		}
		return names
	case map[string]any:
		if name, ok := stringField(v); ok {
			return []string{name}
		}
	}
	return nil
}

func stringField(obj map[string]any) (string, bool) {
	raw, ok := obj[ProductNameField]
	if !ok || raw == nil {
		return "", false
	}
	name, ok := raw.(string)
	return name, ok
}

// Object decodes the single JSON object embedded in response into dest. Fences are
// stripped and the text between the first '{' and the last '}' is parsed. Failures are
// logged with the offending content and returned as malformed errors.
func (e *Extractor) Object(response string, dest any) error {
	content := StripFences(strings.TrimSpace(response))

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		e.logger.Error("No JSON object in response",
			zap.String("content", util.TruncateString(content, constants.PipelineConfig.PreviewLength)),
		)
		return errors.NewMalformedError("extract.object", "no JSON object found in response", nil)
	}

	payload := content[start : end+1]
	if err := json.Unmarshal([]byte(payload), dest); err != nil {
		e.logger.Error("Failed to parse JSON object",
			zap.Error(err),
			zap.String("content", util.TruncateString(payload, constants.PipelineConfig.PreviewLength)),
		)
		return errors.NewMalformedError("extract.object", "invalid JSON object", err)
	}
	return nil
}

// Sanitize keeps printable ASCII only.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 0x20 && c <= 0x7E {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// StripFences removes a surrounding ``` fence and a leading "json" language tag.
// Content that is not fenced is returned unchanged.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < 6 || !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return s
	}

	body := strings.TrimSuffix(strings.TrimPrefix(trimmed, "```"), "```")
	if strings.HasPrefix(strings.ToLower(body), "json") {
		body = body[len("json"):]
	}
	return strings.TrimSpace(body)
}
