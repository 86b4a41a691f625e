package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// SearchParams are the search fields recovered from a free-text request.
type SearchParams struct {
	Keyword        string `json:"keyword"`
	Type           string `json:"type,omitempty"`
	Region         string `json:"region,omitempty"`
	EducationLevel string `json:"education_level,omitempty"`
	Field          string `json:"field,omitempty"`
}

// llmParams mirrors SearchParams but tolerates nulls from the model.
type llmParams struct {
	Keyword        *string `json:"keyword"`
	Type           *string `json:"type"`
	Region         *string `json:"region"`
	EducationLevel *string `json:"education_level"`
	Field          *string `json:"field"`
}

// ParamExtractor turns chat messages into SearchParams with an LLM.
type ParamExtractor struct {
	llm    Completer
	logger *zap.Logger
}

func NewParamExtractor(llm Completer, logger *zap.Logger) *ParamExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParamExtractor{llm: llm, logger: logger}
}

// ExtractParameters never fails: when the model is unavailable or returns
// garbage the whole message becomes the keyword.
func (p *ParamExtractor) ExtractParameters(ctx context.Context, message string) SearchParams {
	message = strings.TrimSpace(message)
	fallback := SearchParams{Keyword: message}
	if message == "" || p == nil || p.llm == nil {
		return fallback
	}

	prompt := fmt.Sprintf(`Extract search parameters from this user message for finding opportunities:
"%s"

Return a JSON object with these fields:
- keyword: main search term (string)
- type: "scholarship", "fellowship", "accelerator", or null
- region: geographic region if mentioned (string or null)
- education_level: if mentioned (string or null)
- field: academic/professional field if mentioned (string or null)

Example: {"keyword": "climate change", "type": "scholarship", "region": "Europe", "education_level": "graduate", "field": "environmental science"}

Respond ONLY with the JSON object.`, message)

	// Attempt 1: JSON Mode
	resp, err := p.llm.GenerateCompletion(ctx, prompt, true)
	if err == nil {
		if params, parseErr := parseLLMResponse(resp); parseErr == nil {
			return params.orKeyword(message)
		} else {
			p.logger.Debug("json mode response unparsable, retrying in text mode", zap.Error(parseErr))
		}
	} else {
		p.logger.Debug("json mode generation failed, retrying in text mode", zap.Error(err))
	}

	// Attempt 2: Text Mode
	resp, err = p.llm.GenerateCompletion(ctx, prompt, false)
	if err != nil {
		p.logger.Warn("parameter extraction unavailable", zap.Error(err))
		return fallback
	}
	params, err := parseLLMResponse(resp)
	if err != nil {
		p.logger.Warn("failed to parse parameters after retry", zap.Error(err), zap.String("response", resp))
		return fallback
	}
	return params.orKeyword(message)
}

func (s SearchParams) orKeyword(message string) SearchParams {
	if s.Keyword == "" {
		s.Keyword = message
	}
	return s
}

func parseLLMResponse(resp string) (SearchParams, error) {
	// Clean markdown code blocks
	cleaned := strings.TrimSpace(resp)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	if jsonStr, ok := extractFirstJSONObject(cleaned); ok {
		cleaned = jsonStr
	}

	var raw llmParams
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return SearchParams{}, err
	}
	return SearchParams{
		Keyword:        deref(raw.Keyword),
		Type:           normalizeType(deref(raw.Type)),
		Region:         deref(raw.Region),
		EducationLevel: deref(raw.EducationLevel),
		Field:          deref(raw.Field),
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	if strings.EqualFold(v, "null") || strings.EqualFold(v, "none") {
		return ""
	}
	return v
}

func normalizeType(t string) string {
	t = strings.ToLower(t)
	switch strings.TrimSuffix(t, "s") {
	case "scholarship", "fellowship", "accelerator":
		return strings.TrimSuffix(t, "s")
	}
	return ""
}

// extractFirstJSONObject finds the first outermost balanced {...}
func extractFirstJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}

		if char == '\\' {
			escaped = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			if char == '{' {
				depth++
			} else if char == '}' {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}
