package conversation

import (
	"regexp"
	"strings"
	"sync"
)

// FieldExtractor pulls one qualification field out of a single lead message.
// ok is false when the message says nothing about the field.
type FieldExtractor interface {
	ExtractField(message string) (value string, ok bool)
}

// FieldExtractorFunc adapts a plain function to FieldExtractor.
type FieldExtractorFunc func(message string) (string, bool)

func (f FieldExtractorFunc) ExtractField(message string) (string, bool) { return f(message) }

// ExtractorRegistry maps lowercase field names to their extraction strategy.
type ExtractorRegistry struct {
	mu         sync.RWMutex
	extractors map[string]FieldExtractor
}

// NewExtractorRegistry returns a registry with the built-in budget and
// timeline strategies.
func NewExtractorRegistry() *ExtractorRegistry {
	r := &ExtractorRegistry{extractors: make(map[string]FieldExtractor)}
	r.Register("budget", FieldExtractorFunc(extractBudget))
	r.Register("timeline", FieldExtractorFunc(extractTimeline))
	return r
}

// Register adds or replaces the strategy for field.
func (r *ExtractorRegistry) Register(field string, extractor FieldExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[strings.ToLower(strings.TrimSpace(field))] = extractor
}

// Extract runs each requested field's strategy over every lead message in
// order. A later message overwrites an earlier value for the same field.
// Fields without a registered strategy are skipped.
func (r *ExtractorRegistry) Extract(fields []string, leadMessages []string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string)
	for _, field := range fields {
		key := strings.ToLower(strings.TrimSpace(field))
		extractor, ok := r.extractors[key]
		if !ok {
			continue
		}
		for _, msg := range leadMessages {
			if value, ok := extractor.ExtractField(msg); ok {
				out[key] = value
			}
		}
	}
	return out
}

const budgetAmount = `(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`

var (
	budgetAfterKeyword  = regexp.MustCompile(`(?i)budget\D{0,30}?[$€£]?\s?` + budgetAmount)
	budgetBeforeKeyword = regexp.MustCompile(`(?i)[$€£]?` + budgetAmount + `\s+(?:[a-z]+\s+){0,2}budget`)
)

func extractBudget(message string) (string, bool) {
	if !strings.Contains(strings.ToLower(message), "budget") {
		return "", false
	}
	m := budgetAfterKeyword.FindStringSubmatch(message)
	if m == nil {
		m = budgetBeforeKeyword.FindStringSubmatch(message)
	}
	if m == nil {
		return "", false
	}
	return strings.ReplaceAll(m[1], ",", ""), true
}

func extractTimeline(message string) (string, bool) {
	lower := strings.ToLower(message)
	if !strings.Contains(lower, "timeline") && !strings.Contains(lower, "time frame") {
		return "", false
	}
	for _, unit := range []string{"months", "weeks", "days"} {
		if strings.Contains(lower, unit) {
			return unit, true
		}
	}
	return "", false
}
