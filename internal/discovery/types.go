package discovery

import (
	"context"
	"strings"
	"time"
)

// Category groups sources by the kind of opportunity they list.
type Category string

const (
	CategoryScholarship Category = "scholarship"
	CategoryFellowship  Category = "fellowship"
	CategoryAccelerator Category = "accelerator"
)

// Categories lists every known category in catalog order.
var Categories = []Category{CategoryScholarship, CategoryFellowship, CategoryAccelerator}

// ParseCategory accepts the singular or plural form of a category name.
func ParseCategory(s string) (Category, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, "s")
	for _, c := range Categories {
		if string(c) == v {
			return c, true
		}
	}
	return "", false
}

// RawOpportunity is one extracted record. It is never mutated once built.
type RawOpportunity struct {
	Title                 string `json:"title"`
	Organization          string `json:"organization"`
	Type                  string `json:"type"`
	Eligibility           string `json:"eligibility,omitempty"`
	Deadline              string `json:"deadline,omitempty"`
	URL                   string `json:"url"`
	Amount                string `json:"amount,omitempty"`
	Location              string `json:"location,omitempty"`
	Description           string `json:"description,omitempty"`
	Source                string `json:"source,omitempty"`
	IsFallbackPlaceholder bool   `json:"is_fallback_placeholder"`
}

// DedupKey identifies equivalent records across sources.
type DedupKey struct {
	Title string
	URL   string
}

// Key returns the normalized (title, url) identity of the record.
func (o RawOpportunity) Key() DedupKey {
	return DedupKey{
		Title: strings.ToLower(strings.TrimSpace(o.Title)),
		URL:   strings.ToLower(strings.TrimSpace(o.URL)),
	}
}

// Valid reports whether the record carries the required title and url.
func (o RawOpportunity) Valid() bool {
	return strings.TrimSpace(o.Title) != "" && strings.TrimSpace(o.URL) != ""
}

// ScoredOpportunity pairs a record with its relevance score during ranking.
type ScoredOpportunity struct {
	RawOpportunity
	Score int
}

// Query holds the caller-supplied search parameters.
type Query struct {
	Keyword  string `json:"keyword"`
	Category string `json:"type,omitempty"`
	Region   string `json:"region,omitempty"`
}

// Normalize trims every field.
func (q Query) Normalize() Query {
	return Query{
		Keyword:  strings.TrimSpace(q.Keyword),
		Category: strings.TrimSpace(q.Category),
		Region:   strings.TrimSpace(q.Region),
	}
}

// category returns the parsed category, or nil when none was requested or it is unknown.
func (q Query) category() *Category {
	if c, ok := ParseCategory(q.Category); ok {
		return &c
	}
	return nil
}

// typeFilter is the string records' type field is matched against.
func (q Query) typeFilter() string {
	if c, ok := ParseCategory(q.Category); ok {
		return string(c)
	}
	return strings.ToLower(q.Category)
}

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
//
// A non-2xx response is returned as a *StatusError so callers can classify it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}
