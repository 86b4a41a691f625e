package discovery

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the static catalog of sources. It is loaded once and never mutated.
type Registry struct {
	Sources []Source `yaml:"sources"`
}

// SelectorConfig holds the CSS extraction rules of a source.
type SelectorConfig struct {
	Container    string `yaml:"container,omitempty"`
	Title        string `yaml:"title,omitempty"`
	Organization string `yaml:"organization,omitempty"`
	Amount       string `yaml:"amount,omitempty"`
	Deadline     string `yaml:"deadline,omitempty"`
	Location     string `yaml:"location,omitempty"`
	URL          string `yaml:"url,omitempty"`
}

// Source is one external website in the catalog.
type Source struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Category  Category       `yaml:"category"`
	BaseURL   string         `yaml:"base_url"`
	SearchURL string         `yaml:"search_url"`
	Selectors SelectorConfig `yaml:"selectors,omitempty"`

	// Literal values used when the page has no matching element.
	Organization string `yaml:"organization,omitempty"`
	Location     string `yaml:"location,omitempty"`

	RequiresDynamicRender bool `yaml:"requires_dynamic_render,omitempty"`
	Denylisted            bool `yaml:"denylisted,omitempty"`
	// Additional sources are returned for every category.
	Additional bool `yaml:"additional,omitempty"`
}

// Domain returns the lower-cased host of BaseURL without a leading "www.".
func (s Source) Domain() string {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// BaseDomain returns scheme://host of BaseURL.
func (s Source) BaseDomain() string {
	return baseOf(s.BaseURL)
}

// BuildSearchURL fills the keyword into the search URL. A "{keyword}" marker is
// replaced; otherwise a q parameter is appended when a keyword is given.
func (s Source) BuildSearchURL(keyword string) string {
	keyword = strings.TrimSpace(keyword)
	if strings.Contains(s.SearchURL, "{keyword}") {
		return strings.ReplaceAll(s.SearchURL, "{keyword}", url.QueryEscape(keyword))
	}
	if keyword == "" {
		return s.SearchURL
	}
	u, err := url.Parse(s.SearchURL)
	if err != nil {
		return s.SearchURL
	}
	q := u.Query()
	q.Set("q", keyword)
	u.RawQuery = q.Encode()
	return u.String()
}

// LoadRegistry reads the embedded sources.yaml.
func LoadRegistry() (*Registry, error) {
	data, err := sourcesYAML.ReadFile("config/sources.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded sources: %w", err)
	}
	return parseRegistry(data)
}

// LoadRegistryFile reads a catalog from disk instead of the embedded copy.
func LoadRegistryFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return parseRegistry(data)
}

func parseRegistry(data []byte) (*Registry, error) {
	// Expand environment variables within the YAML content (e.g. ${PROXY_HOST})
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate checks every entry for required fields and a known category.
func (r *Registry) Validate() error {
	if len(r.Sources) == 0 {
		return errors.New("registry has no sources")
	}
	seen := make(map[string]struct{}, len(r.Sources))
	for i, s := range r.Sources {
		if s.ID == "" || s.Name == "" || s.BaseURL == "" || s.SearchURL == "" {
			return fmt.Errorf("source %d: id, name, base_url and search_url are required", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("source %s: duplicate id", s.ID)
		}
		seen[s.ID] = struct{}{}
		if _, ok := ParseCategory(string(s.Category)); !ok {
			return fmt.Errorf("source %s: unknown category %q", s.ID, s.Category)
		}
		if _, err := url.ParseRequestURI(s.BaseURL); err != nil {
			return fmt.Errorf("source %s: invalid base_url: %w", s.ID, err)
		}
	}
	return nil
}

// SourcesFor returns the sources of the given category plus the additional
// sources, or every category plus the additional sources when category is nil.
// Order follows the catalog.
func (r *Registry) SourcesFor(category *Category) []Source {
	var out []Source
	if category != nil {
		for _, s := range r.Sources {
			if !s.Additional && s.Category == *category {
				out = append(out, s)
			}
		}
	} else {
		for _, c := range Categories {
			for _, s := range r.Sources {
				if !s.Additional && s.Category == c {
					out = append(out, s)
				}
			}
		}
	}
	for _, s := range r.Sources {
		if s.Additional {
			out = append(out, s)
		}
	}
	return out
}

// Get returns the source with the given id.
func (r *Registry) Get(id string) (Source, bool) {
	for _, s := range r.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}

func baseOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
