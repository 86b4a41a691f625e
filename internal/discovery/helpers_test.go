package discovery

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePage is what fakeFetcher serves for one host.
type fakePage struct {
	status int
	body   string
	err    error
	delay  time.Duration
}

// fakeFetcher serves canned pages keyed by host.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]fakePage
	calls []string
}

func newFakeFetcher(pages map[string]fakePage) *fakeFetcher {
	return &fakeFetcher{pages: pages}
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (*FetchedDocument, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	f.mu.Unlock()

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	page, ok := f.pages[u.Host]
	if !ok {
		return nil, &StatusError{URL: rawURL, StatusCode: http.StatusNotFound}
	}
	if page.delay > 0 {
		select {
		case <-time.After(page.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if page.err != nil {
		return nil, page.err
	}
	status := page.status
	if status == 0 {
		status = http.StatusOK
	}
	if status >= 300 {
		return nil, &StatusError{URL: rawURL, StatusCode: status}
	}
	return &FetchedDocument{
		URL:        rawURL,
		StatusCode: status,
		Body:       []byte(page.body),
		FetchedAt:  time.Now(),
	}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeRenderer returns the same markup for every URL and remembers the URLs.
type fakeRenderer struct {
	mu     sync.Mutex
	markup string
	err    error
	urls   []string
}

func (r *fakeRenderer) Render(_ context.Context, rawURL, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, rawURL)
	return r.markup, r.err
}

func mustRegistry(t *testing.T, doc string) *Registry {
	t.Helper()
	reg, err := parseRegistry([]byte(doc))
	require.NoError(t, err)
	return reg
}

func cardPage(cards ...string) string {
	out := "<html><body>"
	for _, c := range cards {
		out += c
	}
	return out + "</body></html>"
}

func card(title, href string) string {
	return `<div class="card"><h3>` + title + `</h3><a href="` + href + `">Apply</a></div>`
}

const fellowshipRegistry = `
sources:
  - id: alpha
    name: Alpha Fellowships
    category: fellowship
    base_url: "https://alpha.example"
    search_url: "https://alpha.example/search?q={keyword}"
  - id: beta
    name: Beta Programs
    category: fellowship
    base_url: "https://beta.example"
    search_url: "https://beta.example/programs"
  - id: gamma
    name: Gamma Awards
    category: fellowship
    base_url: "https://gamma.example"
    search_url: "https://gamma.example/awards"
`
