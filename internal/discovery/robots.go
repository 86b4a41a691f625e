package discovery

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsPolicy answers robots.txt questions, caching one parsed file per origin.
// An unreachable or unparsable robots.txt allows everything.
type RobotsPolicy struct {
	client    *http.Client
	userAgent string
	cache     sync.Map // scheme://host -> *robotstxt.RobotsData (nil = allow all)
}

// NewRobotsPolicy creates a policy that fetches robots.txt with client.
func NewRobotsPolicy(client *http.Client, userAgent string) *RobotsPolicy {
	if client == nil {
		client = http.DefaultClient
	}
	return &RobotsPolicy{client: client, userAgent: userAgent}
}

// Allowed reports whether the user agent may fetch u.
func (p *RobotsPolicy) Allowed(ctx context.Context, u *url.URL) bool {
	data := p.load(ctx, u)
	if data == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, p.userAgent)
}

func (p *RobotsPolicy) load(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	origin := u.Scheme + "://" + u.Host
	if v, ok := p.cache.Load(origin); ok {
		data, _ := v.(*robotstxt.RobotsData)
		return data
	}

	data, ok := p.fetch(ctx, origin)
	if ok {
		p.cache.Store(origin, data)
	}
	return data
}

// fetch reports ok=false for transport failures so they are retried next time.
func (p *RobotsPolicy) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("User-Agent", p.userAgent)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, true
	}
	return data, true
}
