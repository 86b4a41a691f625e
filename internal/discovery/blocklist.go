package discovery

import "strings"

// domainDenylist holds exact hosts and suffix wildcards ("*.example.com" or
// ".example.com") of sites that are never scheduled.
type domainDenylist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newDomainDenylist(patterns []string) *domainDenylist {
	d := &domainDenylist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
			continue
		case strings.HasPrefix(value, "*."):
			d.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			d.addSuffix(strings.TrimPrefix(value, "."))
		default:
			d.exact[strings.TrimPrefix(value, "www.")] = struct{}{}
		}
	}
	return d
}

func (d *domainDenylist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range d.suffixes {
		if existing == suffix {
			return
		}
	}
	d.suffixes = append(d.suffixes, suffix)
}

// Blocks reports whether host is denied.
func (d *domainDenylist) Blocks(host string) bool {
	if d == nil {
		return false
	}
	host = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(host)), "www.")
	if host == "" {
		return false
	}
	if _, ok := d.exact[host]; ok {
		return true
	}
	for _, suffix := range d.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// FilterDenylisted drops sources flagged in the catalog or matched by patterns.
func FilterDenylisted(sources []Source, patterns []string) []Source {
	deny := newDomainDenylist(patterns)
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.Denylisted || deny.Blocks(s.Domain()) {
			continue
		}
		out = append(out, s)
	}
	return out
}
