package discovery

import (
	"sort"
	"strings"
)

// MaxResults caps the final list.
const MaxResults = 20

// Filter keeps records matching every supplied criterion. keyword must occur
// in title, description or eligibility; typ in the type; region in location
// or organization. Empty criteria match everything.
func Filter(records []RawOpportunity, keyword, typ, region string) []RawOpportunity {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	typ = strings.ToLower(strings.TrimSpace(typ))
	region = strings.ToLower(strings.TrimSpace(region))

	out := make([]RawOpportunity, 0, len(records))
	for _, r := range records {
		if keyword != "" &&
			!containsFold(r.Title, keyword) &&
			!containsFold(r.Description, keyword) &&
			!containsFold(r.Eligibility, keyword) {
			continue
		}
		if typ != "" && !containsFold(r.Type, typ) {
			continue
		}
		if region != "" && !containsFold(r.Location, region) && !containsFold(r.Organization, region) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Dedup keeps the first record per DedupKey, in arrival order. Records
// missing a title or url are dropped.
func Dedup(records []RawOpportunity) []RawOpportunity {
	seen := make(map[DedupKey]struct{}, len(records))
	out := make([]RawOpportunity, 0, len(records))
	for _, r := range records {
		if !r.Valid() {
			continue
		}
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Score computes the relevance of a record for keyword.
func Score(r RawOpportunity, keyword string) int {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	score := 0
	if kw != "" {
		title := strings.ToLower(r.Title)
		if strings.Contains(title, kw) {
			score += 10
			if strings.TrimSpace(title) == kw {
				score += 5
			}
		}
		if strings.Contains(strings.ToLower(r.Description), kw) {
			score += 5
		}
		if strings.Contains(strings.ToLower(r.Organization), kw) {
			score += 3
		}
	}
	for _, field := range []string{r.Amount, r.Deadline, r.Eligibility} {
		if strings.TrimSpace(field) != "" {
			score += 2
		}
	}
	if strings.TrimSpace(r.Location) != "" {
		score++
	}
	if r.IsFallbackPlaceholder {
		score -= 10
	}
	return score
}

// Rank orders records by descending score with placeholders last; ties keep
// arrival order. Without a keyword the input order is kept.
func Rank(records []RawOpportunity, keyword string) []RawOpportunity {
	if strings.TrimSpace(keyword) == "" {
		return records
	}
	scored := make([]ScoredOpportunity, len(records))
	for i, r := range records {
		scored[i] = ScoredOpportunity{RawOpportunity: r, Score: Score(r, keyword)}
	}
	// Placeholders stay behind every real record whatever they score.
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.IsFallbackPlaceholder != b.IsFallbackPlaceholder {
			return b.IsFallbackPlaceholder
		}
		return a.Score > b.Score
	})
	out := make([]RawOpportunity, len(scored))
	for i, s := range scored {
		out[i] = s.RawOpportunity
	}
	return out
}

// Truncate returns at most n records.
func Truncate(records []RawOpportunity, n int) []RawOpportunity {
	if len(records) > n {
		return records[:n]
	}
	return records
}
