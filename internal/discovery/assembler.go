package discovery

// PlaceholderTitle is shown for sources that could not be read.
const PlaceholderTitle = "Sorry, this opportunity doesn't let me in. You will have to search for data yourself"

// Placeholder builds the stand-in record for a source that refused or failed.
func Placeholder(src Source, category string) RawOpportunity {
	base := src.BaseDomain()
	typ := category
	if typ == "" {
		typ = "opportunity"
	}
	return RawOpportunity{
		Title:                 PlaceholderTitle,
		Organization:          base,
		Type:                  typ,
		URL:                   base,
		Source:                src.Name,
		IsFallbackPlaceholder: true,
	}
}

// blockedPlaceholders returns one placeholder per blocked source.
func blockedPlaceholders(outcomes Outcomes, category string) []RawOpportunity {
	var out []RawOpportunity
	for _, so := range outcomes {
		if so.Outcome.Kind == OutcomeBlocked {
			out = append(out, Placeholder(so.Source, category))
		}
	}
	return out
}

// unreachablePlaceholders returns one placeholder per distinct domain whose
// fetch timed out or failed.
func unreachablePlaceholders(outcomes Outcomes, category string) []RawOpportunity {
	seen := make(map[string]struct{})
	var out []RawOpportunity
	for _, so := range outcomes {
		if so.Outcome.Kind != OutcomeTimeout && so.Outcome.Kind != OutcomeError {
			continue
		}
		d := so.Source.Domain()
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, Placeholder(so.Source, category))
	}
	return out
}
