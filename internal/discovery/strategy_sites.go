package discovery

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// siteStrategy is a listing parser tuned to the class names of one site.
type siteStrategy struct {
	name    string
	oppType string // empty means the requested category, or "opportunity"

	container *regexp.Regexp
	// titleClass restricts which headings count as the title.
	titleClass *regexp.Regexp
	// titleLink also accepts a link with a matching class as the title.
	titleLink bool

	organization *regexp.Regexp
	defaultOrg   string
	amount       *regexp.Regexp
	deadline     *regexp.Regexp
	location     *regexp.Regexp
	description  *regexp.Regexp
}

var siteStrategies = map[string]*siteStrategy{
	"wemakescholars.com": {
		name:         "WeMakeScholars",
		oppType:      string(CategoryScholarship),
		container:    regexp.MustCompile(`scholarship|card|item`),
		titleClass:   regexp.MustCompile(`title|name`),
		titleLink:    true,
		organization: regexp.MustCompile(`organization|university|provider`),
		defaultOrg:   "WeMakeScholars",
		amount:       regexp.MustCompile(`amount|value|money`),
		deadline:     regexp.MustCompile(`deadline|date|due`),
		description:  regexp.MustCompile(`description|summary|details`),
	},
	"partiuintercambio.org": {
		name:         "Partiu Intercambio",
		oppType:      string(CategoryScholarship),
		container:    regexp.MustCompile(`bolsa|scholarship|item`),
		organization: regexp.MustCompile(`instituicao|organization`),
		defaultOrg:   "Partiu Intercambio",
		amount:       regexp.MustCompile(`valor|amount`),
		deadline:     regexp.MustCompile(`prazo|deadline`),
	},
	"profellow.com": {
		name:         "ProFellow",
		oppType:      string(CategoryFellowship),
		container:    regexp.MustCompile(`fellowship|opportunity|item`),
		organization: regexp.MustCompile(`organization|provider`),
		defaultOrg:   "ProFellow",
		location:     regexp.MustCompile(`location|region`),
		deadline:     regexp.MustCompile(`deadline|date`),
	},
	"opportunitydesk.org": {
		name:         "OpportunityDesk",
		container:    regexp.MustCompile(`opportunity|item|card`),
		organization: regexp.MustCompile(`organization|provider`),
		defaultOrg:   "OpportunityDesk",
		deadline:     regexp.MustCompile(`deadline|date`),
	},
	"f6s.com": {
		name:         "F6S",
		oppType:      string(CategoryAccelerator),
		container:    regexp.MustCompile(`program|item|card`),
		organization: regexp.MustCompile(`organization|company`),
		defaultOrg:   "F6S",
		location:     regexp.MustCompile(`location|region`),
		deadline:     regexp.MustCompile(`deadline|date`),
	},
	"idealist.org": {
		name:         "Idealist",
		oppType:      string(CategoryFellowship),
		container:    regexp.MustCompile(`opportunity|card|item`),
		titleClass:   regexp.MustCompile(`title`),
		organization: regexp.MustCompile(`organization`),
		defaultOrg:   "Idealist",
		location:     regexp.MustCompile(`location`),
		deadline:     regexp.MustCompile(`deadline`),
	},
}

func (s *siteStrategy) Name() string { return s.name }

func (s *siteStrategy) Extract(in ExtractInput) []RawOpportunity {
	items := in.Doc.Find("div, article").FilterFunction(classMatches(s.container))
	return collect(in, items, 0, func(item *goquery.Selection) RawOpportunity {
		return s.record(in, item)
	})
}

func (s *siteStrategy) record(in ExtractInput, item *goquery.Selection) RawOpportunity {
	headings := item.Find("h1, h2, h3, h4")
	if s.titleClass != nil {
		headings = headings.FilterFunction(classMatches(s.titleClass))
	}
	title := firstText(headings)
	if title == "" && s.titleLink {
		title = firstText(item.Find("a").FilterFunction(classMatches(s.titleClass)))
	}

	oppType := s.oppType
	if oppType == "" {
		oppType = recordType(in.Category)
	}

	org := classedText(item, "span, div", s.organization)
	if org == "" {
		org = s.defaultOrg
	}

	return RawOpportunity{
		Title:        title,
		Organization: org,
		Type:         oppType,
		Eligibility:  extractEligibility(item),
		Deadline:     classedText(item, "span, div", s.deadline),
		URL:          resolveURL(in.PageURL, linkHref(item)),
		Amount:       classedText(item, "span, div", s.amount),
		Location:     classedText(item, "span, div", s.location),
		Description:  classedText(item, "p, div", s.description),
		Source:       s.name,
	}
}

// classedText returns the text of the first tags element whose class matches re.
func classedText(item *goquery.Selection, tags string, re *regexp.Regexp) string {
	if re == nil {
		return ""
	}
	return firstText(item.Find(tags).FilterFunction(classMatches(re)))
}
