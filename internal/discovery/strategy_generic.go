package discovery

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

type containerHeuristic struct {
	tags  string
	class *regexp.Regexp
}

// Tried in order; the first one that matches anything wins.
var genericHeuristics = []containerHeuristic{
	{"div, article", regexp.MustCompile(`item|card|entry|post`)},
	{"div, article", regexp.MustCompile(`opportunity|scholarship|fellowship|program`)},
	{"li", regexp.MustCompile(`item|entry`)},
	{"div", regexp.MustCompile(`listing|result`)},
}

var headingTags = []string{"h1", "h2", "h3", "h4", "h5"}

var eligibilityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)eligibility|eligible|requirements?|criteria`),
	regexp.MustCompile(`(?i)age|years? old`),
	regexp.MustCompile(`(?i)degree|education|university|college`),
	regexp.MustCompile(`(?i)citizen|nationality|country`),
	regexp.MustCompile(`(?i)experience|work|professional`),
}

// GenericStrategy parses pages of sites without a dedicated strategy. It prefers
// the source's configured selectors and falls back to structural heuristics.
type GenericStrategy struct{}

func (GenericStrategy) Name() string { return "generic" }

func (GenericStrategy) Extract(in ExtractInput) []RawOpportunity {
	items := genericCandidates(in.Doc.Selection, in.Source.Selectors.Container)
	return collect(in, items, maxGenericCandidates, func(item *goquery.Selection) RawOpportunity {
		return genericRecord(in, item)
	})
}

func genericCandidates(root *goquery.Selection, container string) *goquery.Selection {
	if container != "" {
		if s := root.Find(container); s.Length() > 0 {
			return s
		}
	}
	for _, h := range genericHeuristics {
		if s := root.Find(h.tags).FilterFunction(classMatches(h.class)); s.Length() > 0 {
			return s
		}
	}
	return root.Slice(0, 0)
}

// genericRecord extracts one record from a container element.
func genericRecord(in ExtractInput, item *goquery.Selection) RawOpportunity {
	sel := in.Source.Selectors

	title := ""
	if sel.Title != "" {
		title = firstText(item.Find(sel.Title))
	}
	if title == "" {
		title = firstHeading(item)
	}
	if title == "" {
		title = firstText(item.Find("a"))
	}

	href := ""
	if sel.URL != "" {
		href = firstAttr(item.Find(sel.URL), "href")
	}
	if href == "" {
		href = linkHref(item)
	}

	org := ""
	if sel.Organization != "" {
		org = firstText(item.Find(sel.Organization))
	}
	if org == "" {
		org = firstNonEmpty(in.Source.Organization, in.Source.Name, hostOf(in.PageURL))
	}

	location := ""
	if sel.Location != "" {
		location = firstText(item.Find(sel.Location))
	}
	if location == "" {
		location = in.Source.Location
	}

	rec := RawOpportunity{
		Title:        title,
		Organization: org,
		Type:         recordType(in.Category),
		Eligibility:  extractEligibility(item),
		URL:          resolveURL(in.PageURL, href),
		Location:     location,
		Source:       firstNonEmpty(in.Source.Name, hostOf(in.PageURL)),
	}
	if sel.Amount != "" {
		rec.Amount = firstText(item.Find(sel.Amount))
	}
	if sel.Deadline != "" {
		rec.Deadline = firstText(item.Find(sel.Deadline))
	}
	return rec
}

// extractEligibility returns the text of the first element whose own text
// matches an eligibility pattern, trying the patterns in order.
func extractEligibility(item *goquery.Selection) string {
	nodes := append([]*goquery.Selection{item}, eachOf(item.Find("*"))...)
	for _, re := range eligibilityPatterns {
		for _, n := range nodes {
			if re.MatchString(ownText(n)) {
				return TruncateText(cleanText(n.Text()), maxEligibilityLen)
			}
		}
	}
	return ""
}

func eachOf(s *goquery.Selection) []*goquery.Selection {
	out := make([]*goquery.Selection, 0, s.Length())
	s.Each(func(_ int, el *goquery.Selection) {
		out = append(out, el)
	})
	return out
}

// ownText concatenates the text nodes directly under the selection.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
				b.WriteByte(' ')
			}
		}
	}
	return b.String()
}

func classMatches(re *regexp.Regexp) func(int, *goquery.Selection) bool {
	return func(_ int, s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		return ok && re.MatchString(class)
	}
}

func firstHeading(item *goquery.Selection) string {
	for _, tag := range headingTags {
		if t := firstText(item.Find(tag)); t != "" {
			return t
		}
	}
	return ""
}

func firstText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	return cleanText(s.First().Text())
}

func firstAttr(s *goquery.Selection, attr string) string {
	v := ""
	s.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if a, ok := el.Attr(attr); ok && strings.TrimSpace(a) != "" {
			v = strings.TrimSpace(a)
			return false
		}
		return true
	})
	return v
}

// linkHref returns the first href inside item, or item's own href when it is a link.
func linkHref(item *goquery.Selection) string {
	if href := firstAttr(item.Find("a[href]"), "href"); href != "" {
		return href
	}
	if goquery.NodeName(item) == "a" {
		return firstAttr(item, "href")
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
