package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistry_EmbeddedCatalog(t *testing.T) {
	reg, err := LoadRegistry()
	require.NoError(t, err)
	require.Len(t, reg.Sources, 31)

	counts := map[Category]int{}
	additional := 0
	for _, s := range reg.Sources {
		if s.Additional {
			additional++
			continue
		}
		counts[s.Category]++
	}
	assert.Equal(t, 4, counts[CategoryScholarship])
	assert.Equal(t, 8, counts[CategoryFellowship])
	assert.Equal(t, 17, counts[CategoryAccelerator])
	assert.Equal(t, 2, additional)

	tc, ok := reg.Get("techcrunch_disrupt")
	require.True(t, ok)
	assert.True(t, tc.Denylisted)

	sf, ok := reg.Get("station_f")
	require.True(t, ok)
	assert.True(t, sf.RequiresDynamicRender)
	assert.Equal(t, "Paris, France", sf.Location)
}

func TestRegistry_SourcesFor(t *testing.T) {
	reg, err := LoadRegistry()
	require.NoError(t, err)

	scholarship := CategoryScholarship
	got := reg.SourcesFor(&scholarship)
	ids := make([]string, 0, len(got))
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{
		"partiu_intercambio", "wemakescholars", "fulbright_brazil", "fulbright_us",
		"idealist", "un_opportunities",
	}, ids)

	all := reg.SourcesFor(nil)
	require.Len(t, all, 31)
	assert.Equal(t, CategoryScholarship, all[0].Category)
	assert.Equal(t, "un_opportunities", all[len(all)-1].ID)
}

func TestParseCategory(t *testing.T) {
	tests := map[string]Category{
		"scholarship":  CategoryScholarship,
		"Scholarships": CategoryScholarship,
		" fellowship ": CategoryFellowship,
		"ACCELERATORS": CategoryAccelerator,
	}
	for in, want := range tests {
		got, ok := ParseCategory(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseCategory("grant")
	assert.False(t, ok)
	_, ok = ParseCategory("")
	assert.False(t, ok)
}

func TestSource_BuildSearchURL(t *testing.T) {
	tests := []struct {
		name      string
		searchURL string
		keyword   string
		want      string
	}{
		{"placeholder", "https://a.example/search?q={keyword}", "climate change", "https://a.example/search?q=climate+change"},
		{"placeholder without keyword", "https://a.example/search?q={keyword}", "", "https://a.example/search?q="},
		{"appends q", "https://a.example/programs?page=1", "ai", "https://a.example/programs?page=1&q=ai"},
		{"no keyword keeps url", "https://a.example/programs", "  ", "https://a.example/programs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Source{SearchURL: tt.searchURL}
			assert.Equal(t, tt.want, s.BuildSearchURL(tt.keyword))
		})
	}
}

func TestSource_Domain(t *testing.T) {
	s := Source{BaseURL: "https://www.F6S.com/programs"}
	assert.Equal(t, "f6s.com", s.Domain())
	assert.Equal(t, "https://www.F6S.com", s.BaseDomain())
}

func TestRegistry_Validate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"empty", "sources: []", "no sources"},
		{"missing fields", `
sources:
  - id: a
    name: A
    category: scholarship
`, "required"},
		{"duplicate id", `
sources:
  - {id: a, name: A, category: scholarship, base_url: "https://a.example", search_url: "https://a.example"}
  - {id: a, name: B, category: scholarship, base_url: "https://b.example", search_url: "https://b.example"}
`, "duplicate"},
		{"unknown category", `
sources:
  - {id: a, name: A, category: grants, base_url: "https://a.example", search_url: "https://a.example"}
`, "unknown category"},
		{"relative base url", `
sources:
  - {id: a, name: A, category: scholarship, base_url: "a.example", search_url: "https://a.example"}
`, "invalid base_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRegistry([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParseRegistry_ExpandsEnv(t *testing.T) {
	t.Setenv("OPPS_TEST_HOST", "mirror.example")
	reg := mustRegistry(t, `
sources:
  - id: a
    name: A
    category: fellowship
    base_url: "https://${OPPS_TEST_HOST}"
    search_url: "https://${OPPS_TEST_HOST}/search"
`)
	assert.Equal(t, "mirror.example", reg.Sources[0].Domain())
}
