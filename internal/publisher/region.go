package publisher

import "strings"

// Region is a named region and the title keywords that identify it.
type Region struct {
	Name     string   `mapstructure:"name"`
	Keywords []string `mapstructure:"keywords"`
}

// FallbackRegion is used when no region keyword occurs in the title.
const FallbackRegion = "그외"

// DefaultRegions lists cities before the province so the more specific match wins.
func DefaultRegions() []Region {
	return []Region{
		{Name: "김해", Keywords: []string{"김해", "김해시"}},
		{Name: "진주", Keywords: []string{"진주", "진주시"}},
		{Name: "양산", Keywords: []string{"양산", "양산시"}},
		{Name: "거제", Keywords: []string{"거제", "거제시"}},
		{Name: "창원", Keywords: []string{"창원", "마산", "진해", "창원시"}},
		{Name: "경상남도", Keywords: []string{"경남", "경상남도", "도청", "경남도"}},
	}
}

// ExtractRegion returns the first region, in priority order, whose keyword appears in title.
func ExtractRegion(title string, regions []Region) string {
	for _, r := range regions {
		for _, kw := range r.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" && strings.Contains(title, kw) {
				return r.Name
			}
		}
	}
	return FallbackRegion
}
