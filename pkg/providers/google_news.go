package providers

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/rss"

	"github.com/gn-clipper/news-clipper/internal/domain"
)

const googleNewsSearchURL = "https://news.google.com/rss/search"

// googleNewsFetcher implements Fetcher for the Google News RSS search endpoint.
type googleNewsFetcher struct {
	client HTTPClient
}

// NewGoogleNewsFetcher builds a Fetcher for Google News RSS search.
func NewGoogleNewsFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &googleNewsFetcher{client: client}
}

// ID returns the provider type for the Google News fetcher.
func (f *googleNewsFetcher) ID() string {
	return ProviderTypeGoogleNews
}

// BuildQueries combines every issue and region into one boolean search query.
func (f *googleNewsFetcher) BuildQueries(_ Provider, combo domain.KeywordCombination, lookback time.Duration) []Query {
	text := buildBooleanQuery(combo.Issues, combo.Regions)
	if text == "" {
		return nil
	}
	return []Query{{Text: text, Combination: combo, Lookback: lookback}}
}

// Fetch retrieves the RSS search results for one query.
func (f *googleNewsFetcher) Fetch(ctx context.Context, cfg Provider, q Query) ([]domain.RawArticle, error) {
	if !strings.EqualFold(cfg.Type, ProviderTypeGoogleNews) {
		return nil, fmt.Errorf("google news fetcher received incompatible provider type %q", cfg.Type)
	}

	endpoint := strings.TrimSpace(cfg.SourceURL)
	if endpoint == "" {
		endpoint = googleNewsSearchURL
	}

	body, err := fetchBody(ctx, f.client, endpoint, cfg.ID, googleNewsParams(cfg, q), Headers(cfg))
	if err != nil {
		return nil, err
	}

	feed, err := (&rss.Parser{}).Parse(bytes.NewReader(body))
	if err != nil {
		return nil, malformed(cfg.ID, body, fmt.Errorf("decode google news rss: %w", err))
	}

	limit := cfg.Limit()
	articles := make([]domain.RawArticle, 0, min(len(feed.Items), limit))
	for _, item := range feed.Items {
		if len(articles) == limit {
			break
		}
		if item == nil {
			continue
		}
		title, media := splitMediaSuffix(cleanText(item.Title))
		if item.Source != nil && strings.TrimSpace(item.Source.Title) != "" {
			media = strings.TrimSpace(item.Source.Title)
		}

		art := domain.RawArticle{
			ProviderID: cfg.ID,
			Title:      title,
			Link:       strings.TrimSpace(item.Link),
			Publisher:  media,
			Snippet:    truncateRunes(cleanText(item.Description), maxSnippetRunes),
		}
		if item.GUID != nil {
			art.GUID = strings.TrimSpace(item.GUID.Value)
		}
		if item.PubDateParsed != nil {
			art.PublishedAt = item.PubDateParsed.UTC()
		}
		articles = append(articles, art)
	}
	return articles, nil
}

// googleNewsParams builds the search parameters including the "when:" window.
func googleNewsParams(cfg Provider, q Query) map[string]string {
	lang := strings.TrimSpace(cfg.Language)
	if lang == "" {
		lang = "ko"
	}
	country := strings.ToUpper(strings.TrimSpace(cfg.Country))
	if country == "" {
		country = "KR"
	}

	text := q.Text
	if w := windowToken(q.Lookback); w != "" {
		text += " when:" + w
	}

	return map[string]string{
		"q":    text,
		"hl":   lang,
		"gl":   country,
		"ceid": country + ":" + lang,
	}
}

// windowToken renders a lookback as Google's "16h" / "2d" syntax.
func windowToken(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	hours := int((d + time.Hour - 1) / time.Hour)
	if hours%24 == 0 {
		return fmt.Sprintf("%dd", hours/24)
	}
	return fmt.Sprintf("%dh", hours)
}

// buildBooleanQuery renders "(a OR b) (c OR d)".
func buildBooleanQuery(issues, regions []string) string {
	group := func(terms []string) string {
		terms = nonEmpty(terms)
		quoted := make([]string, 0, len(terms))
		for _, t := range terms {
			quoted = append(quoted, quoteTerm(t))
		}
		return strings.Join(quoted, " OR ")
	}

	iq, rq := group(issues), group(regions)
	switch {
	case iq != "" && rq != "":
		return "(" + iq + ") (" + rq + ")"
	case iq != "":
		return iq
	default:
		return rq
	}
}
