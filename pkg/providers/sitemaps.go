package providers

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/gn-clipper/news-clipper/internal/domain"
)

type newsSitemap struct {
	URLs []newsSitemapURL `xml:"url"`
}

type newsSitemapURL struct {
	Loc  string            `xml:"loc"`
	News newsSitemapDetail `xml:"news"`
}

type newsSitemapDetail struct {
	Publication     newsSitemapPublication `xml:"publication"`
	PublicationDate string                 `xml:"publication_date"`
	Keywords        string                 `xml:"keywords"`
	Title           string                 `xml:"title"`
}

type newsSitemapPublication struct {
	Name string `xml:"name"`
}

type sitemapIndex struct {
	Sitemaps []sitemapIndexEntry `xml:"sitemap"`
}

type sitemapIndexEntry struct {
	Loc string `xml:"loc"`
}

// sitemapFetcher reads Google News sitemaps published by regional outlets.
type sitemapFetcher struct {
	client HTTPClient
}

// NewSitemapFetcher builds a Fetcher for news sitemap providers.
func NewSitemapFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &sitemapFetcher{client: client}
}

func (f *sitemapFetcher) ID() string {
	return ProviderTypeSitemap
}

// BuildQueries yields a single query per combination; filtering happens on the fetched entries.
func (f *sitemapFetcher) BuildQueries(_ Provider, combo domain.KeywordCombination, lookback time.Duration) []Query {
	return []Query{{Text: strings.Join(nonEmpty(combo.Issues), ","), Combination: combo, Lookback: lookback}}
}

func (f *sitemapFetcher) Fetch(ctx context.Context, cfg Provider, q Query) ([]domain.RawArticle, error) {
	if !strings.EqualFold(cfg.Type, ProviderTypeSitemap) {
		return nil, fmt.Errorf("sitemap fetcher received incompatible provider type %q", cfg.Type)
	}
	if strings.TrimSpace(cfg.SourceURL) == "" {
		return nil, fmt.Errorf("provider %q source_url is empty", cfg.ID)
	}

	urls, err := f.fetchURLs(ctx, cfg, cfg.SourceURL, Headers(cfg), nil)
	if err != nil {
		return nil, err
	}

	terms := append(nonEmpty(q.Combination.Issues), cfg.InterestKeywords...)
	limit := cfg.Limit()
	articles := make([]domain.RawArticle, 0, min(len(urls), limit))
	for _, entry := range urls {
		if len(articles) == limit {
			break
		}
		loc := strings.TrimSpace(entry.Loc)
		title := cleanText(entry.News.Title)
		if loc == "" || title == "" {
			continue
		}
		if !containsAny(title+" "+entry.News.Keywords, terms) {
			continue
		}

		media := strings.TrimSpace(cfg.MediaName)
		if media == "" {
			media = strings.TrimSpace(entry.News.Publication.Name)
		}

		articles = append(articles, domain.RawArticle{
			ProviderID:  cfg.ID,
			Title:       title,
			Link:        loc,
			Publisher:   media,
			Snippet:     strings.Join(parseKeywords(entry.News.Keywords), ", "),
			PublishedAt: parsePublicationDate(entry.News.PublicationDate),
		})
	}
	return articles, nil
}

// fetchURLs resolves the given sitemap URL into entries, following sitemap indexes if necessary.
func (f *sitemapFetcher) fetchURLs(ctx context.Context, cfg Provider, url string, headers map[string]string, visited map[string]struct{}) ([]newsSitemapURL, error) {
	if visited == nil {
		visited = make(map[string]struct{})
	}
	if _, seen := visited[url]; seen {
		return nil, nil
	}
	visited[url] = struct{}{}

	raw, err := fetchBody(ctx, f.client, url, cfg.ID, nil, headers)
	if err != nil {
		return nil, err
	}

	var sitemap newsSitemap
	if err := xml.Unmarshal(raw, &sitemap); err != nil {
		return nil, malformed(cfg.ID, raw, fmt.Errorf("decode news sitemap: %w", err))
	}
	if len(sitemap.URLs) > 0 {
		return sitemap.URLs, nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(raw, &index); err != nil {
		return nil, malformed(cfg.ID, raw, fmt.Errorf("decode sitemap index: %w", err))
	}

	var all []newsSitemapURL
	for _, entry := range index.Sitemaps {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}
		nested, err := f.fetchURLs(ctx, cfg, loc, headers, visited)
		if err != nil {
			return nil, err
		}
		all = append(all, nested...)
	}
	return all, nil
}

// parseKeywords splits a comma-separated string of keywords into a slice of trimmed strings.
func parseKeywords(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return nonEmpty(strings.Split(raw, ","))
}

// parsePublicationDate attempts to parse the publication date from a string.
func parsePublicationDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04Z07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
