package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/gn-clipper/news-clipper/internal/domain"
)

// rssFetcher reads a regional outlet's RSS or Atom feed directly.
type rssFetcher struct {
	client HTTPClient
}

// NewRSSFetcher builds a Fetcher for plain RSS/Atom feeds.
func NewRSSFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &rssFetcher{client: client}
}

func (f *rssFetcher) ID() string {
	return ProviderTypeRSS
}

// BuildQueries yields a single query per combination; the feed itself is not searchable.
func (f *rssFetcher) BuildQueries(_ Provider, combo domain.KeywordCombination, lookback time.Duration) []Query {
	return []Query{{Text: strings.Join(nonEmpty(combo.Issues), ","), Combination: combo, Lookback: lookback}}
}

func (f *rssFetcher) Fetch(ctx context.Context, cfg Provider, q Query) ([]domain.RawArticle, error) {
	if !strings.EqualFold(cfg.Type, ProviderTypeRSS) {
		return nil, fmt.Errorf("rss fetcher received incompatible provider type %q", cfg.Type)
	}
	if strings.TrimSpace(cfg.SourceURL) == "" {
		return nil, fmt.Errorf("provider %q source_url is empty", cfg.ID)
	}

	body, err := fetchBody(ctx, f.client, cfg.SourceURL, cfg.ID, nil, Headers(cfg))
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, malformed(cfg.ID, body, fmt.Errorf("decode feed: %w", err))
	}

	media := strings.TrimSpace(cfg.MediaName)
	if media == "" {
		media = strings.TrimSpace(feed.Title)
	}

	terms := append(nonEmpty(q.Combination.Issues), cfg.InterestKeywords...)
	limit := cfg.Limit()
	articles := make([]domain.RawArticle, 0, min(len(feed.Items), limit))
	for _, item := range feed.Items {
		if len(articles) == limit {
			break
		}
		if item == nil {
			continue
		}
		title := cleanText(item.Title)
		snippet := cleanText(item.Description)
		if !containsAny(title+" "+snippet, terms) {
			continue
		}

		art := domain.RawArticle{
			ProviderID: cfg.ID,
			GUID:       strings.TrimSpace(item.GUID),
			Title:      title,
			Link:       strings.TrimSpace(item.Link),
			Publisher:  media,
			Snippet:    truncateRunes(snippet, maxSnippetRunes),
		}
		switch {
		case item.PublishedParsed != nil:
			art.PublishedAt = item.PublishedParsed.UTC()
		case item.UpdatedParsed != nil:
			art.PublishedAt = item.UpdatedParsed.UTC()
		}
		articles = append(articles, art)
	}
	return articles, nil
}
