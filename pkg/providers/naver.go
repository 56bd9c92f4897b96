package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gn-clipper/news-clipper/internal/domain"
)

const (
	naverSearchURL        = "https://openapi.naver.com/v1/search/news.json"
	defaultNaverQueries   = 4
	naverMaxDisplay       = 100
	naverClientIDHeader   = "X-Naver-Client-Id"
	naverClientSecretHead = "X-Naver-Client-Secret"
)

type naverResponse struct {
	Items []naverItem `json:"items"`
}

type naverItem struct {
	Title        string `json:"title"`
	OriginalLink string `json:"originallink"`
	Link         string `json:"link"`
	Description  string `json:"description"`
	PubDate      string `json:"pubDate"`
}

// naverFetcher implements Fetcher for the Naver news search API.
type naverFetcher struct {
	client HTTPClient
}

// NewNaverFetcher builds a Fetcher for the Naver news search API.
func NewNaverFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &naverFetcher{client: client}
}

func (f *naverFetcher) ID() string {
	return ProviderTypeNaver
}

// BuildQueries pairs every issue with every region, capped by max_queries.
func (f *naverFetcher) BuildQueries(cfg Provider, combo domain.KeywordCombination, lookback time.Duration) []Query {
	limit := cfg.MaxQueries
	if limit <= 0 {
		limit = defaultNaverQueries
	}

	issues, regions := nonEmpty(combo.Issues), nonEmpty(combo.Regions)
	if len(regions) == 0 {
		regions = []string{""}
	}

	var queries []Query
	for _, issue := range issues {
		for _, region := range regions {
			if len(queries) == limit {
				return queries
			}
			text := strings.TrimSpace(issue + " " + region)
			queries = append(queries, Query{Text: text, Combination: combo, Lookback: lookback})
		}
	}
	return queries
}

func (f *naverFetcher) Fetch(ctx context.Context, cfg Provider, q Query) ([]domain.RawArticle, error) {
	if !strings.EqualFold(cfg.Type, ProviderTypeNaver) {
		return nil, fmt.Errorf("naver fetcher received incompatible provider type %q", cfg.Type)
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("provider %q requires client_id and client_secret", cfg.ID)
	}

	endpoint := strings.TrimSpace(cfg.SourceURL)
	if endpoint == "" {
		endpoint = naverSearchURL
	}

	headers := Headers(cfg)
	headers[naverClientIDHeader] = cfg.ClientID
	headers[naverClientSecretHead] = cfg.ClientSecret

	params := map[string]string{
		"query":   q.Text,
		"display": strconv.Itoa(min(cfg.Limit(), naverMaxDisplay)),
		"start":   "1",
		"sort":    "date",
	}

	body, err := fetchBody(ctx, f.client, endpoint, cfg.ID, params, headers)
	if err != nil {
		return nil, err
	}

	var payload naverResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, malformed(cfg.ID, body, fmt.Errorf("decode naver response: %w", err))
	}

	articles := make([]domain.RawArticle, 0, len(payload.Items))
	for _, item := range payload.Items {
		link := strings.TrimSpace(item.OriginalLink)
		if link == "" {
			link = strings.TrimSpace(item.Link)
		}

		art := domain.RawArticle{
			ProviderID: cfg.ID,
			Title:      cleanText(item.Title),
			Link:       link,
			Publisher:  hostOf(link),
			Snippet:    truncateRunes(cleanText(item.Description), maxSnippetRunes),
		}
		if t, err := time.Parse(time.RFC1123Z, strings.TrimSpace(item.PubDate)); err == nil {
			art.PublishedAt = t.UTC()
		}
		articles = append(articles, art)
	}
	return articles, nil
}

// hostOf returns the host of link without a leading "www.".
func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
