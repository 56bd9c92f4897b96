package providers

import (
	"context"
	"strings"
	"time"

	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/pkg/httpclient"
)

const (
	// Supported provider types.
	ProviderTypeGoogleNews = "google_news"
	ProviderTypeNaver      = "naver"
	ProviderTypeRSS        = "rss"
	ProviderTypeSitemap    = "sitemap"

	defaultMaxResults = 20
)

// HTTPClient is the transport used by fetchers.
type HTTPClient = httpclient.Client

// Provider is a single source declared in configuration.
type Provider struct {
	ID               string            `mapstructure:"id"`
	Type             string            `mapstructure:"type"`
	Enabled          *bool             `mapstructure:"enabled"`
	SourceURL        string            `mapstructure:"source_url"`
	MediaName        string            `mapstructure:"media_name"`
	Language         string            `mapstructure:"language"`
	Country          string            `mapstructure:"country"`
	ClientID         string            `mapstructure:"client_id"`
	ClientSecret     string            `mapstructure:"client_secret"`
	MaxResults       int               `mapstructure:"max_results"`
	MaxQueries       int               `mapstructure:"max_queries"`
	InterestKeywords []string          `mapstructure:"interest_keywords"`
	ExtraHeaders     map[string]string `mapstructure:"headers"`
	Delay            time.Duration     `mapstructure:"request_delay"`
}

// EnabledValue returns the enabled flag defaulting to true.
func (p Provider) EnabledValue() bool {
	if p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

// RequestDelay is the pause between two queries against the same provider.
func (p Provider) RequestDelay() time.Duration {
	if p.Delay < 0 {
		return 0
	}
	return p.Delay
}

// Limit returns the per-query result cap.
func (p Provider) Limit() int {
	if p.MaxResults <= 0 {
		return defaultMaxResults
	}
	return p.MaxResults
}

// Headers returns the configured request headers with empty entries removed.
func Headers(cfg Provider) map[string]string {
	out := make(map[string]string, len(cfg.ExtraHeaders))
	for k, v := range cfg.ExtraHeaders {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Query is one provider request derived from a keyword combination.
type Query struct {
	Text        string
	Combination domain.KeywordCombination
	Lookback    time.Duration
}

// Fetcher turns queries into raw articles for one provider type.
type Fetcher interface {
	ID() string
	BuildQueries(cfg Provider, combo domain.KeywordCombination, lookback time.Duration) []Query
	Fetch(ctx context.Context, cfg Provider, q Query) ([]domain.RawArticle, error)
}

// FetcherRegistry resolves the fetcher for a configured provider.
type FetcherRegistry interface {
	FetcherFor(cfg Provider) (Fetcher, error)
}
