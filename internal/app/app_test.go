package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gn-clipper/news-clipper/internal/config"
	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/internal/publisher"
	"github.com/gn-clipper/news-clipper/internal/retry"
	"github.com/gn-clipper/news-clipper/internal/scorer"
	"github.com/gn-clipper/news-clipper/pkg/providers"
	"github.com/gn-clipper/news-clipper/pkg/sink"
)

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	pub := time.Now().UTC().Add(-time.Hour).Format(time.RFC1123Z)
	feed := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>경남신문</title>
<item><title>창원 노동자 산업재해 대책 촉구</title><link>https://knnews.example/a1?utm_source=rss</link><description>노동단체 기자회견</description><pubDate>` + pub + `</pubDate></item>
<item><title>김해 노동 정책 토론회</title><link>https://knnews.example/a2</link><description>노동 정책</description><pubDate>` + pub + `</pubDate></item>
<item><title>프로야구 개막</title><link>https://knnews.example/a3</link><description>스포츠</description><pubDate>` + pub + `</pubDate></item>
</channel></rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func geminiServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		text := ""
		for _, c := range req.Contents {
			for _, p := range c.Parts {
				text += p.Text
			}
		}
		relevance := 40
		if strings.Contains(text, "산업재해") {
			relevance = 85
		}
		answer := fmt.Sprintf(`{"relevance_score": %d, "importance_score": 4, "category": "노동", "summary": "요약", "keywords": ["노동"]}`, relevance)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": answer}}}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func notionServer(t *testing.T, creates *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/pages":
			n := creates.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": fmt.Sprintf("page-%d", n)})
		case strings.HasSuffix(r.URL.Path, "/query"):
			_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, feedURL, geminiURL, notionURL string) *config.Config {
	fast := retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return &config.Config{
		RelevanceThreshold: 60,
		DefaultLookback:    16 * time.Hour,
		Store:              config.StoreConfig{Path: filepath.Join(t.TempDir(), "seen.db")},
		Combinations: []domain.KeywordCombination{
			{Name: "노동-경남", Issues: []string{"노동"}, Regions: []string{"경남"}, Category: "노동"},
		},
		Providers: []providers.Provider{
			{ID: "knnews", Type: providers.ProviderTypeRSS, SourceURL: feedURL, MediaName: "경남신문"},
		},
		NewsSources: config.NewsSourcesConfig{Timeout: 5 * time.Second},
		Scorer: config.ScorerConfig{
			APIKey:            "g-key",
			Endpoint:          geminiURL,
			Categories:        scorer.DefaultCategories,
			RequestsPerMinute: 60000,
			Burst:             10,
			Timeout:           5 * time.Second,
			Retry:             fast,
		},
		Sink: config.SinkConfig{
			Notion: config.NotionConfig{
				APIKey:     "n-key",
				DatabaseID: "db-1",
				Endpoint:   notionURL,
				Properties: sink.DefaultPropertyNames(),
			},
			Timeout: 5 * time.Second,
			Retry:   fast,
		},
		Publisher: config.PublisherConfig{Regions: publisher.DefaultRegions()},
	}
}

func TestBuildAndRun(t *testing.T) {
	var creates atomic.Int32
	cfg := testConfig(t, feedServer(t).URL, geminiServer(t).URL, notionServer(t, &creates).URL)

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	sum, err := a.Run(context.Background(), "morning", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Collected, "the off-topic item is filtered by issue terms")
	assert.Equal(t, 1, sum.Published)
	assert.Equal(t, 1, sum.Rejected)
	assert.EqualValues(t, 1, creates.Load())

	stats, err := a.Store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.StatusPublished])
	assert.Equal(t, 1, stats[domain.StatusRejected])

	again, err := a.Run(context.Background(), "evening", 8*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, again.SkippedSeen)
	assert.EqualValues(t, 1, creates.Load())
}

func TestBuildRejectsMissingBroadcastFile(t *testing.T) {
	var creates atomic.Int32
	cfg := testConfig(t, feedServer(t).URL, geminiServer(t).URL, notionServer(t, &creates).URL)
	cfg.Broadcast.File = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Build(context.Background(), cfg, nil)
	assert.Error(t, err)

	// The store handle must have been released.
	st, err := OpenStore(cfg)
	require.NoError(t, err)
	require.NoError(t, st.Close())
}
