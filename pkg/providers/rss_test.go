package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const regionalFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>경남도민일보</title>
<item>
  <title>도의회, 노동 조례 개정</title>
  <link>https://www.idomin.com/news/articleView.html?idxno=10</link>
  <guid>https://www.idomin.com/news/articleView.html?idxno=10</guid>
  <pubDate>Tue, 13 Oct 2026 09:00:00 +0900</pubDate>
  <description>경남도의회가 조례를 개정했다</description>
</item>
<item>
  <title>주말 날씨 맑음</title>
  <link>https://www.idomin.com/news/articleView.html?idxno=11</link>
  <description>나들이 좋아</description>
</item>
<item>
  <title>진해 군항제 준비</title>
  <link>https://www.idomin.com/news/articleView.html?idxno=12</link>
  <description>동물복지 부스 운영</description>
</item>
</channel></rss>`

func TestRSSFetchFiltersByTerms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(regionalFeed))
	}))
	defer srv.Close()

	cfg := Provider{
		ID:               "idomin",
		Type:             ProviderTypeRSS,
		SourceURL:        srv.URL,
		InterestKeywords: []string{"동물복지"},
	}
	f := NewRSSFetcher(newTestClient())
	queries := f.BuildQueries(cfg, labourCombo, time.Hour)
	require.Len(t, queries, 1)

	articles, err := f.Fetch(context.Background(), cfg, queries[0])
	require.NoError(t, err)
	require.Len(t, articles, 2)

	assert.Equal(t, "도의회, 노동 조례 개정", articles[0].Title)
	assert.Equal(t, "경남도민일보", articles[0].Publisher, "media falls back to feed title")
	assert.Equal(t, time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC), articles[0].PublishedAt)
	assert.Equal(t, "진해 군항제 준비", articles[1].Title, "matched by interest keyword")
	assert.True(t, articles[1].PublishedAt.IsZero())
}

func TestRSSFetchMediaOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(regionalFeed))
	}))
	defer srv.Close()

	cfg := Provider{ID: "idomin", Type: ProviderTypeRSS, SourceURL: srv.URL, MediaName: "도민일보"}
	articles, err := NewRSSFetcher(newTestClient()).Fetch(context.Background(), cfg, Query{Combination: labourCombo})
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "도민일보", articles[0].Publisher)
}

func TestRSSFetchRequiresSourceURL(t *testing.T) {
	_, err := NewRSSFetcher(newTestClient()).Fetch(context.Background(), Provider{ID: "x", Type: ProviderTypeRSS}, Query{})
	require.ErrorContains(t, err, "source_url is empty")
}
