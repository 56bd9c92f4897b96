package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const newsSitemapXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9" xmlns:news="http://www.google.com/schemas/sitemap-news/0.9">
  <url>
    <loc>https://www.knnews.co.kr/news/articleView.php?idxno=100</loc>
    <news:news>
      <news:publication><news:name>경남신문</news:name><news:language>ko</news:language></news:publication>
      <news:publication_date>2026-10-13T08:00:00+09:00</news:publication_date>
      <news:title>김해 물류센터 산업재해</news:title>
      <news:keywords>김해, 산업재해</news:keywords>
    </news:news>
  </url>
  <url>
    <loc>https://www.knnews.co.kr/news/articleView.php?idxno=101</loc>
    <news:news>
      <news:title>프로야구 개막</news:title>
    </news:news>
  </url>
</urlset>`

func TestSitemapFetchFollowsIndex(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/index.xml", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprintf(w, `<sitemapindex><sitemap><loc>%s/news.xml</loc></sitemap><sitemap><loc>%s/index.xml</loc></sitemap></sitemapindex>`, srv.URL, srv.URL)
	})
	mux.HandleFunc("/news.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(newsSitemapXML))
	})

	cfg := Provider{ID: "knnews", Type: ProviderTypeSitemap, SourceURL: srv.URL + "/index.xml"}
	f := NewSitemapFetcher(newTestClient())
	articles, err := f.Fetch(context.Background(), cfg, f.BuildQueries(cfg, labourCombo, time.Hour)[0])
	require.NoError(t, err)
	require.Len(t, articles, 1)

	assert.Equal(t, int32(1), hits.Load(), "index cycle is visited once")
	assert.Equal(t, "김해 물류센터 산업재해", articles[0].Title)
	assert.Equal(t, "경남신문", articles[0].Publisher)
	assert.Equal(t, "김해, 산업재해", articles[0].Snippet)
	assert.Equal(t, time.Date(2026, 10, 12, 23, 0, 0, 0, time.UTC), articles[0].PublishedAt)
}

func TestParsePublicationDate(t *testing.T) {
	assert.Equal(t, time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC), parsePublicationDate("2026-10-13"))
	assert.True(t, parsePublicationDate("yesterday").IsZero())
	assert.True(t, parsePublicationDate("").IsZero())
}

func TestDefaultFetcherRegistry(t *testing.T) {
	reg := DefaultFetcherRegistry(newTestClient())

	for _, typ := range []string{ProviderTypeGoogleNews, ProviderTypeNaver, ProviderTypeRSS, "SITEMAP"} {
		f, err := reg.FetcherFor(Provider{ID: "p", Type: typ})
		require.NoError(t, err, typ)
		assert.NotNil(t, f)
	}

	_, err := reg.FetcherFor(Provider{ID: "p", Type: "ftp"})
	require.ErrorContains(t, err, "no fetcher registered")

	_, err = reg.FetcherFor(Provider{ID: "p"})
	require.ErrorContains(t, err, "has no type")
}
