package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/pkg/httpclient"
)

var labourCombo = domain.KeywordCombination{
	Name:     "labour-gyeongnam",
	Issues:   []string{"노동", "산업재해"},
	Regions:  []string{"경남", "창원"},
	Category: "노동",
}

const googleNewsFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Google News</title>
<item>
  <title>창원 공장 산업재해 잇따라 - 경남신문</title>
  <link>https://news.google.com/rss/articles/abc</link>
  <guid isPermaLink="false">CBMiabc</guid>
  <pubDate>Mon, 12 Oct 2026 01:00:00 GMT</pubDate>
  <description>&lt;a href="x"&gt;창원 공장&lt;/a&gt; 산업재해</description>
  <source url="https://www.knnews.co.kr">경남신문</source>
</item>
<item>
  <title>경남 노동계 총파업 예고 - 경남도민일보</title>
  <link>https://news.google.com/rss/articles/def</link>
  <guid isPermaLink="false">CBMidef</guid>
  <pubDate>Mon, 12 Oct 2026 02:00:00 GMT</pubDate>
  <description>총파업</description>
</item>
</channel></rss>`

func newTestClient() httpclient.Client {
	return httpclient.NewRestyClient(2 * time.Second)
}

func TestGoogleNewsBuildQueries(t *testing.T) {
	f := NewGoogleNewsFetcher(newTestClient())

	queries := f.BuildQueries(Provider{}, domain.KeywordCombination{
		Issues:  []string{"노동", "중대 재해"},
		Regions: []string{"경남"},
	}, 16*time.Hour)

	require.Len(t, queries, 1)
	assert.Equal(t, `(노동 OR "중대 재해") (경남)`, queries[0].Text)
	assert.Equal(t, 16*time.Hour, queries[0].Lookback)

	assert.Empty(t, f.BuildQueries(Provider{}, domain.KeywordCombination{}, time.Hour))
}

func TestGoogleNewsFetch(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		_, _ = w.Write([]byte(googleNewsFeed))
	}))
	defer srv.Close()

	cfg := Provider{ID: "gnews", Type: ProviderTypeGoogleNews, SourceURL: srv.URL}
	f := NewGoogleNewsFetcher(newTestClient())
	q := f.BuildQueries(cfg, labourCombo, 16*time.Hour)[0]

	articles, err := f.Fetch(context.Background(), cfg, q)
	require.NoError(t, err)
	require.Len(t, articles, 2)

	first := articles[0]
	assert.Equal(t, "창원 공장 산업재해 잇따라", first.Title)
	assert.Equal(t, "경남신문", first.Publisher)
	assert.Equal(t, "CBMiabc", first.GUID)
	assert.Equal(t, "창원 공장 산업재해", first.Snippet)
	assert.Equal(t, time.Date(2026, 10, 12, 1, 0, 0, 0, time.UTC), first.PublishedAt)

	assert.Equal(t, "경남도민일보", articles[1].Publisher, "media falls back to title suffix")

	values := gotQuery.Load().(url.Values)
	assert.Equal(t, []string{"(노동 OR 산업재해) (경남 OR 창원) when:16h"}, values["q"])
	assert.Equal(t, []string{"KR:ko"}, values["ceid"])
}

func TestGoogleNewsFetchLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(googleNewsFeed))
	}))
	defer srv.Close()

	cfg := Provider{ID: "gnews", Type: ProviderTypeGoogleNews, SourceURL: srv.URL, MaxResults: 1}
	articles, err := NewGoogleNewsFetcher(newTestClient()).Fetch(context.Background(), cfg, Query{Text: "노동"})
	require.NoError(t, err)
	assert.Len(t, articles, 1)
}

func TestWindowToken(t *testing.T) {
	tests := map[string]struct {
		in   time.Duration
		want string
	}{
		"zero":         {0, ""},
		"hours":        {16 * time.Hour, "16h"},
		"partial hour": {90 * time.Minute, "2h"},
		"whole days":   {48 * time.Hour, "2d"},
		"negative":     {-time.Hour, ""},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, windowToken(tt.in))
		})
	}
}

func TestFetchBodyClassifiesStatus(t *testing.T) {
	tests := map[string]struct {
		status    int
		transient bool
	}{
		"rate limited": {http.StatusTooManyRequests, true},
		"server error": {http.StatusBadGateway, true},
		"not found":    {http.StatusNotFound, false},
		"forbidden":    {http.StatusForbidden, false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := fetchBody(context.Background(), newTestClient(), srv.URL, "p", nil, nil)
			require.Error(t, err)
			assert.Equal(t, tt.transient, domain.IsTransient(err))
		})
	}
}

func TestMalformedFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not a feed"))
	}))
	defer srv.Close()

	cfg := Provider{ID: "gnews", Type: ProviderTypeGoogleNews, SourceURL: srv.URL}
	_, err := NewGoogleNewsFetcher(newTestClient()).Fetch(context.Background(), cfg, Query{Text: "노동"})
	require.Error(t, err)

	var mErr *domain.MalformedResponseError
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, "gnews", mErr.Source)
	assert.False(t, domain.IsTransient(err))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "경남 \"노동\" 뉴스", cleanText("<b>경남</b>  &quot;노동&quot;\n 뉴스"))
	assert.Equal(t, "", cleanText(""))
}

func TestSplitMediaSuffix(t *testing.T) {
	title, media := splitMediaSuffix("김해 - 시민 - 한겨레")
	assert.Equal(t, "김해 - 시민", title)
	assert.Equal(t, "한겨레", media)

	title, media = splitMediaSuffix("제목만")
	assert.Equal(t, "제목만", title)
	assert.Empty(t, media)
}
