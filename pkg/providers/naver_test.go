package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gn-clipper/news-clipper/internal/domain"
)

const naverPayload = `{
  "items": [
    {
      "title": "<b>경남</b> 노동자 임금체불 &quot;심각&quot;",
      "originallink": "https://www.idomin.com/news/articleView.html?idxno=1",
      "link": "https://n.news.naver.com/article/1",
      "description": "창원 <b>노동</b> 현장",
      "pubDate": "Mon, 12 Oct 2026 10:30:00 +0900"
    },
    {
      "title": "네이버 단독",
      "originallink": "",
      "link": "https://n.news.naver.com/article/2",
      "description": "",
      "pubDate": "not a date"
    }
  ]
}`

func TestNaverBuildQueries(t *testing.T) {
	f := NewNaverFetcher(newTestClient())

	queries := f.BuildQueries(Provider{}, labourCombo, time.Hour)
	require.Len(t, queries, 4)
	assert.Equal(t, "노동 경남", queries[0].Text)
	assert.Equal(t, "노동 창원", queries[1].Text)
	assert.Equal(t, "산업재해 경남", queries[2].Text)

	capped := f.BuildQueries(Provider{MaxQueries: 1}, labourCombo, time.Hour)
	require.Len(t, capped, 1)

	noRegion := f.BuildQueries(Provider{}, domain.KeywordCombination{Issues: labourCombo.Issues}, time.Hour)
	require.Len(t, noRegion, 2)
	assert.Equal(t, "노동", noRegion[0].Text)
}

func TestNaverFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id", r.Header.Get("X-Naver-Client-Id"))
		assert.Equal(t, "secret", r.Header.Get("X-Naver-Client-Secret"))
		assert.Equal(t, "노동 경남", r.URL.Query().Get("query"))
		assert.Equal(t, "20", r.URL.Query().Get("display"))
		assert.Equal(t, "date", r.URL.Query().Get("sort"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(naverPayload))
	}))
	defer srv.Close()

	cfg := Provider{ID: "naver", Type: ProviderTypeNaver, SourceURL: srv.URL, ClientID: "id", ClientSecret: "secret"}
	articles, err := NewNaverFetcher(newTestClient()).Fetch(context.Background(), cfg, Query{Text: "노동 경남"})
	require.NoError(t, err)
	require.Len(t, articles, 2)

	assert.Equal(t, `경남 노동자 임금체불 "심각"`, articles[0].Title)
	assert.Equal(t, "https://www.idomin.com/news/articleView.html?idxno=1", articles[0].Link)
	assert.Equal(t, "idomin.com", articles[0].Publisher)
	assert.Equal(t, "창원 노동 현장", articles[0].Snippet)
	assert.Equal(t, time.Date(2026, 10, 12, 1, 30, 0, 0, time.UTC), articles[0].PublishedAt)

	assert.Equal(t, "https://n.news.naver.com/article/2", articles[1].Link)
	assert.True(t, articles[1].PublishedAt.IsZero())
}

func TestNaverFetchRequiresCredentials(t *testing.T) {
	cfg := Provider{ID: "naver", Type: ProviderTypeNaver}
	_, err := NewNaverFetcher(newTestClient()).Fetch(context.Background(), cfg, Query{Text: "노동"})
	require.ErrorContains(t, err, "client_id")
}

func TestNaverFetchMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items": "nope"`))
	}))
	defer srv.Close()

	cfg := Provider{ID: "naver", Type: ProviderTypeNaver, SourceURL: srv.URL, ClientID: "id", ClientSecret: "secret"}
	_, err := NewNaverFetcher(newTestClient()).Fetch(context.Background(), cfg, Query{Text: "노동"})
	require.ErrorContains(t, err, "decode naver response")
}
