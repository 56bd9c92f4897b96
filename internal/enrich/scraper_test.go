package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/pkg/httpclient"
)

const page = `<html><head>
<title>기사 제목</title>
<meta property="og:description" content="  창원시가 노동자 안전 조례를 개정하며 산업재해 예방을 위한 예산을 늘리기로 했다.  ">
</head><body></body></html>`

func TestEnrichFillsShortBodies(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	long := "이미 충분히 긴 본문입니다. 이미 충분히 긴 본문입니다. 이미 충분히 긴 본문입니다."
	in := []domain.CandidateArticle{
		{Fingerprint: "a", URL: srv.URL + "/ok", Body: "짧음"},
		{Fingerprint: "b", URL: srv.URL + "/missing", Body: "짧음"},
		{Fingerprint: "c", URL: srv.URL + "/ok", Body: long},
		{Fingerprint: "d", Body: ""},
	}

	s := NewScraper(httpclient.NewRestyClient(2*time.Second), Options{MinBodyRunes: 20, Workers: 2}, nil)
	out := s.Enrich(context.Background(), in)

	require.Len(t, out, 4)
	assert.Equal(t, "창원시가 노동자 안전 조례를 개정하며 산업재해 예방을 위한 예산을 늘리기로 했다.", out[0].Body)
	assert.Equal(t, "짧음", out[1].Body, "failed scrape keeps the original")
	assert.Equal(t, long, out[2].Body)
	assert.Equal(t, in[3], out[3])
	assert.Equal(t, "짧음", in[0].Body, "input is not mutated")
	assert.Equal(t, int32(2), hits.Load(), "only short bodies with a URL are fetched")
}

func TestEnrichCancelledReturnsOriginals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := []domain.CandidateArticle{{Fingerprint: "a", URL: "http://127.0.0.1:1/x", Body: ""}}
	out := NewScraper(nil, Options{}, nil).Enrich(ctx, in)
	assert.Equal(t, in, out)
}

func TestParseMeta(t *testing.T) {
	meta, err := parseMeta([]byte(`<html><head><title> T </title><meta name="description" content="d"></head></html>`))
	require.NoError(t, err)
	assert.Equal(t, "T", meta.Title)
	assert.Equal(t, "d", meta.Description)
}
