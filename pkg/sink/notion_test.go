package sink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/pkg/httpclient"
)

func newNotion(t *testing.T, url string) *Notion {
	t.Helper()
	n, err := NewNotion(httpclient.NewRestyClient(2*time.Second), NotionOptions{
		Endpoint:   url,
		APIKey:     "secret",
		DatabaseID: "db-1",
	})
	require.NoError(t, err)
	return n
}

func TestNotionCreate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, defaultNotionVersion, r.Header.Get("Notion-Version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"object":"page","id":"page-123"}`))
	}))
	defer srv.Close()

	rec := Record{
		Title:       "김해 물류센터 산업재해",
		Category:    "노동",
		Region:      "김해",
		Importance:  4,
		Relevance:   75,
		Keywords:    []string{"산재", "김해", "a,b", "c", "d", "e"},
		MediaName:   "경남신문",
		PublishedAt: time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC),
		URL:         "https://knnews.co.kr/1",
		Summary:     "한 줄 요약",
	}

	id, err := newNotion(t, srv.URL).Create(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "page-123", id)

	assert.Equal(t, map[string]any{"database_id": "db-1"}, body["parent"])
	props := body["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"select": map[string]any{"name": "김해"}}, props["지역"])
	assert.Equal(t, map[string]any{"number": float64(4)}, props["중요도"])
	assert.Equal(t, map[string]any{"url": "https://knnews.co.kr/1"}, props["원문링크"])
	assert.Equal(t, map[string]any{"checkbox": false}, props["대응완료"])
	assert.Equal(t, map[string]any{"date": map[string]any{"start": "2026-10-13T00:00:00Z"}}, props["발행일시"])
	assert.NotContains(t, props, "관련성", "relevance is written only when a property name is configured")

	tags := props["키워드"].(map[string]any)["multi_select"].([]any)
	require.Len(t, tags, 5)
	assert.Equal(t, map[string]any{"name": "a b"}, tags[2])

	children := body["children"].([]any)
	require.Len(t, children, 3)
	assert.Equal(t, "callout", children[0].(map[string]any)["type"])
	assert.Equal(t, "bookmark", children[2].(map[string]any)["type"])
	assert.Equal(t, map[string]any{"type": "emoji", "emoji": "👷"}, body["icon"])
}

func TestNotionFindByURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/databases/db-1/query", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		filter := body["filter"].(map[string]any)
		assert.Equal(t, "원문링크", filter["property"])

		if filter["url"].(map[string]any)["equals"] == "https://knnews.co.kr/1" {
			_, _ = w.Write([]byte(`{"results":[{"id":"page-9"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	n := newNotion(t, srv.URL)

	id, found, err := n.FindByURL(context.Background(), "https://knnews.co.kr/1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "page-9", id)

	_, found, err = n.FindByURL(context.Background(), "https://knnews.co.kr/2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNotionErrorClassification(t *testing.T) {
	tests := map[string]struct {
		status    int
		body      string
		transient bool
		malformed bool
	}{
		"rate limited": {status: http.StatusTooManyRequests, transient: true},
		"conflict":     {status: http.StatusConflict, transient: true},
		"unavailable":  {status: http.StatusServiceUnavailable, transient: true},
		"validation":   {status: http.StatusBadRequest, body: `{"code":"validation_error"}`},
		"unauthorized": {status: http.StatusUnauthorized},
		"no id":        {status: http.StatusOK, body: `{"object":"page"}`, malformed: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newNotion(t, srv.URL).Create(context.Background(), Record{Title: "t", URL: "https://x"})
			require.Error(t, err)
			assert.Equal(t, tt.transient, domain.IsTransient(err))
			var mErr *domain.MalformedResponseError
			assert.Equal(t, tt.malformed, errors.As(err, &mErr))
		})
	}
}

func TestNewNotionValidation(t *testing.T) {
	client := httpclient.NewRestyClient(time.Second)

	_, err := NewNotion(client, NotionOptions{DatabaseID: "db"})
	require.ErrorContains(t, err, "api key")

	_, err = NewNotion(client, NotionOptions{APIKey: "k"})
	require.ErrorContains(t, err, "database id")

	_, err = NewNotion(client, NotionOptions{APIKey: "k", DatabaseID: "db", Properties: PropertyNames{Title: "Name"}})
	require.ErrorContains(t, err, "url property")
}
