package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestyClientRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, r.URL.Query().Get("q")+"|"+r.Header.Get("X-Test"))
		case http.MethodPost:
			var payload map[string]string
			_ = json.NewDecoder(r.Body).Decode(&payload)
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, payload["name"]+"|"+r.Header.Get("Content-Type"))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	c := NewRestyClient(2 * time.Second)
	ctx := context.Background()

	resp, err := c.GetWithQuery(ctx, srv.URL, map[string]string{"q": "노동 경남"}, map[string]string{"X-Test": "yes"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "노동 경남|yes", string(resp.Body()))

	resp, err = c.PostJSON(ctx, srv.URL, nil, map[string]string{"name": "clip"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode())
	assert.Equal(t, "clip|application/json", string(resp.Body()))

	resp, err = c.Do(ctx, http.MethodDelete, srv.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode())
}

func TestRestyClientHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewRestyClient(5*time.Second).Get(ctx, srv.URL, nil)
	assert.Error(t, err)
}
