package broadcast

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gn-clipper/news-clipper/internal/logger"
	"github.com/gn-clipper/news-clipper/pkg/httpclient"
)

// httpBroadcaster posts events as JSON to a webhook.
type httpBroadcaster struct {
	id      string
	typ     string
	url     string
	method  string
	headers map[string]string
	client  httpclient.Client
	log     Logger
}

// newHTTPBroadcaster builds a webhook broadcaster.
func newHTTPBroadcaster(_ context.Context, cfg Config, log Logger) (Broadcaster, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("broadcaster %q missing http configuration", cfg.ID)
	}
	timeout := time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = httpDefaultTimeoutSeconds * time.Second
	}
	method := cfg.HTTP.Method
	if method == "" {
		method = httpDefaultMethod
	}

	return &httpBroadcaster{
		id:      cfg.ID,
		typ:     cfg.Type,
		url:     cfg.HTTP.URL,
		method:  method,
		headers: cfg.HTTP.Headers,
		client:  httpclient.NewRestyClient(timeout),
		log:     logger.Ensure(log),
	}, nil
}

func (h *httpBroadcaster) ID() string   { return h.id }
func (h *httpBroadcaster) Type() string { return h.typ }

// Broadcast sends the event and treats any non-2xx response as a failure.
func (h *httpBroadcaster) Broadcast(ctx context.Context, evt Event) error {
	resp, err := h.client.Do(ctx, h.method, h.url, h.headers, evt)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", h.id, err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		body := strings.TrimSpace(string(resp.Body()))
		if len(body) > 256 {
			body = body[:256]
		}
		return fmt.Errorf("webhook %s returned status %d body: %s", h.id, code, body)
	}
	h.log.DebugObj("webhook delivered event", "broadcast_http_delivery", map[string]any{
		"broadcaster_id": h.id,
		"event":          evt.Type,
		"status":         resp.StatusCode(),
	})
	return nil
}
