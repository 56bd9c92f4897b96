package httpclient

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "news-clipper/1.0 (+https://github.com/gn-clipper/news-clipper)"

// Response is the subset of a resty response that callers inspect.
type Response interface {
	StatusCode() int
	Body() []byte
}

// Client performs HTTP calls on behalf of providers, the scorer, the sink and webhooks.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
	GetWithQuery(ctx context.Context, url string, query map[string]string, headers map[string]string) (Response, error)
	PostJSON(ctx context.Context, url string, headers map[string]string, body any) (Response, error)
	Do(ctx context.Context, method, url string, headers map[string]string, body any) (Response, error)
}

type restyClient struct {
	rc *resty.Client
}

// NewRestyClient builds a Client with the given per-request timeout.
func NewRestyClient(timeout time.Duration) Client {
	rc := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", defaultUserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &restyClient{rc: rc}
}

// Get issues a GET request with the provided headers.
func (c *restyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	return c.rc.R().SetContext(ctx).SetHeaders(headers).Get(url)
}

// GetWithQuery issues a GET request with query parameters.
func (c *restyClient) GetWithQuery(ctx context.Context, url string, query map[string]string, headers map[string]string) (Response, error) {
	return c.rc.R().SetContext(ctx).SetHeaders(headers).SetQueryParams(query).Get(url)
}

// PostJSON issues a POST request with a JSON encoded body.
func (c *restyClient) PostJSON(ctx context.Context, url string, headers map[string]string, body any) (Response, error) {
	return c.Do(ctx, resty.MethodPost, url, headers, body)
}

// Do issues a request with an arbitrary method. Non-nil bodies are sent as JSON.
func (c *restyClient) Do(ctx context.Context, method, url string, headers map[string]string, body any) (Response, error) {
	req := c.rc.R().SetContext(ctx).SetHeaders(headers)
	if body != nil {
		req = req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
