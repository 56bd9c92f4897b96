package providers

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/pkg/httpclient"
)

const maxSnippetRunes = 500

var stripPolicy = bluemonday.StrictPolicy()

// responseSnippet returns a truncated snippet of the response body for logging.
func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return truncateRunes(s, maxLen) + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// cleanText removes markup and entities, and collapses whitespace.
func cleanText(raw string) string {
	if raw == "" {
		return ""
	}
	text := html.UnescapeString(stripPolicy.Sanitize(raw))
	return strings.Join(strings.Fields(text), " ")
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// splitMediaSuffix separates "Title - Media" into its parts.
func splitMediaSuffix(title string) (string, string) {
	idx := strings.LastIndex(title, " - ")
	if idx <= 0 {
		return strings.TrimSpace(title), ""
	}
	return strings.TrimSpace(title[:idx]), strings.TrimSpace(title[idx+3:])
}

// quoteTerm wraps multi-word terms in quotes for search engines.
func quoteTerm(term string) string {
	term = strings.TrimSpace(term)
	if strings.ContainsAny(term, " \t") {
		return `"` + term + `"`
	}
	return term
}

// nonEmpty trims values and drops blanks.
func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// fetchBody retrieves a document and classifies HTTP failures.
func fetchBody(ctx context.Context, client HTTPClient, url, providerID string, query, headers map[string]string) ([]byte, error) {
	var (
		resp httpclient.Response
		err  error
	)
	if len(query) > 0 {
		resp, err = client.GetWithQuery(ctx, url, query, headers)
	} else {
		resp, err = client.Get(ctx, url, headers)
	}
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("fetch %s: %w", providerID, err))
	}

	body := resp.Body()
	if code := resp.StatusCode(); code != http.StatusOK {
		statusErr := fmt.Errorf("%s returned status %d body: %s", providerID, code, responseSnippet(body))
		if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return nil, domain.Transient(statusErr)
		}
		return nil, statusErr
	}

	return body, nil
}

// malformed builds the provider variant of MalformedResponseError.
func malformed(providerID string, body []byte, err error) error {
	return &domain.MalformedResponseError{
		Source:  providerID,
		Snippet: responseSnippet(body),
		Err:     err,
	}
}

// containsAny reports whether text contains any of the terms, case-insensitively.
func containsAny(text string, terms []string) bool {
	text = strings.ToLower(text)
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" && strings.Contains(text, t) {
			return true
		}
	}
	return false
}
