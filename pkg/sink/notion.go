package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/pkg/httpclient"
)

const (
	defaultNotionEndpoint = "https://api.notion.com/v1"
	defaultNotionVersion  = "2022-06-28"
	maxRichTextRunes      = 2000
	maxMultiSelect        = 5
)

// PropertyNames maps record fields to database property names. Empty names are not written.
type PropertyNames struct {
	Title       string `mapstructure:"title"`
	Category    string `mapstructure:"category"`
	Region      string `mapstructure:"region"`
	Importance  string `mapstructure:"importance"`
	Relevance   string `mapstructure:"relevance"`
	Media       string `mapstructure:"media"`
	URL         string `mapstructure:"url"`
	Done        string `mapstructure:"done"`
	PublishedAt string `mapstructure:"published_at"`
	Keywords    string `mapstructure:"keywords"`
}

// DefaultPropertyNames matches the clipping database layout.
func DefaultPropertyNames() PropertyNames {
	return PropertyNames{
		Title:       "제목",
		Category:    "카테고리",
		Region:      "지역",
		Importance:  "중요도",
		Media:       "언론사",
		URL:         "원문링크",
		Done:        "대응완료",
		PublishedAt: "발행일시",
		Keywords:    "키워드",
	}
}

// NotionOptions configure the Notion sink.
type NotionOptions struct {
	Endpoint   string
	APIKey     string
	DatabaseID string
	Version    string
	Properties PropertyNames
}

var categoryEmoji = map[string]string{
	"정당":   "🏛️",
	"노동":   "👷",
	"환경":   "🌱",
	"여성":   "👩",
	"동물복지": "🐾",
	"선거":   "🗳️",
	"지역":   "📍",
	"일반":   "📰",
}

// Notion writes records as pages of a Notion database.
type Notion struct {
	client httpclient.Client
	opts   NotionOptions
}

var _ Sink = (*Notion)(nil)

// NewNotion validates opts and builds the sink.
func NewNotion(client httpclient.Client, opts NotionOptions) (*Notion, error) {
	if client == nil {
		return nil, errors.New("notion sink requires an http client")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("notion api key is empty")
	}
	if strings.TrimSpace(opts.DatabaseID) == "" {
		return nil, errors.New("notion database id is empty")
	}
	opts.Endpoint = strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if opts.Endpoint == "" {
		opts.Endpoint = defaultNotionEndpoint
	}
	if strings.TrimSpace(opts.Version) == "" {
		opts.Version = defaultNotionVersion
	}
	if opts.Properties == (PropertyNames{}) {
		opts.Properties = DefaultPropertyNames()
	}
	if opts.Properties.Title == "" || opts.Properties.URL == "" {
		return nil, errors.New("notion title and url property names are required")
	}
	return &Notion{client: client, opts: opts}, nil
}

type notionPage struct {
	ID string `json:"id"`
}

type notionQueryResult struct {
	Results []notionPage `json:"results"`
}

// Create posts a new page and returns its id.
func (n *Notion) Create(ctx context.Context, rec Record) (string, error) {
	body := map[string]any{
		"parent":     map[string]any{"database_id": n.opts.DatabaseID},
		"properties": n.properties(rec),
		"children":   blocks(rec),
	}
	if emoji, ok := categoryEmoji[rec.Category]; ok {
		body["icon"] = map[string]any{"type": "emoji", "emoji": emoji}
	}

	raw, err := n.call(ctx, http.MethodPost, n.opts.Endpoint+"/pages", body)
	if err != nil {
		return "", err
	}

	var page notionPage
	if err := json.Unmarshal(raw, &page); err != nil || page.ID == "" {
		if err == nil {
			err = errors.New("page id missing")
		}
		return "", &domain.MalformedResponseError{Source: "notion", Snippet: snippet(raw), Err: err}
	}
	return page.ID, nil
}

// FindByURL queries the database for a page whose URL property equals url.
func (n *Notion) FindByURL(ctx context.Context, url string) (string, bool, error) {
	body := map[string]any{
		"filter": map[string]any{
			"property": n.opts.Properties.URL,
			"url":      map[string]any{"equals": url},
		},
		"page_size": 1,
	}

	raw, err := n.call(ctx, http.MethodPost, fmt.Sprintf("%s/databases/%s/query", n.opts.Endpoint, n.opts.DatabaseID), body)
	if err != nil {
		return "", false, err
	}

	var res notionQueryResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", false, &domain.MalformedResponseError{Source: "notion", Snippet: snippet(raw), Err: err}
	}
	if len(res.Results) == 0 || res.Results[0].ID == "" {
		return "", false, nil
	}
	return res.Results[0].ID, true, nil
}

func (n *Notion) call(ctx context.Context, method, url string, body any) ([]byte, error) {
	headers := map[string]string{
		"Authorization":  "Bearer " + n.opts.APIKey,
		"Notion-Version": n.opts.Version,
	}

	resp, err := n.client.Do(ctx, method, url, headers, body)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("notion request: %w", err))
	}

	raw := resp.Body()
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return raw, nil
	}

	statusErr := fmt.Errorf("notion returned status %d body: %s", code, snippet(raw))
	if code == http.StatusTooManyRequests || code == http.StatusConflict || code >= http.StatusInternalServerError {
		return nil, domain.Transient(statusErr)
	}
	return nil, statusErr
}

func (n *Notion) properties(rec Record) map[string]any {
	p := n.opts.Properties
	props := map[string]any{
		p.Title: map[string]any{"title": richText(rec.Title)},
		p.URL:   map[string]any{"url": rec.URL},
	}
	set := func(name string, value map[string]any) {
		if name != "" {
			props[name] = value
		}
	}

	if rec.Category != "" {
		set(p.Category, map[string]any{"select": map[string]any{"name": rec.Category}})
	}
	if rec.Region != "" {
		set(p.Region, map[string]any{"select": map[string]any{"name": rec.Region}})
	}
	set(p.Importance, map[string]any{"number": rec.Importance})
	set(p.Relevance, map[string]any{"number": rec.Relevance})
	set(p.Media, map[string]any{"rich_text": richText(rec.MediaName)})
	set(p.Done, map[string]any{"checkbox": rec.Done})
	if !rec.PublishedAt.IsZero() {
		set(p.PublishedAt, map[string]any{"date": map[string]any{"start": rec.PublishedAt.Format(time.RFC3339)}})
	}
	if len(rec.Keywords) > 0 {
		tags := make([]map[string]any, 0, min(len(rec.Keywords), maxMultiSelect))
		for _, kw := range rec.Keywords {
			if len(tags) == maxMultiSelect {
				break
			}
			// Notion rejects commas in select option names.
			if kw = strings.TrimSpace(strings.ReplaceAll(kw, ",", " ")); kw != "" {
				tags = append(tags, map[string]any{"name": kw})
			}
		}
		set(p.Keywords, map[string]any{"multi_select": tags})
	}
	return props
}

func blocks(rec Record) []map[string]any {
	var out []map[string]any
	if rec.Summary != "" {
		out = append(out, map[string]any{
			"object": "block",
			"type":   "callout",
			"callout": map[string]any{
				"rich_text": richText(rec.Summary),
				"icon":      map[string]any{"type": "emoji", "emoji": "💡"},
				"color":     "blue_background",
			},
		})
	}
	out = append(out,
		map[string]any{"object": "block", "type": "divider", "divider": map[string]any{}},
		map[string]any{"object": "block", "type": "bookmark", "bookmark": map[string]any{"url": rec.URL}},
	)
	return out
}

func richText(content string) []map[string]any {
	r := []rune(content)
	if len(r) > maxRichTextRunes {
		content = string(r[:maxRichTextRunes])
	}
	return []map[string]any{{"type": "text", "text": map[string]any{"content": content}}}
}

func snippet(body []byte) string {
	const maxLen = 512
	r := []rune(strings.TrimSpace(string(body)))
	if len(r) > maxLen {
		return string(r[:maxLen]) + "..."
	}
	return string(r)
}
