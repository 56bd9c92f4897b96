package enrich

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/internal/logger"
	"github.com/gn-clipper/news-clipper/pkg/httpclient"
)

const (
	maxHTMLBodyBytes  = 1 << 20 // 1 MiB
	defaultWorkers    = 4
	defaultMinRunes   = 80
	maxDescriptionLen = 1000
)

// Options configure the Scraper.
type Options struct {
	// MinBodyRunes is the snippet length below which a page is scraped.
	MinBodyRunes int
	Workers      int
	// Delay spaces out page fetches across all workers.
	Delay   time.Duration
	Headers map[string]string
}

// Scraper fills in short article bodies from the page's description metadata.
type Scraper struct {
	client httpclient.Client
	opts   Options
	log    logger.Logger
}

// NewScraper creates a new Scraper with the given HTTP client and logger.
func NewScraper(client httpclient.Client, opts Options, log logger.Logger) *Scraper {
	if client == nil {
		client = httpclient.NewRestyClient(10 * time.Second)
	}
	if opts.MinBodyRunes <= 0 {
		opts.MinBodyRunes = defaultMinRunes
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &Scraper{client: client, opts: opts, log: logger.Ensure(log)}
}

// Enrich returns copies of articles whose short bodies were replaced by page metadata.
// Articles that need nothing, or whose scrape fails, are returned unchanged.
func (s *Scraper) Enrich(ctx context.Context, articles []domain.CandidateArticle) []domain.CandidateArticle {
	out := make([]domain.CandidateArticle, len(articles))
	copy(out, articles) // default to originals so partial results are returned on cancel

	var pending []int
	for i, art := range articles {
		if s.needsBody(art) {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return out
	}

	var limiter <-chan time.Time
	if s.opts.Delay > 0 {
		ticker := time.NewTicker(s.opts.Delay)
		defer ticker.Stop()
		limiter = ticker.C
	}

	jobCh := make(chan int)
	var wg sync.WaitGroup

	for workerID := range min(len(pending), s.opts.Workers) {
		wg.Add(1)
		go s.worker(ctx, articles, limiter, jobCh, out, &wg, workerID)
	}

	for _, idx := range pending {
		if ctx.Err() != nil {
			break
		}
		jobCh <- idx
	}
	close(jobCh)

	wg.Wait()

	return out
}

func (s *Scraper) needsBody(art domain.CandidateArticle) bool {
	return art.URL != "" && utf8.RuneCountInString(strings.TrimSpace(art.Body)) < s.opts.MinBodyRunes
}

// worker processes articles from the job channel, respecting the rate limiter.
func (s *Scraper) worker(
	ctx context.Context,
	articles []domain.CandidateArticle,
	limiter <-chan time.Time,
	jobCh <-chan int,
	out []domain.CandidateArticle,
	wg *sync.WaitGroup,
	workerID int,
) {
	defer wg.Done()

	for idx := range jobCh {
		if ctx.Err() != nil {
			continue
		}

		if limiter != nil {
			select {
			case <-ctx.Done():
				continue
			case <-limiter:
			}
		}

		art := articles[idx]
		desc, err := s.fetchDescription(ctx, art, workerID)
		if err != nil {
			s.log.WarnObj("article metadata scrape failed", "enrich_error", map[string]any{
				"worker_id":   workerID,
				"fingerprint": art.Fingerprint,
				"url":         art.URL,
				"error":       err.Error(),
			})
			continue
		}
		if utf8.RuneCountInString(desc) > utf8.RuneCountInString(strings.TrimSpace(art.Body)) {
			out[idx] = art.WithBody(desc)
		}
	}
}

// fetchDescription fetches the article HTML and extracts its description.
func (s *Scraper) fetchDescription(ctx context.Context, art domain.CandidateArticle, workerID int) (string, error) {
	s.log.DebugObj("scraping article metadata", "enrich_start", map[string]any{
		"worker_id":   workerID,
		"fingerprint": art.Fingerprint,
		"url":         art.URL,
	})

	resp, err := s.client.Get(ctx, art.URL, s.opts.Headers)
	if err != nil {
		return "", fmt.Errorf("http fetch: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		snippet := strings.TrimSpace(string(resp.Body()))
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return "", fmt.Errorf("status %d body: %s", resp.StatusCode(), snippet)
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		s.log.InfoObj("html body truncated", "truncation", map[string]any{
			"worker_id": workerID,
			"url":       art.URL,
			"original":  len(body),
			"kept":      maxHTMLBodyBytes,
		})
		body = body[:maxHTMLBodyBytes]
	}

	meta, err := parseMeta(body)
	if err != nil {
		return "", err
	}
	desc := meta.Description
	if r := []rune(desc); len(r) > maxDescriptionLen {
		desc = string(r[:maxDescriptionLen])
	}
	return desc, nil
}

// pageMeta holds metadata extracted from an HTML page.
type pageMeta struct {
	Title       string
	Description string
}

// parseMeta extracts page metadata from the HTML body.
func parseMeta(body []byte) (pageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageMeta{}, fmt.Errorf("parse html: %w", err)
	}

	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	return pageMeta{
		Title: firstNonEmpty(
			extract(`meta[property="og:title"]`),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		Description: firstNonEmpty(
			extract(`meta[property="og:description"]`),
			extract(`meta[name="description"]`),
			extract(`meta[name="twitter:description"]`),
		),
	}, nil
}

// firstNonEmpty returns the first non-empty string from the given values.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
