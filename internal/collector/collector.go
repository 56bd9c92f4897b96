package collector

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/internal/logger"
	"github.com/gn-clipper/news-clipper/pkg/providers"
)

// Options tune the normalization filters applied to fetched records.
type Options struct {
	// AllowedDomains restricts candidates to these hosts (suffix match). Empty allows all.
	AllowedDomains []string
	// KeepUndated keeps records that carry no published timestamp.
	KeepUndated bool
}

// ComboFailure is reported when every provider failed for one keyword combination.
type ComboFailure struct {
	Combination string
	Errors      []string
}

// Report summarizes one collection pass.
type Report struct {
	Fetched          int
	Duplicates       int
	OutOfWindow      int
	OffDomain        int
	Unidentifiable   int
	ProviderFailures int
	Failed           []ComboFailure
}

// Collector queries every enabled provider for every keyword combination.
type Collector struct {
	registry  providers.FetcherRegistry
	providers []providers.Provider
	opts      Options
	log       logger.Logger
	now       func() time.Time
}

// New builds a Collector over the configured providers. Disabled providers are skipped.
func New(registry providers.FetcherRegistry, cfgs []providers.Provider, opts Options, log logger.Logger) *Collector {
	enabled := make([]providers.Provider, 0, len(cfgs))
	for _, p := range cfgs {
		if p.EnabledValue() {
			enabled = append(enabled, p)
		}
	}
	return &Collector{
		registry:  registry,
		providers: enabled,
		opts:      opts,
		log:       logger.Ensure(log),
		now:       time.Now,
	}
}

// Collect returns the deduplicated candidates for all combinations, in stable order:
// combination, provider, query, then feed order. It fails only when ctx is done.
func (c *Collector) Collect(ctx context.Context, combos []domain.KeywordCombination, lookback time.Duration) ([]domain.CandidateArticle, Report, error) {
	var (
		report Report
		out    []domain.CandidateArticle
		seen   = make(map[string]struct{})
		now    = c.now().UTC()
	)

	for _, combo := range combos {
		succeeded := 0
		var failures []string

		for _, cfg := range c.providers {
			if err := ctx.Err(); err != nil {
				return out, report, err
			}

			raws, err := c.fetchProvider(ctx, cfg, combo, lookback)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return out, report, ctxErr
				}
				report.ProviderFailures++
				failures = append(failures, fmt.Sprintf("%s: %v", cfg.ID, err))
				c.log.WarnObj("provider fetch failed", "provider_error", map[string]any{
					"provider_id": cfg.ID,
					"combination": combo.Name,
					"transient":   domain.IsTransient(err),
					"error":       err.Error(),
				})
				continue
			}
			succeeded++

			for _, rq := range raws {
				report.Fetched++
				cand, reason := c.normalize(rq.raw, rq.query, combo, now, lookback)
				switch reason {
				case dropNone:
				case dropUnidentifiable:
					report.Unidentifiable++
					continue
				case dropOutOfWindow:
					report.OutOfWindow++
					continue
				case dropOffDomain:
					report.OffDomain++
					continue
				}
				if _, dup := seen[cand.Fingerprint]; dup {
					report.Duplicates++
					continue
				}
				seen[cand.Fingerprint] = struct{}{}
				out = append(out, cand)
			}
		}

		if succeeded == 0 && len(c.providers) > 0 {
			report.Failed = append(report.Failed, ComboFailure{Combination: combo.Name, Errors: failures})
			c.log.ErrorObj("all providers failed for combination", "combination_failed", map[string]any{
				"combination": combo.Name,
				"errors":      failures,
			})
		}
	}

	c.log.InfoObj("collection finished", "collect_done", map[string]any{
		"candidates":        len(out),
		"fetched":           report.Fetched,
		"duplicates":        report.Duplicates,
		"out_of_window":     report.OutOfWindow,
		"off_domain":        report.OffDomain,
		"provider_failures": report.ProviderFailures,
	})
	return out, report, nil
}

type rawWithQuery struct {
	raw   domain.RawArticle
	query string
}

// fetchProvider runs every query of one provider. A provider counts as failed only when
// all of its queries fail.
func (c *Collector) fetchProvider(ctx context.Context, cfg providers.Provider, combo domain.KeywordCombination, lookback time.Duration) ([]rawWithQuery, error) {
	fetcher, err := c.registry.FetcherFor(cfg)
	if err != nil {
		return nil, err
	}

	queries := fetcher.BuildQueries(cfg, combo, lookback)
	if len(queries) == 0 {
		return nil, nil
	}

	var (
		out  []rawWithQuery
		errs []error
	)
	for i, q := range queries {
		if i > 0 {
			if err := sleepCtx(ctx, cfg.RequestDelay()); err != nil {
				return out, err
			}
		}

		arts, err := fetcher.Fetch(ctx, cfg, q)
		if err != nil {
			errs = append(errs, fmt.Errorf("query %q: %w", q.Text, err))
			continue
		}
		c.log.DebugObj("provider query fetched", "provider_query", map[string]any{
			"provider_id": cfg.ID,
			"query":       q.Text,
			"records":     len(arts),
		})
		for _, a := range arts {
			out = append(out, rawWithQuery{raw: a, query: q.Text})
		}
	}

	if len(errs) == len(queries) {
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		c.log.WarnObj("provider query failed", "provider_query_error", map[string]any{
			"provider_id": cfg.ID,
			"error":       err.Error(),
		})
	}
	return out, nil
}

type dropReason int

const (
	dropNone dropReason = iota
	dropUnidentifiable
	dropOutOfWindow
	dropOffDomain
)

func (c *Collector) normalize(raw domain.RawArticle, query string, combo domain.KeywordCombination, now time.Time, lookback time.Duration) (domain.CandidateArticle, dropReason) {
	fp := domain.Fingerprint(raw.ProviderID, raw.Link, raw.GUID)
	if fp == "" {
		return domain.CandidateArticle{}, dropUnidentifiable
	}

	if raw.PublishedAt.IsZero() {
		if !c.opts.KeepUndated {
			return domain.CandidateArticle{}, dropOutOfWindow
		}
	} else if lookback > 0 && raw.PublishedAt.Before(now.Add(-lookback)) {
		return domain.CandidateArticle{}, dropOutOfWindow
	}

	canonical := ""
	if strings.TrimSpace(raw.Link) != "" {
		canonical = domain.CanonicalURL(raw.Link)
		if !c.allowed(canonical) {
			return domain.CandidateArticle{}, dropOffDomain
		}
	}

	return domain.CandidateArticle{
		Fingerprint:  fp,
		Title:        strings.TrimSpace(raw.Title),
		URL:          strings.TrimSpace(raw.Link),
		CanonicalURL: canonical,
		MediaName:    strings.TrimSpace(raw.Publisher),
		ProviderID:   raw.ProviderID,
		Body:         raw.Snippet,
		Combination:  combo.Name,
		Category:     combo.Category,
		Query:        query,
		PublishedAt:  raw.PublishedAt,
		CollectedAt:  now,
	}, dropNone
}

// allowed reports whether the URL host is one of the allowed domains or a subdomain of one.
func (c *Collector) allowed(link string) bool {
	if len(c.opts.AllowedDomains) == 0 {
		return true
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, d := range c.opts.AllowedDomains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
