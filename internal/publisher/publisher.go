package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/internal/logger"
	"github.com/gn-clipper/news-clipper/internal/retry"
	"github.com/gn-clipper/news-clipper/pkg/sink"
)

// ErrPublishFailed marks a sink write that did not succeed within the retry budget.
var ErrPublishFailed = errors.New("publish failed")

// UnknownMedia is written when the article has no media name.
const UnknownMedia = "알 수 없음"

const defaultCallTimeout = 30 * time.Second

// ClaimStore is the slice of the seen-set the publisher updates.
type ClaimStore interface {
	Transition(fingerprint string, from []domain.Status, to domain.Status, externalRef string) (bool, error)
}

// Options configure a Publisher.
type Options struct {
	Regions     []Region
	Retry       retry.Policy
	CallTimeout time.Duration
}

// Result describes a successful publish.
type Result struct {
	Ref string
	// Adopted is set when an existing sink record was found instead of creating one.
	Adopted bool
}

// Publisher writes claimed articles to the sink and records the outcome.
type Publisher struct {
	sink    sink.Sink
	store   ClaimStore
	retrier *retry.Retrier
	regions []Region
	timeout time.Duration
	log     logger.Logger
}

// New builds a Publisher.
func New(s sink.Sink, store ClaimStore, opts Options, log logger.Logger) *Publisher {
	log = logger.Ensure(log)
	regions := opts.Regions
	if len(regions) == 0 {
		regions = DefaultRegions()
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Publisher{
		sink:    s,
		store:   store,
		retrier: retry.New(opts.Retry, nil, log),
		regions: regions,
		timeout: timeout,
		log:     log,
	}
}

// Publish writes art to the sink. The caller must hold the claim on art.Fingerprint.
// reclaimed indicates that an earlier attempt may already have created the record.
// Store failures are returned unwrapped so callers can match domain.ErrStoreUnavailable.
func (p *Publisher) Publish(ctx context.Context, art domain.CandidateArticle, score domain.ScoreResult, reclaimed bool) (Result, error) {
	rec := p.Record(art, score)

	var (
		res     Result
		sinkErr error
	)
	if reclaimed {
		res, sinkErr = p.adopt(ctx, rec.URL)
	}
	if sinkErr == nil && res.Ref == "" {
		// A failed Create may still have written the record, so later attempts look first.
		var uncertain bool
		sinkErr = p.retrier.Do(ctx, "publish "+art.Fingerprint, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()

			if uncertain {
				ref, found, err := p.sink.FindByURL(callCtx, rec.URL)
				if err != nil {
					return err
				}
				if found {
					res = Result{Ref: ref, Adopted: true}
					return nil
				}
			}
			ref, err := p.sink.Create(callCtx, rec)
			if err != nil {
				uncertain = true
				return err
			}
			res.Ref = ref
			return nil
		})
	}

	if sinkErr != nil {
		if _, err := p.store.Transition(art.Fingerprint, []domain.Status{domain.StatusClaimed}, domain.StatusFailed, ""); err != nil {
			return Result{}, err
		}
		p.log.ErrorObj("article publish failed", "publish_error", map[string]any{
			"fingerprint": art.Fingerprint,
			"url":         art.URL,
			"error":       sinkErr.Error(),
		})
		return Result{}, fmt.Errorf("%w: %s: %w", ErrPublishFailed, art.Fingerprint, sinkErr)
	}

	ok, err := p.store.Transition(art.Fingerprint, []domain.Status{domain.StatusClaimed}, domain.StatusPublished, res.Ref)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		p.log.WarnObj("claim changed while publishing", "publish_claim_lost", map[string]any{
			"fingerprint": art.Fingerprint,
			"ref":         res.Ref,
		})
	}

	p.log.InfoObj("article published", "publish", map[string]any{
		"fingerprint": art.Fingerprint,
		"ref":         res.Ref,
		"adopted":     res.Adopted,
		"title":       art.Title,
		"relevance":   score.Relevance,
		"importance":  score.Importance,
	})
	return res, nil
}

// adopt looks for a record written by an earlier attempt whose response was lost.
func (p *Publisher) adopt(ctx context.Context, url string) (Result, error) {
	var res Result
	err := p.retrier.Do(ctx, "find "+url, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		ref, found, err := p.sink.FindByURL(callCtx, url)
		if err != nil {
			return err
		}
		if found {
			res = Result{Ref: ref, Adopted: true}
		}
		return nil
	})
	return res, err
}

// Record maps an article and its score onto a sink record.
func (p *Publisher) Record(art domain.CandidateArticle, score domain.ScoreResult) sink.Record {
	media := strings.TrimSpace(art.MediaName)
	if media == "" {
		media = UnknownMedia
	}
	category := score.Category
	if category == "" {
		category = art.Category
	}
	importance := score.Importance
	if importance <= 0 {
		importance = 1
	}
	keywords := score.Keywords
	if len(keywords) > 5 {
		keywords = keywords[:5]
	}

	return sink.Record{
		Title:       art.Title,
		Category:    category,
		Region:      ExtractRegion(art.Title, p.regions),
		Importance:  importance,
		Relevance:   score.Relevance,
		Keywords:    keywords,
		MediaName:   media,
		PublishedAt: art.PublishedAt,
		URL:         art.URL,
		Summary:     score.Summary,
		Done:        false,
	}
}
