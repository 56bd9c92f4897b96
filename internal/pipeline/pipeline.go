// Package pipeline sequences one clipping run: collect, dedup, score, then admit and
// publish in order of importance.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/gn-clipper/news-clipper/internal/admission"
	"github.com/gn-clipper/news-clipper/internal/collector"
	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/internal/logger"
	"github.com/gn-clipper/news-clipper/internal/metrics"
	"github.com/gn-clipper/news-clipper/internal/publisher"
	"github.com/gn-clipper/news-clipper/pkg/broadcast"
	"github.com/gn-clipper/news-clipper/pkg/sink"
)

// Collector gathers the candidates of one run.
type Collector interface {
	Collect(ctx context.Context, combos []domain.KeywordCombination, lookback time.Duration) ([]domain.CandidateArticle, collector.Report, error)
}

// Enricher fills in bodies for candidates with thin snippets.
type Enricher interface {
	Enrich(ctx context.Context, articles []domain.CandidateArticle) []domain.CandidateArticle
}

// Scorer judges one article.
type Scorer interface {
	Score(ctx context.Context, art domain.CandidateArticle) (domain.ScoreResult, error)
}

// Admission decides what happens to an article and claims it in the seen-set.
// Release gives back a claim whose publish was interrupted.
type Admission interface {
	Precheck(fingerprint string) (admission.Decision, error)
	Decide(art domain.CandidateArticle, score domain.ScoreResult, scoreErr error) (admission.Decision, error)
	Release(fingerprint string) (bool, error)
}

// Publisher writes claimed articles to the sink.
type Publisher interface {
	Publish(ctx context.Context, art domain.CandidateArticle, score domain.ScoreResult, reclaimed bool) (publisher.Result, error)
	Record(art domain.CandidateArticle, score domain.ScoreResult) sink.Record
}

// Broadcaster receives run events. *broadcast.Fanout satisfies it, including a nil one.
type Broadcaster interface {
	Broadcast(ctx context.Context, evt broadcast.Event) error
}

// Deps wires the run collaborators. Enricher, Broadcaster and Metrics are optional.
type Deps struct {
	Collector   Collector
	Enricher    Enricher
	Scorer      Scorer
	Admission   Admission
	Publisher   Publisher
	Broadcaster Broadcaster
	Metrics     *metrics.Metrics
	Logger      logger.Logger
}

// Options configure the runs of an Orchestrator.
type Options struct {
	Combinations []domain.KeywordCombination
	// RunTimeout bounds how long new articles are started. Zero disables the bound.
	RunTimeout time.Duration
	// MaxArticles caps how many unseen articles are scored per run; the rest are deferred.
	MaxArticles int
}

// Summary counts the outcomes of one run.
type Summary struct {
	RunID               string
	Name                string
	StartedAt           time.Time
	Duration            time.Duration
	Collected           int
	SkippedSeen         int
	Rejected            int
	Published           int
	Failed              int
	Deferred            int
	ProviderFailures    int
	CombinationFailures int
	Aborted             bool
	Err                 error
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeRejected
	outcomePublished
	outcomeFailed
)

// Orchestrator runs the pipeline against injected collaborators.
type Orchestrator struct {
	collector   Collector
	enricher    Enricher
	scorer      Scorer
	admission   Admission
	publisher   Publisher
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	log         logger.Logger
	opts        Options
	now         func() time.Time
}

// New builds an Orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Collector == nil:
		return nil, errors.New("pipeline: collector is required")
	case deps.Scorer == nil:
		return nil, errors.New("pipeline: scorer is required")
	case deps.Admission == nil:
		return nil, errors.New("pipeline: admission engine is required")
	case deps.Publisher == nil:
		return nil, errors.New("pipeline: publisher is required")
	}
	return &Orchestrator{
		collector:   deps.Collector,
		enricher:    deps.Enricher,
		scorer:      deps.Scorer,
		admission:   deps.Admission,
		publisher:   deps.Publisher,
		broadcaster: deps.Broadcaster,
		metrics:     deps.Metrics,
		log:         logger.Ensure(deps.Logger),
		opts:        opts,
		now:         time.Now,
	}, nil
}

// Run executes one batch. The returned error is non-nil only when the run aborted,
// which happens when the seen-set store fails or collection is cancelled. The summary
// is logged and broadcast in every case.
func (o *Orchestrator) Run(ctx context.Context, name string, lookback time.Duration) (Summary, error) {
	sum := Summary{RunID: uuid.NewString(), Name: name, StartedAt: o.now()}

	runCtx := ctx
	if o.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(ctx, sum.StartedAt.Add(o.opts.RunTimeout))
		defer cancel()
	}
	// In-flight calls finish and record their outcome even after the deadline.
	work := context.WithoutCancel(ctx)

	defer func() {
		sum.Duration = o.now().Sub(sum.StartedAt)
		o.finish(work, &sum)
	}()

	o.log.InfoObj("run started", "run_start", map[string]any{
		"run_id":       sum.RunID,
		"name":         name,
		"lookback":     lookback.String(),
		"combinations": len(o.opts.Combinations),
	})

	candidates, report, err := o.collector.Collect(runCtx, o.opts.Combinations, lookback)
	if err != nil {
		sum.Aborted = true
		sum.Err = fmt.Errorf("collect: %w", err)
		return sum, sum.Err
	}
	sum.Collected = len(candidates)
	sum.ProviderFailures = report.ProviderFailures
	sum.CombinationFailures = len(report.Failed)

	pending := make([]domain.CandidateArticle, 0, len(candidates))
	for i, art := range candidates {
		if runCtx.Err() != nil {
			sum.Deferred += len(candidates) - i
			break
		}
		d, err := o.admission.Precheck(art.Fingerprint)
		if err != nil {
			sum.Aborted = true
			sum.Err = fmt.Errorf("precheck %s: %w", art.Fingerprint, err)
			return sum, sum.Err
		}
		if d.Action == admission.ActionSkip {
			sum.SkippedSeen++
			continue
		}
		pending = append(pending, art)
	}

	if limit := o.opts.MaxArticles; limit > 0 && len(pending) > limit {
		sum.Deferred += len(pending) - limit
		pending = pending[:limit]
	}

	if o.enricher != nil && len(pending) > 0 && runCtx.Err() == nil {
		pending = o.enricher.Enrich(runCtx, pending)
	}

	judged := make([]judgement, 0, len(pending))
	for i, art := range pending {
		if runCtx.Err() != nil {
			sum.Deferred += len(pending) - i
			o.log.WarnObj("run deadline reached, deferring remaining articles", "run_deadline", map[string]any{
				"run_id":   sum.RunID,
				"deferred": len(pending) - i,
			})
			break
		}
		j, ok := o.score(work, art)
		if !ok {
			sum.Failed++
			continue
		}
		judged = append(judged, j)
	}

	// Most important first; failed scores carry zero importance and sort last.
	slices.SortStableFunc(judged, func(a, b judgement) int {
		return cmp.Compare(b.score.Importance, a.score.Importance)
	})

	for _, j := range judged {
		out, err := o.admit(work, sum.RunID, j)
		if err != nil {
			sum.Aborted = true
			sum.Err = err
			return sum, err
		}
		switch out {
		case outcomeSkipped:
			sum.SkippedSeen++
		case outcomeRejected:
			sum.Rejected++
		case outcomePublished:
			sum.Published++
		case outcomeFailed:
			sum.Failed++
		}
	}
	return sum, nil
}

// judgement is a scored article waiting for admission.
type judgement struct {
	art   domain.CandidateArticle
	score domain.ScoreResult
	err   error
}

// score judges one article. A scoring error is kept for admission; a panic is logged and
// reported as !ok.
func (o *Orchestrator) score(ctx context.Context, art domain.CandidateArticle) (j judgement, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.log.ErrorObj("article scoring panicked", "article_panic", map[string]any{
				"fingerprint": art.Fingerprint,
				"panic":       fmt.Sprint(r),
			})
			j, ok = judgement{}, false
		}
	}()

	started := o.now()
	res, err := o.scorer.Score(ctx, art)
	o.metrics.RecordScore(o.now().Sub(started))
	if err != nil {
		o.log.WarnObj("article scoring failed", "score_error", map[string]any{
			"fingerprint": art.Fingerprint,
			"title":       art.Title,
			"transient":   domain.IsTransient(err),
			"error":       err.Error(),
		})
	}
	return judgement{art: art, score: res, err: err}, true
}

// admit decides and publishes one scored article. Only store failures are returned; every
// other failure, panics included, is logged and counted. A panic while holding the claim
// releases it.
func (o *Orchestrator) admit(ctx context.Context, runID string, j judgement) (out outcome, err error) {
	art, score := j.art, j.score
	var claimed bool
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		o.log.ErrorObj("article processing panicked", "article_panic", map[string]any{
			"fingerprint": art.Fingerprint,
			"claimed":     claimed,
			"panic":       fmt.Sprint(r),
		})
		out, err = outcomeFailed, nil
		if !claimed {
			return
		}
		if _, relErr := o.admission.Release(art.Fingerprint); relErr != nil {
			err = fmt.Errorf("release %s: %w", art.Fingerprint, relErr)
		}
	}()

	d, err := o.admission.Decide(art, score, j.err)
	if err != nil {
		return outcomeFailed, fmt.Errorf("decide %s: %w", art.Fingerprint, err)
	}

	switch d.Action {
	case admission.ActionRetryLater:
		return outcomeFailed, nil
	case admission.ActionReject:
		o.log.DebugObj("article rejected", "reject", map[string]any{
			"fingerprint": art.Fingerprint,
			"relevance":   score.Relevance,
		})
		return outcomeRejected, nil
	case admission.ActionPublish:
		claimed = true
	default:
		return outcomeSkipped, nil
	}

	res, err := o.publisher.Publish(ctx, art, score, d.Reclaimed)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			return outcomeFailed, fmt.Errorf("publish %s: %w", art.Fingerprint, err)
		}
		return outcomeFailed, nil
	}

	o.broadcastArticle(ctx, runID, art, score, res)
	return outcomePublished, nil
}

func (o *Orchestrator) broadcastArticle(ctx context.Context, runID string, art domain.CandidateArticle, score domain.ScoreResult, res publisher.Result) {
	if o.broadcaster == nil {
		return
	}
	rec := o.publisher.Record(art, score)
	evt := broadcast.Event{
		Type:       broadcast.EventArticlePublished,
		OccurredAt: o.now().UTC(),
		RunID:      runID,
		Article: &broadcast.ArticleInfo{
			Fingerprint: art.Fingerprint,
			Title:       rec.Title,
			URL:         rec.URL,
			MediaName:   rec.MediaName,
			Category:    rec.Category,
			Region:      rec.Region,
			Relevance:   rec.Relevance,
			Importance:  rec.Importance,
			Summary:     rec.Summary,
			Keywords:    rec.Keywords,
			PublishedAt: rec.PublishedAt,
			Ref:         res.Ref,
		},
	}
	// Fanout logs its own delivery failures.
	_ = o.broadcaster.Broadcast(ctx, evt)
}

func (o *Orchestrator) finish(ctx context.Context, sum *Summary) {
	fields := map[string]any{
		"run_id":            sum.RunID,
		"name":              sum.Name,
		"collected":         sum.Collected,
		"skipped_seen":      sum.SkippedSeen,
		"rejected":          sum.Rejected,
		"published":         sum.Published,
		"failed":            sum.Failed,
		"deferred":          sum.Deferred,
		"provider_failures": sum.ProviderFailures,
		"duration":          sum.Duration.String(),
		"aborted":           sum.Aborted,
	}
	status := "ok"
	if sum.Err != nil {
		status = "aborted"
		fields["error"] = sum.Err.Error()
		o.log.ErrorObj("run aborted", "run_summary", fields)
	} else {
		o.log.InfoObj("run finished", "run_summary", fields)
	}

	o.metrics.RecordArticles("collected", sum.Collected)
	o.metrics.RecordArticles("skipped_seen", sum.SkippedSeen)
	o.metrics.RecordArticles("rejected", sum.Rejected)
	o.metrics.RecordArticles("published", sum.Published)
	o.metrics.RecordArticles("failed", sum.Failed)
	o.metrics.RecordArticles("deferred", sum.Deferred)
	o.metrics.RecordProviderFailures(sum.ProviderFailures)
	o.metrics.RecordRun(status, sum.Duration, sum.StartedAt.Add(sum.Duration))

	if o.broadcaster == nil {
		return
	}
	rs := &broadcast.RunSummary{
		Collected:        sum.Collected,
		SkippedSeen:      sum.SkippedSeen,
		Rejected:         sum.Rejected,
		Published:        sum.Published,
		Failed:           sum.Failed,
		Deferred:         sum.Deferred,
		ProviderFailures: sum.ProviderFailures,
		DurationSeconds:  sum.Duration.Seconds(),
		Aborted:          sum.Aborted,
	}
	if sum.Err != nil {
		rs.Error = sum.Err.Error()
	}
	_ = o.broadcaster.Broadcast(ctx, broadcast.Event{
		Type:       broadcast.EventRunSummary,
		OccurredAt: o.now().UTC(),
		RunID:      sum.RunID,
		Summary:    rs,
	})
}
