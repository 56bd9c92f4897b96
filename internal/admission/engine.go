package admission

import (
	"errors"
	"fmt"
	"time"

	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/internal/logger"
)

// Action is the outcome of an admission check.
type Action int

const (
	// ActionContinue means the article should be scored.
	ActionContinue Action = iota
	// ActionSkip means the article is finalized or claimed elsewhere.
	ActionSkip
	// ActionPublish means the caller holds the claim and must publish.
	ActionPublish
	// ActionReject means the article was recorded as rejected.
	ActionReject
	// ActionRetryLater means nothing was recorded; a later run will see the article again.
	ActionRetryLater
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionSkip:
		return "skip"
	case ActionPublish:
		return "publish"
	case ActionReject:
		return "reject"
	case ActionRetryLater:
		return "retry_later"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision carries the action and, for publishes, whether the claim reclaimed a failed record.
type Decision struct {
	Action    Action
	Prior     domain.Status
	Reclaimed bool
}

// SeenStore is the slice of the seen-set the engine needs.
type SeenStore interface {
	GetStatus(fingerprint string) (domain.Status, error)
	Reserve(fingerprint string) (bool, error)
	Transition(fingerprint string, from []domain.Status, to domain.Status, externalRef string) (bool, error)
	ExpireClaim(fingerprint string, olderThan time.Duration) (bool, error)
}

var (
	reclaimable = []domain.Status{domain.StatusFailed, domain.StatusScored}
	rejectable  = []domain.Status{domain.StatusNone, domain.StatusFailed, domain.StatusScored}
)

// Engine applies the relevance threshold and claims fingerprints in the seen-set.
type Engine struct {
	store     SeenStore
	threshold int
	claimTTL  time.Duration
	log       logger.Logger
}

// Option tunes an Engine.
type Option func(*Engine)

// WithClaimTTL expires claims that have not moved for d; they are then reclaimed like
// failed records. Zero keeps claims until they are released.
func WithClaimTTL(d time.Duration) Option {
	return func(e *Engine) { e.claimTTL = d }
}

// NewEngine builds an Engine. The threshold is inclusive.
func NewEngine(store SeenStore, threshold int, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{store: store, threshold: threshold, log: logger.Ensure(log)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the inclusive relevance bound.
func (e *Engine) Threshold() int { return e.threshold }

// Precheck decides whether an article needs scoring at all.
func (e *Engine) Precheck(fingerprint string) (Decision, error) {
	status, err := e.status(fingerprint)
	if err != nil {
		return Decision{}, err
	}
	switch {
	case status.Final(), status == domain.StatusClaimed:
		return Decision{Action: ActionSkip, Prior: status}, nil
	default:
		return Decision{Action: ActionContinue, Prior: status}, nil
	}
}

// Decide turns a score (or scoring failure) into an action and records claims and rejections.
func (e *Engine) Decide(art domain.CandidateArticle, score domain.ScoreResult, scoreErr error) (Decision, error) {
	status, err := e.status(art.Fingerprint)
	if err != nil {
		return Decision{}, err
	}
	if status.Final() || status == domain.StatusClaimed {
		return Decision{Action: ActionSkip, Prior: status}, nil
	}

	if scoreErr != nil {
		return Decision{Action: ActionRetryLater, Prior: status}, nil
	}

	if score.Passes(e.threshold) {
		return e.claim(art, status)
	}

	ok, err := e.store.Transition(art.Fingerprint, rejectable, domain.StatusRejected, "")
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return e.lost(art, status, "reject"), nil
	}
	e.log.DebugObj("article rejected", "admission_reject", map[string]any{
		"fingerprint": art.Fingerprint,
		"relevance":   score.Relevance,
		"threshold":   e.threshold,
	})
	return Decision{Action: ActionReject, Prior: status}, nil
}

func (e *Engine) claim(art domain.CandidateArticle, status domain.Status) (Decision, error) {
	var (
		ok  bool
		err error
	)
	reclaimed := status != domain.StatusNone
	if reclaimed {
		ok, err = e.store.Transition(art.Fingerprint, reclaimable, domain.StatusClaimed, "")
	} else {
		ok, err = e.store.Reserve(art.Fingerprint)
	}
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return e.lost(art, status, "claim"), nil
	}
	return Decision{Action: ActionPublish, Prior: status, Reclaimed: reclaimed}, nil
}

// Release gives up a claim whose publish was interrupted, leaving the record failed so
// the next run reclaims it. It reports false when the claim had already moved on.
func (e *Engine) Release(fingerprint string) (bool, error) {
	ok, err := e.store.Transition(fingerprint, []domain.Status{domain.StatusClaimed}, domain.StatusFailed, "")
	if err != nil {
		return false, err
	}
	if ok {
		e.log.WarnObj("claim released", "admission_release", map[string]any{
			"fingerprint": fingerprint,
		})
	}
	return ok, nil
}

func (e *Engine) lost(art domain.CandidateArticle, status domain.Status, op string) Decision {
	e.log.InfoObj("lost admission race", "admission_race", map[string]any{
		"fingerprint": art.Fingerprint,
		"operation":   op,
		"prior":       status.String(),
	})
	return Decision{Action: ActionSkip, Prior: status}
}

func (e *Engine) status(fingerprint string) (domain.Status, error) {
	status, err := e.store.GetStatus(fingerprint)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.StatusNone, nil
	}
	if err != nil || status != domain.StatusClaimed || e.claimTTL <= 0 {
		return status, err
	}

	expired, err := e.store.ExpireClaim(fingerprint, e.claimTTL)
	if err != nil {
		return domain.StatusNone, err
	}
	if !expired {
		return status, nil
	}
	e.log.WarnObj("stale claim expired", "admission_claim_expired", map[string]any{
		"fingerprint": fingerprint,
		"claim_ttl":   e.claimTTL.String(),
	})
	return domain.StatusFailed, nil
}
