package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/gn-clipper/news-clipper/internal/logger"
)

// Event types delivered to broadcasters.
const (
	EventArticlePublished = "article_published"
	EventRunSummary       = "run_summary"
)

// Logger is the structured logger used by broadcasters.
type Logger = logger.Logger

// Event is the payload fanned out to queues and webhooks.
type Event struct {
	Type       string       `json:"type"`
	OccurredAt time.Time    `json:"occurred_at"`
	RunID      string       `json:"run_id,omitempty"`
	Article    *ArticleInfo `json:"article,omitempty"`
	Summary    *RunSummary  `json:"summary,omitempty"`
}

// ArticleInfo describes a published article.
type ArticleInfo struct {
	Fingerprint string    `json:"fingerprint"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	MediaName   string    `json:"media_name,omitempty"`
	Category    string    `json:"category"`
	Region      string    `json:"region,omitempty"`
	Relevance   int       `json:"relevance"`
	Importance  int       `json:"importance"`
	Summary     string    `json:"summary,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	PublishedAt time.Time `json:"published_at,omitzero"`
	Ref         string    `json:"ref"`
}

// RunSummary carries the counts of one pipeline run.
type RunSummary struct {
	Collected        int     `json:"collected"`
	SkippedSeen      int     `json:"skipped_seen"`
	Rejected         int     `json:"rejected"`
	Published        int     `json:"published"`
	Failed           int     `json:"failed"`
	Deferred         int     `json:"deferred"`
	ProviderFailures int     `json:"provider_failures"`
	DurationSeconds  float64 `json:"duration_seconds"`
	Aborted          bool    `json:"aborted"`
	Error            string  `json:"error,omitempty"`
}

// Broadcaster delivers events to one destination.
type Broadcaster interface {
	ID() string
	Type() string
	Broadcast(ctx context.Context, evt Event) error
}

type target struct {
	b      Broadcaster
	events []string
}

// Fanout delivers each event to every interested broadcaster.
type Fanout struct {
	targets []target
	log     Logger
}

// NewFanout wraps built broadcasters. events maps broadcaster id to the event types it
// accepts; a missing or empty entry accepts everything.
func NewFanout(bs []Broadcaster, events map[string][]string, log Logger) *Fanout {
	f := &Fanout{log: logger.Ensure(log)}
	for _, b := range bs {
		if b != nil {
			f.targets = append(f.targets, target{b: b, events: events[b.ID()]})
		}
	}
	return f
}

// Len reports the number of configured broadcasters.
func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.targets)
}

// Broadcast sends evt to every broadcaster subscribed to its type. Failures are logged and
// joined; a failing destination never blocks the others.
func (f *Fanout) Broadcast(ctx context.Context, evt Event) error {
	if f == nil {
		return nil
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	var errs []error
	for _, t := range f.targets {
		if len(t.events) > 0 && !slices.Contains(t.events, evt.Type) {
			continue
		}
		if err := t.b.Broadcast(ctx, evt); err != nil {
			f.log.WarnObj("broadcast delivery failed", "broadcast_error", map[string]any{
				"broadcaster_id": t.b.ID(),
				"type":           t.b.Type(),
				"event":          evt.Type,
				"error":          err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", t.b.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Close releases broadcasters that hold client connections.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, t := range f.targets {
		if c, ok := t.b.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
