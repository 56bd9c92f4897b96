package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gn-clipper/news-clipper/internal/logger"
)

// queueSender abstracts provider-specific queue senders.
type queueSender interface {
	Send(ctx context.Context, payload []byte, attrs map[string]string) error
}

// queueBroadcaster dispatches events to a cloud queue provider.
type queueBroadcaster struct {
	id       string
	typ      string
	provider string
	sender   queueSender
	log      Logger
}

// newQueueBroadcaster creates a queue broadcaster for the configured provider.
func newQueueBroadcaster(ctx context.Context, cfg Config, log Logger) (Broadcaster, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("broadcaster %q missing queue configuration", cfg.ID)
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var (
		sender queueSender
		err    error
	)

	switch cfg.Queue.Provider {
	case QueueProviderAWSSQS:
		sender, err = newAWSSQSSender(ctx, cfg.Queue.SQS, log)
	case QueueProviderAWSSNS:
		sender, err = newAWSSNSSender(ctx, cfg.Queue.SNS, log)
	case QueueProviderGCP:
		sender, err = newGCPPubSubSender(ctx, cfg.Queue.GCP, log)
	default:
		err = fmt.Errorf("queue provider %q is not supported", cfg.Queue.Provider)
	}
	if err != nil {
		return nil, err
	}

	return &queueBroadcaster{
		id:       cfg.ID,
		typ:      cfg.Type,
		provider: cfg.Queue.Provider,
		sender:   sender,
		log:      logger.Ensure(log),
	}, nil
}

func (p *queueBroadcaster) ID() string   { return p.id }
func (p *queueBroadcaster) Type() string { return p.typ }

// Broadcast forwards the event to the configured queue provider.
func (p *queueBroadcaster) Broadcast(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.sender.Send(ctx, payload, eventAttributes(evt)); err != nil {
		return fmt.Errorf("queue provider %s send failed: %w", p.provider, err)
	}
	return nil
}

// Close releases the sender's client when it holds one.
func (p *queueBroadcaster) Close() error {
	if c, ok := p.sender.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// eventAttributes are attached as message attributes so subscribers can filter.
func eventAttributes(evt Event) map[string]string {
	attrs := map[string]string{"event_type": evt.Type}
	if evt.Article != nil && evt.Article.Category != "" {
		attrs["category"] = evt.Article.Category
	}
	return attrs
}
