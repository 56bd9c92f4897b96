package sink

import (
	"context"
	"time"
)

// Record is one row written to the external database.
type Record struct {
	Title       string
	Category    string
	Region      string
	Importance  int
	Relevance   int
	Keywords    []string
	MediaName   string
	PublishedAt time.Time
	URL         string
	Summary     string
	Done        bool
}

// Sink stores publication records.
type Sink interface {
	// Create writes a record and returns the external reference id.
	Create(ctx context.Context, rec Record) (string, error)
	// FindByURL returns the reference of an existing record with the given original URL.
	FindByURL(ctx context.Context, url string) (string, bool, error)
}
