package domain

import "time"

// Domain contains core models and interfaces.

// KeywordCombination describes one issue x region search configured by the operator.
type KeywordCombination struct {
	Name     string   `mapstructure:"name" yaml:"name"`
	Issues   []string `mapstructure:"issues" yaml:"issues"`
	Regions  []string `mapstructure:"regions" yaml:"regions"`
	Category string   `mapstructure:"category" yaml:"category"`
}

// RawArticle is a single record as returned by a source provider.
type RawArticle struct {
	ProviderID  string
	GUID        string
	Title       string
	Link        string
	Publisher   string
	Snippet     string
	PublishedAt time.Time
}

// CandidateArticle is a normalized article produced by one collection run.
type CandidateArticle struct {
	Fingerprint  string
	Title        string
	URL          string
	CanonicalURL string
	MediaName    string
	ProviderID   string
	Body         string
	Combination  string
	Category     string
	Query        string
	PublishedAt  time.Time
	CollectedAt  time.Time
}

// WithBody returns a copy of the article carrying the given body text.
func (a CandidateArticle) WithBody(body string) CandidateArticle {
	a.Body = body
	return a
}

// ScoreResult is the validated judgment for a single article.
type ScoreResult struct {
	Relevance  int
	Importance int
	Category   string
	Summary    string
	Keywords   []string
	Reason     string
}

// Passes reports whether the relevance meets the threshold. The bound is inclusive.
func (s ScoreResult) Passes(threshold int) bool {
	return s.Relevance >= threshold
}

// SeenRecord is the durable trace of a fingerprint in the seen-set store.
type SeenRecord struct {
	Fingerprint string    `json:"fingerprint"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Status      Status    `json:"status"`
	ExternalRef string    `json:"external_ref,omitempty"`
}
