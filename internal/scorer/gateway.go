package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/internal/logger"
	"github.com/gn-clipper/news-clipper/internal/retry"
)

// ErrQuotaExhausted is returned once the configured daily request quota is used up.
var ErrQuotaExhausted = errors.New("scorer daily quota exhausted")

// DefaultCategories is the allowed category set.
var DefaultCategories = []string{"정당", "노동", "환경", "여성", "동물복지", "선거", "지역", "일반"}

const (
	maxKeywords      = 5
	maxBodyRunes     = 2000
	defaultRPM       = 15
	defaultCallLimit = 60 * time.Second
)

// Options configure the Gateway.
type Options struct {
	Categories        []string
	PriorityDomains   map[string]int
	RequestsPerMinute float64
	Burst             int
	RequestsPerDay    int
	CallTimeout       time.Duration
	Retry             retry.Policy
}

// Gateway turns articles into validated scores.
type Gateway struct {
	judge      Judge
	limiter    *rate.Limiter
	retrier    *retry.Retrier
	quota      *dailyQuota
	categories map[string]struct{}
	priority   map[string]int
	timeout    time.Duration
	log        logger.Logger
}

// NewGateway wraps judge with throttling, retries and validation.
func NewGateway(judge Judge, opts Options, log logger.Logger) *Gateway {
	log = logger.Ensure(log)

	rpm := opts.RequestsPerMinute
	if rpm <= 0 {
		rpm = defaultRPM
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	cats := opts.Categories
	if len(cats) == 0 {
		cats = DefaultCategories
	}
	allowed := make(map[string]struct{}, len(cats))
	for _, c := range cats {
		allowed[strings.TrimSpace(c)] = struct{}{}
	}
	priority := make(map[string]int, len(opts.PriorityDomains))
	for d, bonus := range opts.PriorityDomains {
		priority[normalizeHost(d)] = bonus
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallLimit
	}

	return &Gateway{
		judge:      judge,
		limiter:    rate.NewLimiter(rate.Limit(rpm/60.0), burst),
		retrier:    retry.New(opts.Retry, nil, log),
		quota:      newDailyQuota(opts.RequestsPerDay, time.Now),
		categories: allowed,
		priority:   priority,
		timeout:    timeout,
		log:        log,
	}
}

// Score judges one article. Transient failures are retried; malformed responses,
// quota exhaustion and other permanent errors are returned as-is.
func (g *Gateway) Score(ctx context.Context, art domain.CandidateArticle) (domain.ScoreResult, error) {
	req := Request{
		Fingerprint:  art.Fingerprint,
		Title:        art.Title,
		MediaName:    art.MediaName,
		URL:          art.URL,
		Body:         truncate(art.Body, maxBodyRunes),
		CategoryHint: art.Category,
	}

	var judgment Judgment
	err := g.retrier.Do(ctx, "score "+art.Fingerprint, func(ctx context.Context) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		if !g.quota.take() {
			return ErrQuotaExhausted
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		var err error
		judgment, err = g.judge.Judge(callCtx, req)
		return err
	})
	if err != nil {
		return domain.ScoreResult{}, err
	}

	result, err := g.parse(art, judgment.Text)
	if err != nil {
		var mErr *domain.MalformedResponseError
		if errors.As(err, &mErr) {
			g.log.WarnObj("malformed score response", "score_malformed", map[string]any{
				"fingerprint": mErr.Fingerprint,
				"snippet":     mErr.Snippet,
				"error":       mErr.Err.Error(),
			})
		}
		return domain.ScoreResult{}, err
	}

	if bonus := g.bonusFor(art.URL); bonus > 0 {
		result.Importance = min(result.Importance+bonus, 5)
	}

	g.log.DebugObj("article scored", "score", map[string]any{
		"fingerprint": art.Fingerprint,
		"relevance":   result.Relevance,
		"importance":  result.Importance,
		"category":    result.Category,
		"model":       judgment.Model,
	})
	return result, nil
}

type rawScore struct {
	Relevance  *float64        `json:"relevance_score"`
	Importance *float64        `json:"importance_score"`
	Category   *string         `json:"category"`
	Summary    string          `json:"summary"`
	OneLine    string          `json:"one_line_summary"`
	Keywords   json.RawMessage `json:"keywords"`
	Reason     string          `json:"reason"`
}

func (g *Gateway) parse(art domain.CandidateArticle, text string) (domain.ScoreResult, error) {
	fail := func(err error) (domain.ScoreResult, error) {
		return domain.ScoreResult{}, malformed(art.Fingerprint, []byte(text), err)
	}

	raw, ok := extractJSON(text)
	if !ok {
		return fail(errors.New("no JSON object in response"))
	}

	var rs rawScore
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		return fail(fmt.Errorf("decode score: %w", err))
	}

	if rs.Relevance == nil {
		return fail(errors.New("relevance_score missing"))
	}
	relevance := *rs.Relevance
	if math.IsNaN(relevance) || relevance < 0 || relevance > 100 {
		return fail(fmt.Errorf("relevance_score %v out of range [0,100]", relevance))
	}

	importance := 1.0
	if rs.Importance != nil {
		importance = *rs.Importance
	}
	if math.IsNaN(importance) || importance < 1 || importance > 5 {
		return fail(fmt.Errorf("importance_score %v out of range [1,5]", importance))
	}

	category := ""
	if rs.Category != nil {
		category = strings.TrimSpace(*rs.Category)
	}
	if category == "" {
		category = strings.TrimSpace(art.Category)
	}
	if _, ok := g.categories[category]; !ok {
		return fail(fmt.Errorf("category %q not allowed", category))
	}

	keywords, err := parseKeywords(rs.Keywords)
	if err != nil {
		return fail(err)
	}

	summary := strings.TrimSpace(rs.Summary)
	if summary == "" {
		summary = strings.TrimSpace(rs.OneLine)
	}

	return domain.ScoreResult{
		Relevance:  int(math.Round(relevance)),
		Importance: int(math.Round(importance)),
		Category:   category,
		Summary:    summary,
		Keywords:   keywords,
		Reason:     strings.TrimSpace(rs.Reason),
	}, nil
}

// parseKeywords accepts either a JSON array of strings or a comma-separated string.
func parseKeywords(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var joined string
		if err2 := json.Unmarshal(raw, &joined); err2 != nil {
			return nil, fmt.Errorf("keywords: %w", err)
		}
		list = strings.Split(joined, ",")
	}

	out := make([]string, 0, min(len(list), maxKeywords))
	seen := make(map[string]struct{}, len(list))
	for _, k := range list {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
		if len(out) == maxKeywords {
			break
		}
	}
	return out, nil
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSON pulls the JSON object out of a fenced block or the outermost braces.
func extractJSON(text string) (string, bool) {
	if m := fencedJSON.FindStringSubmatch(text); len(m) == 2 {
		return m[1], true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func (g *Gateway) bonusFor(link string) int {
	if len(g.priority) == 0 {
		return 0
	}
	u, err := url.Parse(link)
	if err != nil {
		return 0
	}
	host := normalizeHost(u.Hostname())
	for d, bonus := range g.priority {
		if host == d || strings.HasSuffix(host, "."+d) {
			return bonus
		}
	}
	return 0
}

func normalizeHost(h string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "www.")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// dailyQuota counts calls per calendar day. A zero limit disables it.
type dailyQuota struct {
	mu    sync.Mutex
	limit int
	used  int
	day   string
	now   func() time.Time
}

func newDailyQuota(limit int, now func() time.Time) *dailyQuota {
	return &dailyQuota{limit: limit, now: now}
}

func (q *dailyQuota) take() bool {
	if q.limit <= 0 {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	day := q.now().UTC().Format(time.DateOnly)
	if day != q.day {
		q.day, q.used = day, 0
	}
	if q.used >= q.limit {
		return false
	}
	q.used++
	return true
}
