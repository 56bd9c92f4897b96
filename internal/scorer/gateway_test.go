package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/internal/retry"
	"github.com/gn-clipper/news-clipper/pkg/httpclient"
)

var article = domain.CandidateArticle{
	Fingerprint: "fp-1",
	Title:       "경남 노동자 산업재해 잇따라",
	URL:         "https://www.idomin.com/news/1",
	MediaName:   "경남도민일보",
	Body:        "창원 공장에서 사고가 이어지고 있다",
	Category:    "노동",
}

var fastOptions = Options{
	RequestsPerMinute: 60000,
	Retry:             retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
}

// stubJudge returns canned texts or errors in order.
type stubJudge struct {
	replies []string
	errs    []error
	calls   int
}

func (s *stubJudge) Judge(_ context.Context, _ Request) (Judgment, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return Judgment{}, s.errs[i]
	}
	if i < len(s.replies) {
		return Judgment{Text: s.replies[i], Model: "stub"}, nil
	}
	return Judgment{Text: s.replies[len(s.replies)-1], Model: "stub"}, nil
}

func TestGatewayParse(t *testing.T) {
	tests := map[string]struct {
		text      string
		want      domain.ScoreResult
		malformed bool
	}{
		"plain json": {
			text: `{"relevance_score": 75, "importance_score": 4, "category": "노동", "summary": "요약", "keywords": ["노동","산재"], "reason": "지역 현안"}`,
			want: domain.ScoreResult{Relevance: 75, Importance: 4, Category: "노동", Summary: "요약", Keywords: []string{"노동", "산재"}, Reason: "지역 현안"},
		},
		"fenced with prose": {
			text: "평가 결과입니다.\n```json\n{\"relevance_score\": 60, \"category\": \"환경\"}\n```\n끝",
			want: domain.ScoreResult{Relevance: 60, Importance: 1, Category: "환경"},
		},
		"missing category uses hint": {
			text: `{"relevance_score": 10, "importance_score": 2}`,
			want: domain.ScoreResult{Relevance: 10, Importance: 2, Category: "노동"},
		},
		"keywords as string are capped": {
			text: `{"relevance_score": 90, "category": "노동", "keywords": "a, b, a, c, d, e, f", "one_line_summary": "한 줄"}`,
			want: domain.ScoreResult{Relevance: 90, Importance: 1, Category: "노동", Summary: "한 줄", Keywords: []string{"a", "b", "c", "d", "e"}},
		},
		"relevance out of range":  {text: `{"relevance_score": 140, "category": "노동"}`, malformed: true},
		"relevance missing":       {text: `{"importance_score": 3, "category": "노동"}`, malformed: true},
		"importance out of range": {text: `{"relevance_score": 50, "importance_score": 9}`, malformed: true},
		"unknown category":        {text: `{"relevance_score": 50, "category": "스포츠"}`, malformed: true},
		"not json":                {text: `관련성이 높습니다`, malformed: true},
		"relevance as string":     {text: `{"relevance_score": "high"}`, malformed: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			g := NewGateway(&stubJudge{replies: []string{tt.text}}, fastOptions, nil)

			got, err := g.Score(context.Background(), article)
			if tt.malformed {
				var mErr *domain.MalformedResponseError
				require.True(t, errors.As(err, &mErr), "got %v", err)
				assert.Equal(t, "fp-1", mErr.Fingerprint)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGatewayRetriesTransient(t *testing.T) {
	judge := &stubJudge{
		errs:    []error{domain.Transient(errors.New("429")), nil},
		replies: []string{"", `{"relevance_score": 70, "category": "노동"}`},
	}
	g := NewGateway(judge, fastOptions, nil)

	got, err := g.Score(context.Background(), article)
	require.NoError(t, err)
	assert.Equal(t, 70, got.Relevance)
	assert.Equal(t, 2, judge.calls)
}

func TestGatewayDoesNotRetryMalformed(t *testing.T) {
	judge := &stubJudge{replies: []string{`{"relevance_score": -1}`}}
	g := NewGateway(judge, fastOptions, nil)

	_, err := g.Score(context.Background(), article)
	require.Error(t, err)
	assert.Equal(t, 1, judge.calls)
}

func TestGatewayExhaustsRetries(t *testing.T) {
	transient := domain.Transient(errors.New("503"))
	judge := &stubJudge{errs: []error{transient, transient, transient}, replies: []string{""}}
	g := NewGateway(judge, fastOptions, nil)

	_, err := g.Score(context.Background(), article)
	require.ErrorContains(t, err, "failed after 3 attempts")
	assert.Equal(t, 3, judge.calls)
}

func TestGatewayDailyQuota(t *testing.T) {
	opts := fastOptions
	opts.RequestsPerDay = 1
	judge := &stubJudge{replies: []string{`{"relevance_score": 70, "category": "노동"}`}}
	g := NewGateway(judge, opts, nil)

	_, err := g.Score(context.Background(), article)
	require.NoError(t, err)

	_, err = g.Score(context.Background(), article)
	require.ErrorIs(t, err, ErrQuotaExhausted)
	assert.Equal(t, 1, judge.calls)
}

func TestDailyQuotaResetsEachDay(t *testing.T) {
	day := time.Date(2026, 10, 14, 23, 0, 0, 0, time.UTC)
	q := newDailyQuota(1, func() time.Time { return day })

	assert.True(t, q.take())
	assert.False(t, q.take())

	day = day.Add(2 * time.Hour)
	assert.True(t, q.take())
}

func TestGatewayPriorityBonus(t *testing.T) {
	opts := fastOptions
	opts.PriorityDomains = map[string]int{"idomin.com": 2}
	judge := &stubJudge{replies: []string{`{"relevance_score": 70, "importance_score": 4, "category": "노동"}`}}

	got, err := NewGateway(judge, opts, nil).Score(context.Background(), article)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Importance, "bonus is capped at 5")

	other := article
	other.URL = "https://www.knnews.co.kr/1"
	got, err = NewGateway(judge, opts, nil).Score(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Importance)
}

func TestGeminiJudge(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-goog-api-key"))

		var body geminiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "application/json", body.GenerationConfig.ResponseMimeType)
		assert.InDelta(t, 0.3, body.GenerationConfig.Temperature, 0.001)
		if !assert.Len(t, body.Contents, 1) {
			return
		}
		assert.Contains(t, body.Contents[0].Parts[0].Text, "경남 노동자 산업재해 잇따라")
		assert.Contains(t, body.Contents[0].Parts[0].Text, "카테고리 힌트: 노동")

		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"relevance_score\": 60,"},{"text":" \"category\": \"노동\"}"}]}}]}`))
	}))
	defer srv.Close()

	judge, err := NewGeminiJudge(httpclient.NewRestyClient(2*time.Second), GeminiOptions{
		Endpoint:    srv.URL + "/",
		Model:       "gemini-test",
		APIKey:      "key",
		Temperature: 0.3,
	})
	require.NoError(t, err)

	got, err := NewGateway(judge, fastOptions, nil).Score(context.Background(), article)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Relevance)
	assert.Equal(t, int32(2), calls.Load(), "429 is retried")
}

func TestGeminiJudgeErrors(t *testing.T) {
	tests := map[string]struct {
		status    int
		body      string
		transient bool
		malformed bool
	}{
		"server error":    {status: http.StatusInternalServerError, transient: true},
		"bad request":     {status: http.StatusBadRequest},
		"no candidates":   {status: http.StatusOK, body: `{"candidates":[]}`, malformed: true},
		"empty content":   {status: http.StatusOK, body: `{"candidates":[{"content":{"parts":[]}}]}`, malformed: true},
		"broken envelope": {status: http.StatusOK, body: `{"candidates":`, malformed: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			judge, err := NewGeminiJudge(httpclient.NewRestyClient(2*time.Second), GeminiOptions{Endpoint: srv.URL, APIKey: "key"})
			require.NoError(t, err)

			_, err = judge.Judge(context.Background(), Request{Fingerprint: "fp"})
			require.Error(t, err)
			assert.Equal(t, tt.transient, domain.IsTransient(err))
			var mErr *domain.MalformedResponseError
			assert.Equal(t, tt.malformed, errors.As(err, &mErr))
		})
	}
}

func TestNewGeminiJudgeRequiresKey(t *testing.T) {
	_, err := NewGeminiJudge(httpclient.NewRestyClient(time.Second), GeminiOptions{})
	require.Error(t, err)
}
