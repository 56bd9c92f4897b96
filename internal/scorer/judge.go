package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/pkg/httpclient"
)

const (
	defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultModel    = "gemini-2.0-flash"
	apiKeyHeader    = "x-goog-api-key"
)

// Request is the article view sent to the judgment service.
type Request struct {
	Fingerprint  string
	Title        string
	MediaName    string
	URL          string
	Body         string
	CategoryHint string
}

// Judgment is the raw text produced by the judgment service.
type Judgment struct {
	Text  string
	Model string
}

// Judge performs one relevance judgment call.
type Judge interface {
	Judge(ctx context.Context, req Request) (Judgment, error)
}

// GeminiOptions configure the Gemini generateContent client.
type GeminiOptions struct {
	Endpoint        string
	Model           string
	APIKey          string
	Instructions    string
	Temperature     float64
	MaxOutputTokens int
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

// GeminiJudge calls the Gemini generateContent endpoint.
type GeminiJudge struct {
	client httpclient.Client
	opts   GeminiOptions
}

// NewGeminiJudge builds a Judge backed by Gemini.
func NewGeminiJudge(client httpclient.Client, opts GeminiOptions) (*GeminiJudge, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is empty")
	}
	if client == nil {
		return nil, errors.New("gemini judge requires an http client")
	}
	opts.Endpoint = strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = defaultModel
	}
	if strings.TrimSpace(opts.Instructions) == "" {
		opts.Instructions = DefaultInstructions
	}
	return &GeminiJudge{client: client, opts: opts}, nil
}

// Judge sends the article and returns the model text of the first candidate.
func (g *GeminiJudge) Judge(ctx context.Context, req Request) (Judgment, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: g.opts.Instructions + "\n\n---\n\n" + buildUserMessage(req)}},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      g.opts.Temperature,
			MaxOutputTokens:  g.opts.MaxOutputTokens,
			ResponseMimeType: "application/json",
		},
	}

	url := fmt.Sprintf("%s/%s:generateContent", g.opts.Endpoint, g.opts.Model)
	resp, err := g.client.PostJSON(ctx, url, map[string]string{apiKeyHeader: g.opts.APIKey}, payload)
	if err != nil {
		return Judgment{}, domain.Transient(fmt.Errorf("gemini request: %w", err))
	}

	body := resp.Body()
	if code := resp.StatusCode(); code != http.StatusOK {
		statusErr := fmt.Errorf("gemini returned status %d body: %s", code, snippet(body))
		if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return Judgment{}, domain.Transient(statusErr)
		}
		return Judgment{}, statusErr
	}

	var decoded geminiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Judgment{}, malformed(req.Fingerprint, body, fmt.Errorf("decode gemini envelope: %w", err))
	}
	if len(decoded.Candidates) == 0 {
		return Judgment{}, malformed(req.Fingerprint, body, errors.New("no candidates in response"))
	}

	var text strings.Builder
	for _, part := range decoded.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return Judgment{}, malformed(req.Fingerprint, body, errors.New("empty candidate content"))
	}

	return Judgment{Text: text.String(), Model: g.opts.Model}, nil
}

func buildUserMessage(req Request) string {
	orNone := func(s, fallback string) string {
		if strings.TrimSpace(s) == "" {
			return fallback
		}
		return s
	}

	var b strings.Builder
	b.WriteString("다음 뉴스를 평가해주세요.\n\n## 뉴스 정보\n")
	fmt.Fprintf(&b, "- 제목: %s\n", req.Title)
	fmt.Fprintf(&b, "- 언론사: %s\n", orNone(req.MediaName, "(알 수 없음)"))
	fmt.Fprintf(&b, "- 링크: %s\n", req.URL)
	fmt.Fprintf(&b, "- 내용: %s\n", orNone(req.Body, "(내용 없음)"))
	fmt.Fprintf(&b, "- 카테고리 힌트: %s\n", orNone(req.CategoryHint, "(없음)"))
	b.WriteString("\n## 요청\n위 뉴스의 관련성과 중요도를 평가하고, JSON 형식으로 응답해주세요.")
	return b.String()
}

// DefaultInstructions is the evaluation prompt used when no instructions file is configured.
const DefaultInstructions = `당신은 경상남도 지역 정당 활동가를 위한 뉴스 큐레이터입니다.
주어진 뉴스가 정당, 노동, 환경, 여성, 동물복지, 선거, 지역 현안과 얼마나 관련되는지 평가하세요.

평가 기준:
- relevance_score (0-100): 경남 지역과 해당 이슈에 대한 관련성. 단순 언급이나 광고성 기사는 낮게 평가합니다.
- importance_score (1-5): 활동가가 즉시 대응하거나 알아야 할 필요성. 5가 가장 긴급합니다.
- category: 정당, 노동, 환경, 여성, 동물복지, 선거, 지역, 일반 중 하나.
- summary: 한 줄 요약 (60자 이내).
- keywords: 핵심 키워드 최대 5개.
- reason: 평가 근거 한 문장.

반드시 다음 JSON 형식으로만 응답하세요:
{"relevance_score": 0, "importance_score": 1, "category": "일반", "summary": "", "keywords": [], "reason": ""}`

func snippet(body []byte) string {
	const maxLen = 512
	r := []rune(strings.TrimSpace(string(body)))
	if len(r) > maxLen {
		return string(r[:maxLen]) + "..."
	}
	return string(r)
}

func malformed(fingerprint string, body []byte, err error) error {
	return &domain.MalformedResponseError{
		Source:      "scorer",
		Fingerprint: fingerprint,
		Snippet:     snippet(body),
		Err:         err,
	}
}
