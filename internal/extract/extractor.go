// Package extract calls the text-understanding service that turns free-form
// candidate descriptions into structured fields. It is specified only at its
// boundary: text plus the known schema in, fields plus new-field proposals
// out. Everything downstream treats it as a black box.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talent-ops/intake-cli/internal/model"
	"github.com/talent-ops/intake-cli/internal/resilience"
	"github.com/talent-ops/intake-cli/pkg/anthropic"
)

// Extractor produces an ExtractionResult for one candidate description.
type Extractor interface {
	Extract(ctx context.Context, text string, knownSchema []string) (*model.ExtractionResult, error)
}

const systemPrompt = "あなたは候補者情報を構造化するアシスタントです。" +
	"提供された文章から既存のカテゴリーに該当する情報を全て抽出し、" +
	"新しい重要な情報カテゴリーがあれば提案してください。" +
	"必ず指定されたJSON形式のみで返してください。"

const userPromptTemplate = `次の文章から情報を抽出し、以下の形式のJSONのみを返してください:
{
  "fields": {
    "カテゴリー名": "値"
  },
  "new_fields": {
    "新カテゴリー名": "値"
  }
}

必須カテゴリー (情報がない場合は "%s" と記載):
%s

文章:
%s`

// LLM implements Extractor over the Anthropic client.
type LLM struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
	retry       resilience.Config
}

// Option configures the LLM extractor.
type Option func(*LLM)

// WithModel overrides the default model.
func WithModel(m string) Option {
	return func(e *LLM) {
		if m != "" {
			e.model = m
		}
	}
}

// WithTimeout bounds each extraction call.
func WithTimeout(d time.Duration) Option {
	return func(e *LLM) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.Config) Option {
	return func(e *LLM) {
		e.retry = cfg
	}
}

// NewLLM creates an extractor with sane defaults: low temperature, a 60s
// per-call deadline, and the default retry policy for transient failures.
func NewLLM(client anthropic.Client, opts ...Option) *LLM {
	e := &LLM{
		client:      client,
		model:       "claude-sonnet-4-5-20250929",
		maxTokens:   2000,
		temperature: 0.2,
		timeout:     60 * time.Second,
		retry:       resilience.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Model returns the configured model id, for cost attribution.
func (e *LLM) Model() string {
	return e.model
}

// wireResult is the JSON shape the model is asked to return.
type wireResult struct {
	Fields    map[string]string `json:"fields"`
	NewFields map[string]string `json:"new_fields"`
}

func (e *LLM) Extract(ctx context.Context, text string, knownSchema []string) (*model.ExtractionResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, eris.New("extract: empty input text")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := fmt.Sprintf(userPromptTemplate, model.NoData, strings.Join(knownSchema, "\n"), text)
	temp := e.temperature

	resp, err := resilience.DoVal(ctx, e.retry, "extract", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       e.model,
			MaxTokens:   e.maxTokens,
			System:      systemPrompt,
			Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
			Temperature: &temp,
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: call model")
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(stripFences(resp.Text())), &wire); err != nil {
		return nil, eris.Wrap(err, "extract: parse model response")
	}

	result := &model.ExtractionResult{
		Fields:            wire.Fields,
		NewFieldProposals: wire.NewFields,
		Usage: model.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		},
	}
	normalize(result, knownSchema)

	zap.L().Debug("extraction complete",
		zap.Int("fields", len(result.Fields)),
		zap.Int("new_field_proposals", len(result.NewFieldProposals)),
		zap.Int64("total_tokens", result.Usage.Total()),
	)
	return result, nil
}

// normalize enforces the collaborator contract on whatever the model
// actually returned: every known schema entry is present (sentinel when
// absent), and proposals that duplicate known columns fold into Fields
// rather than re-proposing an existing column.
func normalize(r *model.ExtractionResult, knownSchema []string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string, len(knownSchema))
	}
	known := make(map[string]struct{}, len(knownSchema))
	for _, col := range knownSchema {
		known[col] = struct{}{}
		if v, ok := r.Fields[col]; !ok || strings.TrimSpace(v) == "" {
			r.Fields[col] = model.NoData
		}
	}

	// Reserved columns can never be extracted into.
	for name := range r.Fields {
		if model.IsReservedColumn(name) {
			delete(r.Fields, name)
		}
	}

	for name, value := range r.NewFieldProposals {
		if model.IsReservedColumn(name) {
			delete(r.NewFieldProposals, name)
			continue
		}
		if _, ok := known[name]; ok {
			if !model.Informative(r.Fields[name]) && model.Informative(value) {
				r.Fields[name] = value
			}
			delete(r.NewFieldProposals, name)
		}
	}
	if len(r.NewFieldProposals) == 0 {
		r.NewFieldProposals = nil
	}
}

// stripFences removes a wrapping markdown code fence, if present, and trims
// to the outermost JSON object.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			return s[start : end+1]
		}
	}
	return s
}
