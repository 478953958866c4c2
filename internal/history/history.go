// Package history persists a record of every extraction run, including
// the source text, the fields that were written, token usage, and cost.
package history

import (
	"context"
	"time"
)

// Entry is one completed extraction run.
type Entry struct {
	ID               string            `json:"id"`
	RecordID         int               `json:"record_id"`
	IsUpdate         bool              `json:"is_update"`
	OriginalText     string            `json:"original_text"`
	Fields           map[string]string `json:"fields"`
	PromptTokens     int               `json:"prompt_tokens"`
	CompletionTokens int               `json:"completion_tokens"`
	CostUSD          float64           `json:"cost_usd"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Filter specifies criteria for listing run entries.
type Filter struct {
	RecordID int `json:"record_id,omitempty"`
	Limit    int `json:"limit,omitempty"`
	Offset   int `json:"offset,omitempty"`
}

// Store defines the persistence interface for run history.
type Store interface {
	RecordRun(ctx context.Context, e Entry) (*Entry, error)
	ListRuns(ctx context.Context, filter Filter) ([]Entry, error)

	Migrate(ctx context.Context) error
	Close() error
}
