package model

// ExtractionResult is what the text-understanding collaborator returns for a
// single candidate description. Fields covers every known schema column
// (with the NoData sentinel where the text was silent); NewFieldProposals
// holds information the model found that fits no existing column.
type ExtractionResult struct {
	Fields            map[string]string `json:"fields"`
	NewFieldProposals map[string]string `json:"new_fields"`
	Usage             TokenUsage        `json:"usage"`
}

// TokenUsage tracks token consumption for one extraction call. The workflow
// treats it as opaque accounting; internal/cost turns it into dollars.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// Total returns the combined token count.
func (u TokenUsage) Total() int64 {
	return u.PromptTokens + u.CompletionTokens
}

// Add accumulates another usage into u.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
	}
}
