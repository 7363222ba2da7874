package types

// TokenUsage represents token consumption statistics.
type TokenUsage struct {
	PromptTokens     int     `json:"promptTokens,omitempty" yaml:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completionTokens,omitempty" yaml:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"totalTokens,omitempty" yaml:"total_tokens,omitempty"`
	Cost             float64 `json:"cost,omitempty" yaml:"cost,omitempty"`
}

// Add adds another TokenUsage to this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.Cost += other.Cost
}

// Total returns TotalTokens, falling back to prompt+completion when the
// reporter left it empty.
func (u TokenUsage) Total() int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens + u.CompletionTokens
}

// IsZero reports whether no usage was recorded.
func (u TokenUsage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0 && u.Cost == 0
}
