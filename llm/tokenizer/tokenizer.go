package tokenizer

import (
	"strings"
	"sync"
)

// Tokenizer 是统一的 token 计数接口。
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数（含每条消息的角色开销）。
	CountMessages(messages []Message) (int, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// Message 是 tokenizer 包使用的轻量级消息结构，避免与 llm 包循环依赖。
type Message struct {
	Role    string
	Content string
}

var (
	registry   = make(map[string]Tokenizer)
	registryMu sync.RWMutex
)

// Register 为模型名（或模型名前缀）注册分词器。
func Register(model string, t Tokenizer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[model] = t
}

// lookup 先精确匹配，再取最长的前缀匹配（"gpt-4o-mini" 优先匹配 "gpt-4o" 而不是 "gpt-4"）。
func lookup(model string) (Tokenizer, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if t, ok := registry[model]; ok {
		return t, true
	}
	var (
		best    Tokenizer
		bestLen int
	)
	for prefix, t := range registry {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = t, len(prefix)
		}
	}
	return best, best != nil
}

// ForModel 返回模型对应的分词器：已注册的优先，其次 OpenAI 家族走 tiktoken，
// 其余模型使用字符估算器。
func ForModel(model string) Tokenizer {
	if t, ok := lookup(model); ok {
		return t
	}
	if _, ok := encodingFor(model); ok {
		return NewTiktokenTokenizer(model)
	}
	return NewEstimatorTokenizer(model, 0)
}

// Count 计数失败时回退到估算器，调用方无需处理错误。
func Count(t Tokenizer, text string) int {
	n, err := t.CountTokens(text)
	if err != nil {
		n, _ = NewEstimatorTokenizer("", 0).CountTokens(text)
	}
	return n
}

// EstimateUsage 为上游未返回 usage 的响应估算 prompt / completion token 数。
func EstimateUsage(model, prompt, completion string) (promptTokens, completionTokens int) {
	t := ForModel(model)
	if prompt != "" {
		n, err := t.CountMessages([]Message{{Role: "user", Content: prompt}})
		if err != nil {
			n = Count(NewEstimatorTokenizer(model, 0), prompt) + messageOverhead + replyOverhead
		}
		promptTokens = n
	}
	if completion != "" {
		completionTokens = Count(t, completion)
	}
	return promptTokens, completionTokens
}

const (
	messageOverhead = 4 // <|start|>role\n content<|end|>\n
	replyOverhead   = 3
)
