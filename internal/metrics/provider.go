package metrics

import (
	"context"
	"time"

	"github.com/BaSui01/crewflow/llm"
)

// instrumentedProvider 包装 llm.Provider，记录每次请求
type instrumentedProvider struct {
	llm.Provider
	collector *Collector
}

// InstrumentProvider returns p with request metrics recorded on c.
func InstrumentProvider(p llm.Provider, c *Collector) llm.Provider {
	if c == nil {
		return p
	}
	return &instrumentedProvider{Provider: p, collector: c}
}

func (p *instrumentedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := p.Provider.Completion(ctx, req)
	if err != nil {
		p.collector.RecordLLMRequest(p.Name(), req.Model, "error", time.Since(start), 0, 0)
		return nil, err
	}
	model := req.Model
	if resp.Model != "" {
		model = resp.Model
	}
	p.collector.RecordLLMRequest(p.Name(), model, "success", time.Since(start),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}

func (p *instrumentedProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	start := time.Now()
	in, err := p.Provider.Stream(ctx, req)
	if err != nil {
		p.collector.RecordLLMRequest(p.Name(), req.Model, "error", time.Since(start), 0, 0)
		return nil, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		status := "success"
		var usage llm.ChatUsage
		for chunk := range in {
			if chunk.Err != nil {
				status = "error"
			}
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				status = "cancelled"
				// 排空上游，避免其 goroutine 阻塞
				for range in {
				}
				p.collector.RecordLLMRequest(p.Name(), req.Model, status, time.Since(start), usage.PromptTokens, usage.CompletionTokens)
				return
			}
		}
		p.collector.RecordLLMRequest(p.Name(), req.Model, status, time.Since(start), usage.PromptTokens, usage.CompletionTokens)
	}()
	return out, nil
}
