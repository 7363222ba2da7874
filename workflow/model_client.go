package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/llm/tokenizer"
	"github.com/BaSui01/crewflow/types"
)

// ExecutionOptions are passed through to the model client untouched.
type ExecutionOptions struct {
	Model       string        `json:"model,omitempty" yaml:"model"`
	MaxTokens   int           `json:"maxTokens,omitempty" yaml:"max_tokens"`
	Temperature float32       `json:"temperature,omitempty" yaml:"temperature"`
	Streaming   bool          `json:"streaming,omitempty" yaml:"streaming"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout"`
}

// PromptContext is everything a model client receives for one step.
type PromptContext struct {
	Step        Step
	Project     ProjectInfo
	AgentPrompt string
	Inputs      []ResolvedInput
	// Prompt is the assembled prompt text.
	Prompt string
}

// MissingInputs lists declared inputs that did not resolve.
func (p PromptContext) MissingInputs() []string {
	var missing []string
	for _, in := range p.Inputs {
		if in.Artifact == nil {
			missing = append(missing, in.Name)
		}
	}
	return missing
}

// ModelResult is the output of one model call.
type ModelResult struct {
	Output string
	Usage  types.TokenUsage
}

// ModelClient executes a step prompt against a model.
type ModelClient interface {
	Execute(ctx context.Context, pc PromptContext, opts ExecutionOptions) (*ModelResult, error)
}

// ModelClientFunc adapts a function to ModelClient.
type ModelClientFunc func(ctx context.Context, pc PromptContext, opts ExecutionOptions) (*ModelResult, error)

// Execute implements ModelClient.
func (f ModelClientFunc) Execute(ctx context.Context, pc PromptContext, opts ExecutionOptions) (*ModelResult, error) {
	return f(ctx, pc, opts)
}

// =============================================================================
// 🤖 ProviderClient
// =============================================================================

// ProviderClient runs prompts through an llm.Provider.
type ProviderClient struct {
	provider     llm.Provider
	limiter      *rate.Limiter
	systemPrompt string
	logger       *zap.Logger
}

// ProviderClientOption configures a ProviderClient.
type ProviderClientOption func(*ProviderClient)

// WithRateLimit limits calls to rps per second with the given burst.
// rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) ProviderClientOption {
	return func(c *ProviderClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithSystemPrompt sets a system message sent before the step prompt.
func WithSystemPrompt(prompt string) ProviderClientOption {
	return func(c *ProviderClient) {
		c.systemPrompt = prompt
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *zap.Logger) ProviderClientOption {
	return func(c *ProviderClient) {
		if logger != nil {
			c.logger = logger.With(zap.String("component", "provider_client"))
		}
	}
}

// NewProviderClient wraps provider.
func NewProviderClient(provider llm.Provider, opts ...ProviderClientOption) *ProviderClient {
	c := &ProviderClient{
		provider: provider,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute implements ModelClient.
func (c *ProviderClient) Execute(ctx context.Context, pc PromptContext, opts ExecutionOptions) (*ModelResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrRateLimited, "rate limiter wait failed").WithCause(err).WithRetryable(true)
		}
	}

	req := &llm.ChatRequest{
		TraceID:     pc.Step.ID,
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Timeout:     opts.Timeout,
		Metadata: map[string]string{
			"step_id":  pc.Step.ID,
			"agent_id": pc.Step.AgentID,
		},
	}
	if c.systemPrompt != "" {
		req.Messages = append(req.Messages, llm.Message{Role: llm.RoleSystem, Content: c.systemPrompt})
	}
	req.Messages = append(req.Messages, llm.Message{Role: llm.RoleUser, Content: pc.Prompt})

	var (
		output string
		usage  llm.ChatUsage
		err    error
	)
	if opts.Streaming {
		output, usage, err = c.stream(ctx, req)
	} else {
		output, usage, err = c.complete(ctx, req)
	}
	if err != nil {
		return nil, mapProviderError(err)
	}

	result := &ModelResult{
		Output: output,
		Usage: types.TokenUsage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		},
	}
	if result.Usage.IsZero() {
		result.Usage.PromptTokens, result.Usage.CompletionTokens = tokenizer.EstimateUsage(opts.Model, pc.Prompt, output)
		result.Usage.TotalTokens = result.Usage.PromptTokens + result.Usage.CompletionTokens
		c.logger.Debug("provider reported no usage, estimated",
			zap.String("step_id", pc.Step.ID),
			zap.Int("total_tokens", result.Usage.TotalTokens))
	}
	return result, nil
}

func (c *ProviderClient) complete(ctx context.Context, req *llm.ChatRequest) (string, llm.ChatUsage, error) {
	resp, err := c.provider.Completion(ctx, req)
	if err != nil {
		return "", llm.ChatUsage{}, err
	}
	return resp.FirstContent(), resp.Usage, nil
}

func (c *ProviderClient) stream(ctx context.Context, req *llm.ChatRequest) (string, llm.ChatUsage, error) {
	ch, err := c.provider.Stream(ctx, req)
	if err != nil {
		return "", llm.ChatUsage{}, err
	}

	var (
		sb    strings.Builder
		usage llm.ChatUsage
	)
	for chunk := range ch {
		if chunk.Err != nil {
			// 排空通道，避免发送方阻塞
			for range ch {
			}
			return "", llm.ChatUsage{}, chunk.Err
		}
		sb.WriteString(chunk.Delta.Content)
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
	}
	if err := ctx.Err(); err != nil {
		return "", llm.ChatUsage{}, err
	}
	return sb.String(), usage, nil
}

// mapProviderError converts provider failures to types.Error.
func mapProviderError(err error) error {
	var e *llm.Error
	if errors.As(err, &e) {
		code := types.ErrUpstreamError
		switch e.Code {
		case llm.ErrInvalidRequest, llm.ErrForbidden, llm.ErrQuotaExceeded:
			code = types.ErrInvalidRequest
		case llm.ErrUnauthorized:
			code = types.ErrUnauthorized
		case llm.ErrRateLimited:
			code = types.ErrRateLimited
		case llm.ErrUpstreamTimeout:
			code = types.ErrUpstreamTimeout
		case llm.ErrProviderUnavailable:
			code = types.ErrServiceUnavailable
		}
		return types.NewError(code, "model execution failed").WithCause(e).WithRetryable(e.Retryable)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrUpstreamTimeout, "model execution timed out").WithCause(err).WithRetryable(true)
	}
	return types.NewError(types.ErrModelExecution, "model execution failed").WithCause(err)
}

// =============================================================================
// 🧪 EchoClient
// =============================================================================

// EchoClient returns a deterministic placeholder instead of calling a
// model. Used for dry runs and tests.
type EchoClient struct{}

// Execute implements ModelClient.
func (EchoClient) Execute(ctx context.Context, pc PromptContext, _ ExecutionOptions) (*ModelResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", pc.Step.Action)
	fmt.Fprintf(&sb, "Step %s executed by %s (dry run).\n", pc.Step.ID, pc.Step.AgentID)
	if len(pc.Step.Outputs) > 0 {
		fmt.Fprintf(&sb, "Outputs: %s\n", strings.Join(pc.Step.Outputs, ", "))
	}
	resolved := len(pc.Inputs) - len(pc.MissingInputs())
	fmt.Fprintf(&sb, "Context artifacts: %d\n", resolved)

	output := sb.String()
	prompt, completion := tokenizer.EstimateUsage("", pc.Prompt, output)
	return &ModelResult{
		Output: output,
		Usage: types.TokenUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}
