// Package openaicompat implements llm.Provider for any service speaking the
// OpenAI Chat Completions protocol (OpenAI, DeepSeek, Qwen, GLM, a local
// vLLM or Ollama gateway, ...).
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "deepseek",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://api.deepseek.com",
//	    DefaultModel: "deepseek-chat",
//	}, logger)
package openaicompat
