// Package llm provides agents backed by large language models.
//
// Currently supports:
//   - anthropic: Claude through the Messages API
//   - openai: any OpenAI-compatible chat completions endpoint, such as a
//     local LM Studio, Ollama or vLLM server
//
// The package itself holds the helpers both kinds share.
package llm
