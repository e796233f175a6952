// Package llm defines the model-agnostic text generation abstraction used by the
// inference strategy. All types here are shared between the interface and adapters.
package llm

// Message represents a single turn in a conversation (role + content).
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// ChatRequest is the input for a non-streaming chat completion.
type ChatRequest struct {
	// Model overrides the provider default when non-empty.
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// ChatResponse is the output from a non-streaming chat completion.
type ChatResponse struct {
	Content    string // The assistant message text.
	StopReason string // "stop" | "length" | "error"
	Model      string // Model that actually answered (providers may fall back across models).
	Tokens     int    // Total tokens consumed (prompt + completion), 0 when unknown.
}

// ModelMeta describes the model / provider identity.
type ModelMeta struct {
	ID        string // e.g. "llama3.2:3b", "microsoft/DialoGPT-medium"
	Provider  string // e.g. "ollama", "huggingface"
	Version   string
	MaxTokens int // Maximum context window size.
}
