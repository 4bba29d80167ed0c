package models

// ChatMessage is the role/content pair sent to the relay.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages  []ChatMessage `json:"messages"`
	OllamaURL string        `json:"ollamaUrl"`
	Model     string        `json:"model,omitempty"`
}

// StreamChunk is one NDJSON line of the relay response.
type StreamChunk struct {
	Message *ChatMessage `json:"message,omitempty"`
	Done    bool         `json:"done"`
	Error   string       `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// ToChatMessages strips ids from a message history.
func ToChatMessages(msgs []Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
