package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/RichardoC/ollamachat/internal/llm"
	"github.com/RichardoC/ollamachat/internal/models"
	"go.uber.org/zap"
)

// ChatStreamer is the part of llm.Service the relay needs.
type ChatStreamer interface {
	StreamChat(ctx context.Context, serverURL, model string, history []models.ChatMessage, fn llm.FragmentFunc) error
}

type Handler struct {
	llm    ChatStreamer
	logger *zap.Logger
}

func NewHandler(llmService ChatStreamer, logger *zap.Logger) *Handler {
	return &Handler{
		llm:    llmService,
		logger: logger,
	}
}

// HandleChat relays a chat request to the named Ollama server and streams the
// reply back as newline-delimited JSON.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	serverURL, err := validate(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("response writer does not support flushing")
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	started := false
	enc := json.NewEncoder(w)
	err = h.llm.StreamChat(r.Context(), serverURL, req.Model, req.Messages, func(_ context.Context, fragment string) error {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := enc.Encode(models.StreamChunk{
			Message: &models.ChatMessage{Role: models.RoleAssistant, Content: fragment},
		}); err != nil {
			return fmt.Errorf("failed to write chunk: %w", err)
		}
		flusher.Flush()
		return nil
	})

	switch {
	case err != nil && r.Context().Err() != nil:
		h.logger.Debug("client went away mid-stream",
			zap.String("ollamaUrl", serverURL),
			zap.Error(err))
	case err != nil && !started:
		h.logger.Error("Failed to reach Ollama",
			zap.String("ollamaUrl", serverURL),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	case err != nil:
		h.logger.Error("Stream failed after it started",
			zap.String("ollamaUrl", serverURL),
			zap.Error(err))
		enc.Encode(models.StreamChunk{Error: err.Error()})
		flusher.Flush()
	default:
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
		}
		enc.Encode(models.StreamChunk{Done: true})
		flusher.Flush()
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func validate(req models.ChatRequest) (string, error) {
	if len(req.Messages) == 0 {
		return "", errors.New("messages must not be empty")
	}
	for i, m := range req.Messages {
		if !m.Role.Valid() {
			return "", fmt.Errorf("messages[%d]: unknown role %q", i, m.Role)
		}
	}
	if req.OllamaURL == "" {
		return "", errors.New("ollamaUrl is required")
	}
	serverURL, err := models.NormalizeURL(req.OllamaURL)
	if err != nil {
		return "", err
	}
	return serverURL, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: msg})
}
