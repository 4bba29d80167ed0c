package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/RichardoC/ollamachat/internal/models"
	"github.com/RichardoC/ollamachat/internal/tokens"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

var ErrNoMessages = errors.New("no messages to send")

// FragmentFunc receives each streamed piece of the reply.
type FragmentFunc func(ctx context.Context, fragment string) error

type Service struct {
	model   string
	counter tokens.Counter
	budget  int
	logger  *zap.Logger
}

// New returns a service that talks to whichever Ollama server each request
// names. budget caps the prompt size in tokens; zero disables trimming.
func New(model string, counter tokens.Counter, budget int, logger *zap.Logger) *Service {
	if counter == nil {
		counter = tokens.Estimate{}
	}
	return &Service{
		model:   model,
		counter: counter,
		budget:  budget,
		logger:  logger,
	}
}

func (s *Service) DefaultModel() string {
	return s.model
}

// StreamChat sends history to the Ollama server at serverURL and calls fn for
// every chunk of the reply. An empty model selects the default.
func (s *Service) StreamChat(ctx context.Context, serverURL, model string, history []models.ChatMessage, fn FragmentFunc) error {
	if len(history) == 0 {
		return ErrNoMessages
	}
	if model == "" {
		model = s.model
	}

	trimmed := tokens.Trim(s.counter, history, s.budget)
	if dropped := len(history) - len(trimmed); dropped > 0 {
		s.logger.Info("trimmed history to fit context budget",
			zap.Int("dropped", dropped),
			zap.Int("budget", s.budget),
			zap.Int("tokens", tokens.Total(s.counter, trimmed)))
	}

	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize ollama client: %w", err)
	}

	s.logger.Debug("streaming chat",
		zap.String("server", serverURL),
		zap.String("model", model),
		zap.Int("messages", len(trimmed)))

	_, err = llm.GenerateContent(ctx, toMessageContent(trimmed),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return fn(ctx, string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to generate completion: %w", err)
	}
	return nil
}

func toMessageContent(history []models.ChatMessage) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(history))
	for _, m := range history {
		out = append(out, llms.TextParts(messageType(m.Role), m.Content))
	}
	return out
}

func messageType(role models.Role) schema.ChatMessageType {
	switch role {
	case models.RoleAssistant:
		return schema.ChatMessageTypeAI
	case models.RoleSystem:
		return schema.ChatMessageTypeSystem
	default:
		return schema.ChatMessageTypeHuman
	}
}
