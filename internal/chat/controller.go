// Package chat owns the conversation list, the active conversation and the
// single in-flight generation. UIs drive it through explicit method calls and
// observe it through an Observer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/RichardoC/ollamachat/internal/conversation"
	"github.com/RichardoC/ollamachat/internal/models"
	"github.com/RichardoC/ollamachat/internal/stream"
	"go.uber.org/zap"
)

const (
	Greeting     = "Hello! I'm your AI assistant. How can I help you today?"
	WelcomeTitle = "Welcome conversation"
	NewChatTitle = "New conversation"
	titleLimit   = 30
)

var (
	ErrEmptyMessage        = errors.New("message is empty")
	ErrNotConfigured       = errors.New("ollama url is not configured")
	ErrNothingToRegenerate = errors.New("no assistant reply to regenerate")
)

// Streamer opens a streaming chat request. transport.Client implements it.
type Streamer interface {
	Stream(ctx context.Context, req models.ChatRequest) (io.ReadCloser, error)
}

// Settings is the local key-value configuration read at send time.
type Settings interface {
	OllamaURL() (string, error)
	Model() (string, error)
}

type Controller struct {
	store    *conversation.Store
	settings Settings
	streamer Streamer
	notifier Notifier
	observer Observer
	logger   *zap.Logger

	mu       sync.Mutex
	activeID string
	inflight *token
}

// token is the cancellation handle of one request. Identity matters: a
// finishing request only clears the live token if it is still its own.
type token struct {
	ctx    context.Context
	cancel context.CancelFunc
	convID string
	msgID  string
}

type Option func(*Controller)

func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController seeds store with a welcome conversation when it is empty and
// makes the newest conversation active.
func NewController(store *conversation.Store, settings Settings, streamer Streamer, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		settings: settings,
		streamer: streamer,
		notifier: NopNotifier{},
		observer: func(Event) {},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if store.Len() == 0 {
		store.Create(WelcomeTitle, models.Message{Role: models.RoleAssistant, Content: Greeting})
	}
	c.activeID = store.List()[0].ID
	return c
}

// NewChat creates a greeted conversation at the top of the list and
// activates it.
func (c *Controller) NewChat() models.Conversation {
	conv := c.store.Create(NewChatTitle, models.Message{Role: models.RoleAssistant, Content: Greeting})

	c.mu.Lock()
	c.activeID = conv.ID
	c.mu.Unlock()

	c.logger.Debug("new conversation", zap.String("conversation_id", conv.ID))
	return conv
}

func (c *Controller) Select(id string) error {
	if _, err := c.store.Get(id); err != nil {
		return err
	}
	c.mu.Lock()
	c.activeID = id
	c.mu.Unlock()
	return nil
}

func (c *Controller) Active() (models.Conversation, error) {
	c.mu.Lock()
	id := c.activeID
	c.mu.Unlock()
	return c.store.Get(id)
}

func (c *Controller) Conversations() []models.Conversation {
	return c.store.List()
}

// Generating reports whether a cancellation token is live.
func (c *Controller) Generating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

// Stop cancels the live request, if any. Once Stop returns, the message it
// was filling is not mutated again.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight == nil {
		return false
	}
	c.inflight.cancel()
	c.logger.Info("generation stopped",
		zap.String("conversation_id", c.inflight.convID),
		zap.String("message_id", c.inflight.msgID))
	c.inflight = nil
	return true
}

// Send appends a user message to the active conversation and streams the
// assistant reply into a new message. It blocks until the stream ends.
//
// With no backend URL configured nothing is mutated and no request is made.
// Cancellation via Stop or ctx is a normal end and returns nil.
func (c *Controller) Send(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}

	conv, err := c.Active()
	if err != nil {
		return err
	}

	backend, model, err := c.backend()
	if err != nil {
		return err
	}

	if !conv.HasUserMessage() {
		if err := c.store.SetTitle(conv.ID, deriveTitle(content)); err != nil {
			return err
		}
	}
	if _, err := c.store.Append(conv.ID, models.Message{Role: models.RoleUser, Content: content}); err != nil {
		return err
	}

	return c.generate(ctx, conv.ID, backend, model)
}

// Regenerate drops the trailing assistant reply of the active conversation
// and streams a new one for the user message before it.
func (c *Controller) Regenerate(ctx context.Context) error {
	conv, err := c.Active()
	if err != nil {
		return err
	}

	n := len(conv.Messages)
	if n < 2 || conv.Messages[n-1].Role != models.RoleAssistant || conv.Messages[n-2].Role != models.RoleUser {
		return ErrNothingToRegenerate
	}

	backend, model, err := c.backend()
	if err != nil {
		return err
	}

	if err := c.store.Truncate(conv.ID, n-1); err != nil {
		return err
	}
	c.logger.Debug("regenerating",
		zap.String("conversation_id", conv.ID),
		zap.String("removed_message_id", conv.Messages[n-1].ID))

	return c.generate(ctx, conv.ID, backend, model)
}

func (c *Controller) backend() (string, string, error) {
	backend, err := c.settings.OllamaURL()
	if err != nil {
		return "", "", fmt.Errorf("failed to read settings: %w", err)
	}
	if strings.TrimSpace(backend) == "" {
		c.notifier.Notify(Notice{
			Level:       LevelError,
			Title:       "Configuration required",
			Description: "Please set your Ollama URL in settings first.",
		})
		return "", "", ErrNotConfigured
	}
	model, err := c.settings.Model()
	if err != nil {
		return "", "", fmt.Errorf("failed to read settings: %w", err)
	}
	return backend, model, nil
}

// generate posts the conversation as it stands and streams the reply into a
// fresh assistant message.
func (c *Controller) generate(ctx context.Context, convID, backend, model string) error {
	conv, err := c.store.Get(convID)
	if err != nil {
		return err
	}
	req := models.ChatRequest{
		Messages:  models.ToChatMessages(conv.Messages),
		OllamaURL: backend,
		Model:     model,
	}

	reply, err := c.store.Append(convID, models.Message{Role: models.RoleAssistant})
	if err != nil {
		return err
	}

	tok := c.begin(ctx, convID, reply.ID)
	defer c.finish(tok)

	c.observer(Event{Kind: EventStarted, ConversationID: convID, Message: reply})

	body, err := c.streamer.Stream(tok.ctx, req)
	if err != nil {
		return c.fail(tok, err)
	}
	defer body.Close()

	dec := stream.NewDecoder(body)
	err = dec.Process(tok.ctx, func(fragment, accumulated string) error {
		return c.apply(tok, fragment, accumulated)
	})
	if dec.Skipped() > 0 {
		c.logger.Warn("skipped malformed stream lines",
			zap.String("conversation_id", convID),
			zap.Int("skipped", dec.Skipped()))
	}
	if err != nil {
		return c.fail(tok, err)
	}

	c.observer(Event{
		Kind:           EventDone,
		ConversationID: convID,
		Message:        models.Message{ID: reply.ID, Role: models.RoleAssistant, Content: dec.Accumulated()},
	})
	c.logger.Debug("generation complete",
		zap.String("conversation_id", convID),
		zap.Int("fragments", dec.Fragments()))
	return nil
}

// begin installs a new live token. An earlier live token is replaced, not
// cancelled.
func (c *Controller) begin(ctx context.Context, convID, msgID string) *token {
	streamCtx, cancel := context.WithCancel(ctx)
	tok := &token{ctx: streamCtx, cancel: cancel, convID: convID, msgID: msgID}

	c.mu.Lock()
	if c.inflight != nil {
		c.logger.Warn("starting a generation while another is in flight",
			zap.String("previous_conversation_id", c.inflight.convID),
			zap.String("conversation_id", convID))
	}
	c.inflight = tok
	c.mu.Unlock()
	return tok
}

func (c *Controller) finish(tok *token) {
	c.mu.Lock()
	if c.inflight == tok {
		c.inflight = nil
	}
	c.mu.Unlock()
	tok.cancel()
}

// apply writes the accumulator into the reply. The token is checked under
// the controller lock so a concurrent Stop wins cleanly.
func (c *Controller) apply(tok *token, fragment, accumulated string) error {
	c.mu.Lock()
	if err := tok.ctx.Err(); err != nil {
		c.mu.Unlock()
		return err
	}
	err := c.store.SetContent(tok.convID, tok.msgID, accumulated)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.observer(Event{
		Kind:           EventDelta,
		ConversationID: tok.convID,
		Fragment:       fragment,
		Message:        models.Message{ID: tok.msgID, Role: models.RoleAssistant, Content: accumulated},
	})
	return nil
}

// fail ends a request. Cancellation keeps the partial reply and is silent;
// anything else removes the reply and notifies.
func (c *Controller) fail(tok *token, err error) error {
	// Once the token is cancelled, whatever error the read surfaced is a
	// consequence of the cancel.
	if tok.ctx.Err() != nil {
		current, _ := c.store.Get(tok.convID)
		partial := ""
		for _, m := range current.Messages {
			if m.ID == tok.msgID {
				partial = m.Content
			}
		}
		c.observer(Event{
			Kind:           EventStopped,
			ConversationID: tok.convID,
			Message:        models.Message{ID: tok.msgID, Role: models.RoleAssistant, Content: partial},
		})
		return nil
	}

	if rmErr := c.store.Remove(tok.convID, tok.msgID); rmErr != nil {
		c.logger.Warn("failed to remove failed reply", zap.Error(rmErr))
	}
	c.logger.Error("generation failed",
		zap.String("conversation_id", tok.convID),
		zap.Error(err))
	c.notifier.Notify(Notice{
		Level:       LevelError,
		Title:       "Error",
		Description: errorDescription(err),
	})
	c.observer(Event{
		Kind:           EventFailed,
		ConversationID: tok.convID,
		Message:        models.Message{ID: tok.msgID, Role: models.RoleAssistant},
		Err:            err,
	})
	return err
}

func deriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) > titleLimit {
		runes = runes[:titleLimit]
	}
	return string(runes)
}
