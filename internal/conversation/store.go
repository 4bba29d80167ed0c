// Package conversation holds chat conversations in memory.
package conversation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RichardoC/ollamachat/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("conversation not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrEmpty           = errors.New("conversation has no messages")
)

// Store maps conversation ids to ordered message lists. The most recently
// created conversation is listed first.
type Store struct {
	mu    sync.RWMutex
	convs map[string]*models.Conversation
	order []string
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		convs: make(map[string]*models.Conversation),
		now:   time.Now,
	}
}

// Create adds a conversation at the top of the list. Seed messages without
// an id get one.
func (s *Store) Create(title string, seed ...models.Message) models.Conversation {
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: s.now(),
		Messages:  make([]models.Message, 0, len(seed)),
	}
	for _, m := range seed {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		conv.Messages = append(conv.Messages, m)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conv.ID] = conv
	s.order = append([]string{conv.ID}, s.order...)
	return conv.Clone()
}

func (s *Store) Get(id string) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[id]
	if !ok {
		return models.Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return conv.Clone(), nil
}

// List returns copies of all conversations, newest first.
func (s *Store) List() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.convs[id].Clone())
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Append adds msg to the end of the conversation and returns it with its id.
func (s *Store) Append(convID string, msg models.Message) (models.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return msg, s.update(convID, func(c *models.Conversation) error {
		c.Messages = append(c.Messages, msg)
		return nil
	})
}

// ReplaceLast overwrites the content of the final message.
func (s *Store) ReplaceLast(convID, content string) error {
	return s.update(convID, func(c *models.Conversation) error {
		if len(c.Messages) == 0 {
			return ErrEmpty
		}
		c.Messages[len(c.Messages)-1].Content = content
		return nil
	})
}

// SetContent overwrites the content of the message with the given id.
func (s *Store) SetContent(convID, msgID, content string) error {
	return s.update(convID, func(c *models.Conversation) error {
		for i := range c.Messages {
			if c.Messages[i].ID == msgID {
				c.Messages[i].Content = content
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrMessageNotFound, msgID)
	})
}

// Remove deletes the message with the given id.
func (s *Store) Remove(convID, msgID string) error {
	return s.update(convID, func(c *models.Conversation) error {
		for i := range c.Messages {
			if c.Messages[i].ID == msgID {
				c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrMessageNotFound, msgID)
	})
}

// Truncate keeps the first n messages.
func (s *Store) Truncate(convID string, n int) error {
	return s.update(convID, func(c *models.Conversation) error {
		if n < 0 || n > len(c.Messages) {
			return fmt.Errorf("truncate to %d: conversation has %d messages", n, len(c.Messages))
		}
		c.Messages = c.Messages[:n]
		return nil
	})
}

func (s *Store) SetTitle(convID, title string) error {
	return s.update(convID, func(c *models.Conversation) error {
		c.Title = title
		return nil
	})
}

func (s *Store) update(convID string, fn func(*models.Conversation) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[convID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, convID)
	}
	return fn(conv)
}
