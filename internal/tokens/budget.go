// Package tokens counts prompt tokens and trims chat history to a budget.
package tokens

import (
	"fmt"

	"github.com/RichardoC/ollamachat/internal/models"
	"github.com/pkoukk/tiktoken-go"
)

// perMessageOverhead approximates the role and separator tokens chat
// templates add around every message.
const perMessageOverhead = 4

type Counter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads a BPE encoding such as "cl100k_base". The first load may
// fetch the vocabulary over the network.
func NewTiktoken(encoding string) (Counter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %q: %w", encoding, err)
	}
	return &tiktokenCounter{enc: enc}, nil
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Estimate is a fallback counter of roughly four characters per token.
type Estimate struct{}

func (Estimate) Count(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}

// Total is the budget cost of msgs under c.
func Total(c Counter, msgs []models.ChatMessage) int {
	total := 0
	for _, m := range msgs {
		total += c.Count(m.Content) + perMessageOverhead
	}
	return total
}

// Trim drops the oldest messages until the rest fit in budget. The newest
// message is always kept, even if it alone exceeds the budget. A budget
// of zero or less disables trimming.
func Trim(c Counter, msgs []models.ChatMessage, budget int) []models.ChatMessage {
	if budget <= 0 || len(msgs) == 0 {
		return msgs
	}

	used := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := c.Count(msgs[i].Content) + perMessageOverhead
		if used+cost > budget && i != len(msgs)-1 {
			break
		}
		used += cost
		start = i
	}
	return msgs[start:]
}
