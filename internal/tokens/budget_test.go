package tokens

import (
	"strings"
	"testing"

	"github.com/RichardoC/ollamachat/internal/models"
	"github.com/stretchr/testify/assert"
)

// words counts whitespace separated words so budgets are easy to reason about.
type words struct{}

func (words) Count(text string) int { return len(strings.Fields(text)) }

func msgs(contents ...string) []models.ChatMessage {
	out := make([]models.ChatMessage, len(contents))
	for i, c := range contents {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		out[i] = models.ChatMessage{Role: role, Content: c}
	}
	return out
}

func TestTrim_Unlimited(t *testing.T) {
	in := msgs("a b c", "d e f")
	assert.Equal(t, in, Trim(words{}, in, 0))
}

func TestTrim_DropsOldestFirst(t *testing.T) {
	// Each message costs 2 words + 4 overhead = 6.
	in := msgs("one two", "three four", "five six")

	out := Trim(words{}, in, 12)
	assert.Equal(t, in[1:], out)

	out = Trim(words{}, in, 18)
	assert.Equal(t, in, out)
}

func TestTrim_AlwaysKeepsNewest(t *testing.T) {
	in := msgs("short", strings.Repeat("word ", 100))
	out := Trim(words{}, in, 10)
	assert.Equal(t, in[1:], out)
}

func TestTotal(t *testing.T) {
	assert.Equal(t, 2*perMessageOverhead+3, Total(words{}, msgs("a b", "c")))
}

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, Estimate{}.Count(""))
	assert.Equal(t, 1, Estimate{}.Count("abcd"))
	assert.Equal(t, 2, Estimate{}.Count("abcde"))
}
