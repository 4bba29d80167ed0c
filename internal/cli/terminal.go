package cli

import (
	"os"
	"strings"

	"github.com/peterh/liner"
	"go.uber.org/zap"
)

// LineReader is the input side of the REPL. Terminal implements it on top
// of liner.
type LineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// Terminal provides line editing and input history persisted to a file.
type Terminal struct {
	line        *liner.State
	historyFile string
	logger      *zap.Logger
}

// NewTerminal switches the terminal into line-editing mode. An empty
// historyFile disables history persistence.
func NewTerminal(historyFile string, logger *zap.Logger) *Terminal {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	t := &Terminal{line: line, historyFile: historyFile, logger: logger}
	if historyFile != "" {
		if f, err := os.Open(historyFile); err == nil {
			if _, err := line.ReadHistory(f); err != nil {
				logger.Debug("failed to read input history", zap.Error(err))
			}
			f.Close()
		}
	}
	return t
}

func (t *Terminal) Prompt(prompt string) (string, error) {
	input, err := t.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		t.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history and restores the terminal.
func (t *Terminal) Close() error {
	if t.historyFile != "" {
		f, err := os.OpenFile(t.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			t.logger.Debug("failed to open input history", zap.Error(err))
		} else {
			if _, err := t.line.WriteHistory(f); err != nil {
				t.logger.Debug("failed to write input history", zap.Error(err))
			}
			f.Close()
		}
	}
	return t.line.Close()
}
