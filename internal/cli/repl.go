// Package cli is the terminal front end: an interactive REPL over
// chat.Controller plus the cobra commands that launch it.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/RichardoC/ollamachat/internal/chat"
	"github.com/RichardoC/ollamachat/internal/models"
	"github.com/atotto/clipboard"
	"github.com/peterh/liner"
	"go.uber.org/zap"
)

const prompt = "you> "

const helpText = `Commands:
  /new             start a new conversation
  /list            list conversations
  /switch <n>      switch to conversation n from /list
  /regen           regenerate the last reply
  /stop            stop the reply being generated
  /copy            copy the last reply to the clipboard
  /settings [url]  show settings, or set the Ollama URL
  /model [name]    show or set the model
  /help            show this help
  /quit            exit
Ctrl+C stops a reply while it is generating.`

// SettingsStore is the persisted configuration the REPL reads and edits.
// db.Database implements it.
type SettingsStore interface {
	chat.Settings
	SetOllamaURL(raw string) error
	SetModel(model string) error
}

type REPL struct {
	ctrl       *chat.Controller
	settings   SettingsStore
	in         LineReader
	printer    *Printer
	copyText   func(string) error
	interrupts <-chan os.Signal
	logger     *zap.Logger
}

type Option func(*REPL)

// WithClipboard replaces the system clipboard.
func WithClipboard(fn func(string) error) Option {
	return func(r *REPL) {
		r.copyText = fn
	}
}

// WithInterrupts makes every signal received on ch stop the current reply.
func WithInterrupts(ch <-chan os.Signal) Option {
	return func(r *REPL) {
		r.interrupts = ch
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *REPL) {
		r.logger = logger
	}
}

func NewREPL(ctrl *chat.Controller, settings SettingsStore, in LineReader, printer *Printer, opts ...Option) *REPL {
	r := &REPL{
		ctrl:     ctrl,
		settings: settings,
		in:       in,
		printer:  printer,
		copyText: clipboard.WriteAll,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads lines until /quit, EOF, Ctrl+C at the prompt or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	if r.interrupts != nil {
		done := make(chan struct{})
		defer close(done)
		go r.watchInterrupts(done)
	}

	r.printer.Title("ollamachat - type /help for commands")
	if conv, err := r.ctrl.Active(); err == nil {
		r.showConversation(conv)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		input, err := r.in.Prompt(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := r.command(ctx, input)
			if err != nil {
				r.printer.Error(err)
			}
			if quit {
				return nil
			}
			continue
		}

		notices := r.printer.Notices()
		r.report(r.ctrl.Send(ctx, input), notices)
	}
}

func (r *REPL) watchInterrupts(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-r.interrupts:
			if r.ctrl.Stop() {
				r.logger.Debug("reply stopped by interrupt")
			}
		}
	}
}

// report prints err unless the controller already surfaced it as a notice.
func (r *REPL) report(err error, noticesBefore int) {
	if err == nil {
		return
	}
	if r.printer.Notices() > noticesBefore {
		return
	}
	r.printer.Error(err)
}

func (r *REPL) command(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help", "/h":
		r.printer.Info("%s", helpText)

	case "/new":
		conv := r.ctrl.NewChat()
		r.showConversation(conv)

	case "/list":
		r.list()

	case "/switch":
		if len(args) != 1 {
			return false, errors.New("usage: /switch <n>")
		}
		return false, r.switchTo(args[0])

	case "/regen":
		notices := r.printer.Notices()
		err := r.ctrl.Regenerate(ctx)
		if errors.Is(err, chat.ErrNothingToRegenerate) {
			return false, err
		}
		r.report(err, notices)

	case "/stop":
		if !r.ctrl.Stop() {
			r.printer.Info("Nothing is generating.")
		}

	case "/copy":
		return false, r.copyLast()

	case "/settings":
		if len(args) == 0 {
			return false, showSettings(r.printer, r.settings)
		}
		if err := r.settings.SetOllamaURL(args[0]); err != nil {
			return false, err
		}
		r.printer.Notify(chat.Notice{Level: chat.LevelInfo, Title: "Settings saved", Description: "Ollama URL updated."})

	case "/model":
		if len(args) == 0 {
			return false, showSettings(r.printer, r.settings)
		}
		if err := r.settings.SetModel(args[0]); err != nil {
			return false, err
		}
		r.printer.Notify(chat.Notice{Level: chat.LevelInfo, Title: "Settings saved", Description: "Model updated."})

	default:
		return false, fmt.Errorf("unknown command %s, type /help", fields[0])
	}
	return false, nil
}

func (r *REPL) list() {
	active, _ := r.ctrl.Active()
	for i, conv := range r.ctrl.Conversations() {
		marker := " "
		if conv.ID == active.ID {
			marker = "*"
		}
		r.printer.Info("%s %d. %s (%d messages, %s)",
			marker, i+1, conv.Title, len(conv.Messages), conv.CreatedAt.Format(time.DateTime))
	}
}

func (r *REPL) switchTo(arg string) error {
	n, err := strconv.Atoi(arg)
	convs := r.ctrl.Conversations()
	if err != nil || n < 1 || n > len(convs) {
		return fmt.Errorf("no conversation %q, see /list", arg)
	}
	if err := r.ctrl.Select(convs[n-1].ID); err != nil {
		return err
	}
	r.showConversation(convs[n-1])
	return nil
}

func (r *REPL) copyLast() error {
	conv, err := r.ctrl.Active()
	if err != nil {
		return err
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		m := conv.Messages[i]
		if m.Role != models.RoleAssistant || m.Content == "" {
			continue
		}
		if err := r.copyText(m.Content); err != nil {
			return fmt.Errorf("failed to copy to clipboard: %w", err)
		}
		r.printer.Notify(chat.Notice{Level: chat.LevelInfo, Title: "Copied", Description: "Message copied to clipboard"})
		return nil
	}
	return errors.New("no reply to copy")
}

func showSettings(printer *Printer, settings chat.Settings) error {
	url, err := settings.OllamaURL()
	if err != nil {
		return err
	}
	model, err := settings.Model()
	if err != nil {
		return err
	}
	if url == "" {
		url = "(not set)"
	}
	if model == "" {
		model = "(relay default)"
	}
	printer.Info("Ollama URL: %s", url)
	printer.Info("Model:      %s", model)
	return nil
}

func (r *REPL) showConversation(conv models.Conversation) {
	r.printer.Title(conv.Title)
	for _, m := range conv.Messages {
		r.printer.Message(string(m.Role), m.Content)
	}
}
