package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/RichardoC/ollamachat/internal/chat"
	"github.com/charmbracelet/lipgloss"
)

// Printer renders controller events to out and notices to errOut. It
// implements chat.Notifier; pass Observe to chat.WithObserver.
type Printer struct {
	out    io.Writer
	errOut io.Writer

	assistantStyle lipgloss.Style
	mutedStyle     lipgloss.Style
	errorStyle     lipgloss.Style
	infoStyle      lipgloss.Style
	titleStyle     lipgloss.Style

	mu      sync.Mutex
	notices int
}

func NewPrinter(out, errOut io.Writer) *Printer {
	r := lipgloss.NewRenderer(out)
	er := lipgloss.NewRenderer(errOut)
	return &Printer{
		out:            out,
		errOut:         errOut,
		assistantStyle: r.NewStyle().Foreground(lipgloss.Color("#7aa2f7")).Bold(true),
		mutedStyle:     r.NewStyle().Foreground(lipgloss.Color("#565f89")),
		titleStyle:     r.NewStyle().Foreground(lipgloss.Color("#bb9af7")).Bold(true),
		errorStyle:     er.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true),
		infoStyle:      er.NewStyle().Foreground(lipgloss.Color("#9ece6a")),
	}
}

// Observe streams the reply as it is generated.
func (p *Printer) Observe(ev chat.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case chat.EventStarted:
		fmt.Fprint(p.out, p.assistantStyle.Render("assistant> "))
	case chat.EventDelta:
		fmt.Fprint(p.out, ev.Fragment)
	case chat.EventDone:
		fmt.Fprintln(p.out)
	case chat.EventStopped:
		fmt.Fprintln(p.out, " "+p.mutedStyle.Render("[stopped]"))
	case chat.EventFailed:
		fmt.Fprintln(p.out)
	}
}

func (p *Printer) Notify(n chat.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.notices++
	style := p.infoStyle
	if n.Level == chat.LevelError {
		style = p.errorStyle
	}
	fmt.Fprintf(p.errOut, "%s %s\n", style.Render(n.Title+":"), n.Description)
}

// Notices reports how many notices were shown so far.
func (p *Printer) Notices() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notices
}

func (p *Printer) Info(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.mutedStyle.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) Title(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.titleStyle.Render(text))
}

// Message prints a stored message outside of a stream.
func (p *Printer) Message(label, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s%s\n", p.assistantStyle.Render(label+"> "), content)
}

func (p *Printer) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.errOut, "%s %v\n", p.errorStyle.Render("[Error]"), err)
}
