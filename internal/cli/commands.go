package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/RichardoC/ollamachat/internal/chat"
	"github.com/RichardoC/ollamachat/internal/config"
	"github.com/RichardoC/ollamachat/internal/conversation"
	"github.com/RichardoC/ollamachat/internal/db"
	"github.com/RichardoC/ollamachat/internal/logging"
	"github.com/RichardoC/ollamachat/internal/transport"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrReported means the failure was already shown to the user.
var ErrReported = errors.New("error already reported")

type flags struct {
	configPath string
	relayURL   string
	dbPath     string
	debug      bool
}

// app is what every command needs: resolved config, a logger and the
// settings database.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	settings *db.Database
}

func (f *flags) open() (*app, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.relayURL != "" {
		cfg.Client.RelayURL = f.relayURL
	}
	if f.dbPath != "" {
		cfg.Client.DBPath = f.dbPath
	}

	// Log lines would interleave with the REPL, so the client is quiet
	// unless asked.
	logger := zap.NewNop()
	if f.debug {
		if logger, err = logging.New("debug", true); err != nil {
			return nil, err
		}
	}

	settings, err := db.New(cfg.Client.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}
	return &app{cfg: cfg, logger: logger, settings: settings}, nil
}

func (a *app) close() error {
	// Sync reports EINVAL on terminals.
	_ = a.logger.Sync()
	return a.settings.Close()
}

func (a *app) controller(printer *Printer) *chat.Controller {
	client := transport.New(a.cfg.Client.RelayURL, transport.WithLogger(a.logger))
	return chat.NewController(conversation.NewStore(), a.settings, client,
		chat.WithNotifier(printer),
		chat.WithObserver(printer.Observe),
		chat.WithLogger(a.logger))
}

// run opens the app around fn and closes it afterwards.
func (f *flags) run(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := f.open()
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, a.close())
		}()
		return fn(cmd, args, a)
	}
}

// NewRootCommand builds the chat command tree. Without a subcommand it
// starts the interactive REPL.
func NewRootCommand() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "ollamachat",
		Short: "Chat with an Ollama model through the relay",
		Long: `ollamachat streams replies from an Ollama model through the relay server.

Examples:
  ollamachat                                   Start interactive chat
  ollamachat ask "What is Go?"                 Send a single message
  ollamachat settings set-url http://localhost:11434
  ollamachat --relay http://host:8100/api/chat Use another relay`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          f.run(runREPL),
	}

	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "path to a config file")
	root.PersistentFlags().StringVar(&f.relayURL, "relay", "", "relay endpoint (overrides client.relay_url)")
	root.PersistentFlags().StringVar(&f.dbPath, "db", "", "settings database path (overrides client.db_path)")
	root.PersistentFlags().BoolVarP(&f.debug, "debug", "d", false, "log debug output to stderr")

	root.AddCommand(newAskCommand(f), newSettingsCommand(f))
	return root
}

func runREPL(cmd *cobra.Command, _ []string, a *app) error {
	printer := NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctrl := a.controller(printer)

	term := NewTerminal(historyPath(), a.logger)
	defer term.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	repl := NewREPL(ctrl, a.settings, term, printer,
		WithInterrupts(sigs),
		WithLogger(a.logger))
	return repl.Run(cmd.Context())
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ollamachat_history")
}

func newAskCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message and print the streamed reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: f.run(func(cmd *cobra.Command, args []string, a *app) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			printer := NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
			return ask(ctx, a.controller(printer), printer, strings.Join(args, " "))
		}),
	}
}

func ask(ctx context.Context, ctrl *chat.Controller, printer *Printer, message string) error {
	notices := printer.Notices()
	if err := ctrl.Send(ctx, message); err != nil {
		if printer.Notices() > notices {
			return ErrReported
		}
		return err
	}
	return nil
}

func newSettingsCommand(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the stored settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the stored settings",
		Args:  cobra.NoArgs,
		RunE: f.run(func(cmd *cobra.Command, _ []string, a *app) error {
			printer := NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
			printer.Info("Relay:      %s", a.cfg.Client.RelayURL)
			printer.Info("Database:   %s", a.cfg.Client.DBPath)
			return showSettings(printer, a.settings)
		}),
	}

	setURL := &cobra.Command{
		Use:   "set-url <url>",
		Short: "Set the Ollama URL sent to the relay (empty clears it)",
		Args:  cobra.ExactArgs(1),
		RunE: f.run(func(cmd *cobra.Command, args []string, a *app) error {
			if err := a.settings.SetOllamaURL(args[0]); err != nil {
				return err
			}
			url, err := a.settings.OllamaURL()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ollama URL set to %q\n", url)
			return nil
		}),
	}

	setModel := &cobra.Command{
		Use:   "set-model <model>",
		Short: "Set the model requested from the relay (empty uses the relay default)",
		Args:  cobra.ExactArgs(1),
		RunE: f.run(func(cmd *cobra.Command, args []string, a *app) error {
			if err := a.settings.SetModel(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model set to %q\n", strings.TrimSpace(args[0]))
			return nil
		}),
	}

	cmd.AddCommand(show, setURL, setModel)
	return cmd
}
