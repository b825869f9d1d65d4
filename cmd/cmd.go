package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"techtribe-client/internal/apperr"
	"techtribe-client/internal/config"
	"techtribe-client/internal/notify"
	"techtribe-client/internal/repository"
	"techtribe-client/internal/services"
	"techtribe-client/internal/store"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

// Run executes the command line and exits non-zero on failure
func Run() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, displayError(err))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "techtribe",
		Short:         "TechTribe, the dating app for developers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load configuration
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}

			// Setup logger
			setupLogger(cfg.Log.Level)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newLoginCommand(),
		newSignupCommand(),
		newLogoutCommand(),
		newProfileCommand(),
		newFeedCommand(),
		newRequestsCommand(),
		newConnectionsCommand(),
		newChatCommand(),
		newDevServerCommand(),
	)
	return root
}

// app is the client wiring shared by the commands
type app struct {
	tokens   repository.KVStore
	store    *store.Store
	events   *notify.Dispatcher
	sessions *services.SessionManager
}

func newApp(ctx context.Context, out io.Writer) (*app, error) {
	tokens, err := repository.Open(ctx, cfg.Session)
	if err != nil {
		return nil, err
	}

	events := notify.NewDispatcher(consoleSink(out))
	if cfg.Log.Level == "debug" {
		events.Add(notify.LogSink{})
	}
	if cfg.Notify.APNs.Enabled {
		sink, err := notify.NewAPNsSink(cfg.Notify.APNs)
		if err != nil {
			tokens.Close()
			return nil, err
		}
		events.Add(sink)
	}

	st := store.New()
	return &app{
		tokens:   tokens,
		store:    st,
		events:   events,
		sessions: services.NewSessionManager(cfg.API.BaseURL, cfg.API.Timeout, tokens, st, events),
	}, nil
}

func (a *app) Close() {
	if err := a.tokens.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close token store")
	}
}

// withApp runs fn with a wired client and releases it afterwards
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// consoleSink prints user-facing notifications
func consoleSink(out io.Writer) notify.Sink {
	return notify.SinkFunc(func(_ context.Context, e notify.Event) error {
		switch e.Kind {
		case notify.KindChatStatus:
			return nil
		case notify.KindError:
			_, err := fmt.Fprintf(out, "! %s\n", e.Text())
			return err
		default:
			_, err := fmt.Fprintf(out, "* %s\n", e.Text())
			return err
		}
	})
}

// displayError returns the text shown for a failed command
func displayError(err error) string {
	if apperr.KindOf(err) != "" {
		return apperr.UserMessage(err)
	}
	return err.Error()
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
