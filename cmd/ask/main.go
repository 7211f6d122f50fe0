package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/kirillkom/slide-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/slide-rag-assistant/internal/config"
	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/slide-rag-assistant/internal/observability/logging"
)

type askOptions struct {
	viaNATS  bool
	raw      bool
	wordWrap int
	verbose  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed slide deck",
		Long: `Ask answers one question using the parsed slide text and the slide images.

By default the query engine runs in-process against the configured backends.
With --nats the question goes to a running worker over NATS request/reply.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAsk(ctx, cmd.OutOrStdout(), strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.viaNATS, "nats", false, "send the question to a worker over NATS")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "print plain markdown instead of terminal rendering")
	cmd.Flags().IntVar(&opts.wordWrap, "wrap", 100, "word wrap width for terminal rendering")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level to stderr")
	return cmd
}

func runAsk(ctx context.Context, out io.Writer, question string, opts askOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	logger := logging.New(os.Stderr, "ask", level, "text")

	var payload *domain.DisplayPayload
	if opts.viaNATS {
		payload, err = askRemote(ctx, cfg, question)
	} else {
		payload, err = askLocal(ctx, cfg, question, logger)
	}
	if err != nil {
		return err
	}
	return render(out, *payload, opts)
}

func askLocal(ctx context.Context, cfg config.Config, question string, logger *slog.Logger) (*domain.DisplayPayload, error) {
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	defer app.Close()

	result, err := app.NewEngine("cli").Answer(ctx, question)
	if err != nil {
		return nil, err
	}
	payload := app.Formatter.Format(result)
	return &payload, nil
}

func askRemote(ctx context.Context, cfg config.Config, question string) (*domain.DisplayPayload, error) {
	requester, err := nats.NewRequester(cfg.NATSURL, cfg.NATSQuerySubject, nats.Options{
		Name:               "slide-rag-ask",
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		return nil, err
	}
	defer requester.Close()

	reqCtx, cancel := context.WithTimeout(ctx, cfg.NATSRequestTimeout)
	defer cancel()
	return requester.Ask(reqCtx, question)
}

func render(out io.Writer, payload domain.DisplayPayload, opts askOptions) error {
	markdown := payload.Markdown()
	if opts.raw {
		_, err := fmt.Fprintln(out, markdown)
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(opts.wordWrap),
	)
	if err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return fmt.Errorf("render answer: %w", err)
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}
