package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	fchat "github.com/NeboLoop/fchat-go-sdk"
	"github.com/NeboLoop/fchat-go-sdk/frame"
)

// Version information set at build time.
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit status.
func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := rootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %s\n", err)
		return 1
	}
	return 0
}

type logFlags struct {
	level  string
	format string
}

func rootCmd(stdout, stderr io.Writer) *cobra.Command {
	cfg := fchat.ConfigFromEnv()
	var lf logFlags
	var channels string

	cmd := &cobra.Command{
		Use:     "fchatbot",
		Short:   "Example F-Chat bot",
		Version: version,
		Long: `fchatbot logs in to F-Chat, joins the configured channels and
answers pings, echoes private messages and greets "!hello" in channels.

Credentials are read from FCHAT_ACCOUNT_NAME, FCHAT_ACCOUNT_PASSWORD and
FCHAT_CHARACTER_NAME; flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(stderr, lf)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("channels") {
				cfg.Channels = fchat.SplitChannels(channels)
			}
			return runBot(cmd.Context(), cfg, logger)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "chat WebSocket URL")
	f.StringVar(&cfg.TicketURL, "ticket-url", cfg.TicketURL, "API ticket endpoint")
	f.StringVar(&cfg.Account, "account", cfg.Account, "account name (env "+fchat.EnvAccount+")")
	f.StringVar(&cfg.Character, "character", cfg.Character, "character name (env "+fchat.EnvCharacter+")")
	f.StringVar(&channels, "channels", strings.Join(cfg.Channels, ","), "comma-separated channels to join")
	f.StringVar(&cfg.ClientName, "client-name", cfg.ClientName, "client name sent on identify")
	f.StringVar(&cfg.ClientVersion, "client-version", cfg.ClientVersion, "client version sent on identify")
	f.StringVar(&cfg.TranscriptPath, "transcript", "", "write a zstd frame transcript to this file")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
	f.BoolVar(&cfg.ContinueOnHandlerError, "continue-on-error", false, "log handler failures instead of ending the session")
	cmd.PersistentFlags().StringVar(&lf.level, "log-level", "info", "debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&lf.format, "log-format", "text", "text or json")

	cmd.AddCommand(transcriptCmd())
	return cmd
}

func runBot(ctx context.Context, cfg fchat.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := fchat.NewMetrics(reg)

	if cfg.MetricsAddr != "" {
		srv, err := serveMetrics(cfg.MetricsAddr, reg, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	bot := &fchat.Bot{Config: cfg, Logger: logger, Metrics: metrics}
	if err := bot.Run(ctx); err != nil {
		logger.Error("session ended with error", "error", err)
		return err
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (*http.Server, error) {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok\n")
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}

func transcriptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcript <file>",
		Short: "Print a frame transcript written with --transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			entries, err := frame.ReadTranscript(f)
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%-3s %s\n", e.Dir, e.Text)
			}
			return err
		},
	}
}

func newLogger(w io.Writer, lf logFlags) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lf.level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch lf.format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", lf.format)
	}
}
