package fchat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NeboLoop/fchat-go-sdk/frame"
)

// Bot wires ticket retrieval, the connection, the handshake and the
// dispatch loop together.
type Bot struct {
	Config     Config
	Logger     *slog.Logger
	Metrics    *Metrics
	HTTPClient *http.Client

	// Router receives dispatched frames. Nil means a router with the
	// default handlers.
	Router *Router
}

// Run performs one full session: get a ticket, connect, identify, join the
// configured channels and dispatch until the server closes the connection.
// The connection is closed on every return path. Cancelling ctx closes the
// connection: during dispatch Run then returns nil, during identification
// it returns a disconnected HandshakeError.
func (b *Bot) Run(ctx context.Context) error {
	cfg := b.Config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := b.Logger
	if log == nil {
		log = slog.Default()
	}
	httpClient := b.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	log.Info("getting API ticket", "account", cfg.Account)
	ticket, err := GetTicket(ctx, httpClient, cfg.TicketURL, cfg.Account, cfg.Password)
	if err != nil {
		return err
	}
	log.Info("got API ticket")

	opts := []Option{WithLogger(log), WithMetrics(b.Metrics)}
	if cfg.TranscriptPath != "" {
		f, err := os.Create(cfg.TranscriptPath)
		if err != nil {
			return fmt.Errorf("open transcript: %w", err)
		}
		tr, err := frame.NewTranscript(f)
		if err != nil {
			f.Close()
			return err
		}
		defer func() {
			if err := tr.Close(); err != nil {
				log.Warn("close transcript", "error", err)
			}
		}()
		opts = append(opts, WithTranscript(tr))
	}

	log.Info("connecting to chat server", "endpoint", cfg.Endpoint)
	conn, err := Dial(ctx, cfg.Endpoint, opts...)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Identification and dispatch end when the connection closes, so
	// cancellation is turned into a close rather than an aborted read.
	go func() {
		select {
		case <-ctx.Done():
			log.Info("shutting down", "cause", context.Cause(ctx))
			conn.Close()
		case <-conn.Done():
		}
	}()
	sessCtx := context.WithoutCancel(ctx)

	sess := &Session{Logger: log, Metrics: b.Metrics}
	err = sess.Identify(sessCtx, conn, Identity{
		Account:       cfg.Account,
		Ticket:        ticket,
		Character:     cfg.Character,
		ClientName:    cfg.ClientName,
		ClientVersion: cfg.ClientVersion,
	})
	if err != nil {
		return err
	}
	if err := sess.JoinChannels(conn, cfg.Channels); err != nil {
		return err
	}

	if err := b.router(log).Run(sessCtx, conn); err != nil {
		return err
	}
	log.Info("chat connection closed")
	return nil
}

func (b *Bot) router(log *slog.Logger) *Router {
	if b.Router != nil {
		return b.Router
	}
	opts := []RouterOption{WithRouterLogger(log), WithRouterMetrics(b.Metrics)}
	if b.Config.ContinueOnHandlerError {
		opts = append(opts, WithContinueOnError())
	}
	r := NewRouter(opts...)
	RegisterDefaults(r, log)
	return r
}
