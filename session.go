package fchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/NeboLoop/fchat-go-sdk/frame"
	"github.com/NeboLoop/fchat-go-sdk/wire"
)

const tracerName = "github.com/NeboLoop/fchat-go-sdk"

// Identity is what the client presents in its IDN frame.
type Identity struct {
	Account       string
	Ticket        string
	Character     string
	ClientName    string
	ClientVersion string
}

// Session runs the identify and join steps on a connection.
type Session struct {
	Logger  *slog.Logger
	Metrics *Metrics
}

func (s *Session) logger() *slog.Logger {
	if s == nil || s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Session) metrics() *Metrics {
	if s == nil {
		return nil
	}
	return s.Metrics
}

// Identify is Session.Identify with default logging.
func Identify(ctx context.Context, conn MessageConn, id Identity) error {
	return (*Session)(nil).Identify(ctx, conn, id)
}

// JoinChannels is Session.JoinChannels with default logging.
func JoinChannels(conn Sender, channels []string) error {
	return (*Session)(nil).JoinChannels(conn, channels)
}

// Identify sends IDN and waits for the server to confirm it. An ERR frame
// fails with a rejected HandshakeError, a closed connection with a
// disconnected one. Pings arriving meanwhile are answered; other frames are
// skipped.
func (s *Session) Identify(ctx context.Context, conn MessageConn, id Identity) (err error) {
	log := s.logger()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "fchat.Identify")
	span.SetAttributes(attribute.String("fchat.character", id.Character))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log.Info("identifying", "character", id.Character)
	started := time.Now()

	err = conn.Send(frame.CodeIdentify, wire.IdentifyPayload{
		Method:        "ticket",
		Account:       id.Account,
		Ticket:        id.Ticket,
		Character:     id.Character,
		ClientName:    id.ClientName,
		ClientVersion: id.ClientVersion,
	})
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return &HandshakeError{Reason: HandshakeDisconnected}
		}
		return fmt.Errorf("send identify: %w", err)
	}

	for {
		msg, err := conn.Read(ctx)
		if errors.Is(err, ErrClosed) {
			return &HandshakeError{Reason: HandshakeDisconnected}
		}
		if err != nil {
			return fmt.Errorf("read identify response: %w", err)
		}

		switch msg.Code {
		case frame.CodeError:
			return rejection(msg)

		case frame.CodeIdentify:
			s.metrics().handshakeDone(time.Since(started))
			confirmed := id.Character
			var p wire.IdentifyResultPayload
			if msg.HasBody() && msg.Unmarshal(&p) == nil && p.Character != "" {
				confirmed = p.Character
			}
			span.SetAttributes(attribute.String("fchat.identified", confirmed))
			log.Info("identified", "character", confirmed)
			return nil

		case frame.CodePing:
			if err := conn.Send(frame.CodePing, nil); err != nil && !errors.Is(err, ErrClosed) {
				return fmt.Errorf("answer ping: %w", err)
			}

		default:
			log.Debug("skipping frame during identification", "code", msg.Code)
		}
	}
}

// rejection builds the HandshakeError for an ERR frame. Every ERR rejects
// the handshake; fields that do not have the expected shape are recovered
// as far as possible and the raw body stands in for a missing message.
func rejection(msg frame.Message) *HandshakeError {
	hs := &HandshakeError{Reason: HandshakeRejected}
	var p wire.ErrorPayload
	if msg.Unmarshal(&p) == nil {
		hs.Code, hs.Message = p.Code, p.Message
		return hs
	}

	var loose map[string]any
	if msg.Unmarshal(&loose) == nil {
		switch v := loose["code"].(type) {
		case float64:
			hs.Code = int(v)
		case string:
			hs.Code, _ = strconv.Atoi(v)
		}
		hs.Message, _ = loose["message"].(string)
	}
	if hs.Message == "" && msg.HasBody() {
		hs.Message = string(msg.Body)
	}
	return hs
}

// JoinChannels sends one JCH per channel without waiting for confirmation;
// the server's JCH replies arrive later through the dispatch loop.
func (s *Session) JoinChannels(conn Sender, channels []string) error {
	log := s.logger()
	for _, ch := range channels {
		log.Info("joining channel", "channel", ch)
		if err := conn.Send(frame.CodeJoinChannel, wire.JoinPayload{Channel: ch}); err != nil {
			return fmt.Errorf("join %s: %w", ch, err)
		}
	}
	return nil
}
