package fchat

import (
	"context"
	"log/slog"

	"github.com/NeboLoop/fchat-go-sdk/frame"
	"github.com/NeboLoop/fchat-go-sdk/wire"
)

// GreetingTrigger is the channel message text that makes the bot say hello.
const GreetingTrigger = "!hello"

// RegisterDefaults installs the stock bot handlers on r.
func RegisterDefaults(r *Router, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.Handle(frame.CodePing, HandlePing)
	r.Handle(frame.CodeJoinChannel, ChannelJoinedHandler(logger))
	r.Handle(frame.CodePrivateMessage, PrivateMessageHandler(logger))
	r.Handle(frame.CodeChannelMessage, HandleChannelMessage)
}

// HandlePing answers a keepalive with a bare PIN.
func HandlePing(_ context.Context, s Sender, _ frame.Message) error {
	return s.Send(frame.CodePing, nil)
}

// ChannelJoinedHandler logs channel joins.
func ChannelJoinedHandler(logger *slog.Logger) HandlerFunc {
	return func(_ context.Context, _ Sender, msg frame.Message) error {
		var p wire.JoinedPayload
		if err := msg.Unmarshal(&p); err != nil {
			logger.Warn("unexpected channel join payload", "frame", msg.String(), "error", err)
			return nil
		}
		logger.Info("joined channel", "channel", p.Channel, "title", p.Title, "character", p.Character.Identity)
		return nil
	}
}

// PrivateMessageHandler echoes a private message back to its sender.
func PrivateMessageHandler(logger *slog.Logger) HandlerFunc {
	return func(_ context.Context, s Sender, msg frame.Message) error {
		var p wire.PrivateMessagePayload
		if err := msg.Unmarshal(&p); err != nil {
			return err
		}
		logger.Info("private message", "from", p.Character, "message", p.Message)
		return s.Send(frame.CodePrivateMessage, wire.SendPrivatePayload{
			Recipient: p.Character,
			Message:   p.Message,
		})
	}
}

// HandleChannelMessage greets whoever says GreetingTrigger in a channel.
func HandleChannelMessage(_ context.Context, s Sender, msg frame.Message) error {
	var p wire.ChannelMessagePayload
	if err := msg.Unmarshal(&p); err != nil {
		return err
	}
	if p.Message != GreetingTrigger {
		return nil
	}
	return s.Send(frame.CodeChannelMessage, wire.ChannelMessagePayload{
		Channel: p.Channel,
		Message: "Hello, " + p.Character + "!",
	})
}
