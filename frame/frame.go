// Package frame implements the text frame codec for the F-Chat protocol.
//
// Frame layout (one WebSocket text message per frame):
//
//	<code>                 e.g. "PIN"
//	<code> <json-body>     e.g. "MSG {"channel":"Development","message":"hi"}"
//
// The code is a short uppercase token and never contains a space. Everything
// after the first space is the JSON body.
package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Frame codes used by the client.
const (
	CodeIdentify       = "IDN"
	CodeError          = "ERR"
	CodePing           = "PIN"
	CodeJoinChannel    = "JCH"
	CodePrivateMessage = "PRI"
	CodeChannelMessage = "MSG"
)

// ErrMalformedBody is the parse error for frame text. Decode failures
// caused by a missing code wrap ErrEmptyCode as well.
var (
	ErrEmptyCode     = errors.New("frame: empty code")
	ErrMalformedBody = errors.New("frame: malformed json body")
)

// Message is a decoded frame. Body is nil when the frame carried no body.
type Message struct {
	Code string
	Body json.RawMessage
}

// HasBody reports whether the frame carried a JSON body.
func (m Message) HasBody() bool { return len(m.Body) > 0 }

// Unmarshal decodes the body into v.
func (m Message) Unmarshal(v any) error {
	if !m.HasBody() {
		return fmt.Errorf("%w: %s has no body", ErrMalformedBody, m.Code)
	}
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedBody, m.Code, err)
	}
	return nil
}

// String returns the wire form of the message.
func (m Message) String() string {
	if !m.HasBody() {
		return m.Code
	}
	return m.Code + " " + string(m.Body)
}

// Encode serialises a code and optional body into frame text.
// A nil body (or an empty json.RawMessage) produces the bare code.
func Encode(code string, body any) (string, error) {
	if code == "" {
		return "", ErrEmptyCode
	}
	if body == nil {
		return code, nil
	}
	if raw, ok := body.(json.RawMessage); ok && len(raw) == 0 {
		return code, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("frame: encode %s body: %w", code, err)
	}
	return code + " " + string(data), nil
}

// Decode parses frame text into a Message.
func Decode(text string) (Message, error) {
	code, rest, found := strings.Cut(text, " ")
	if code == "" {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformedBody, ErrEmptyCode)
	}
	if !found {
		return Message{Code: code}, nil
	}
	body := []byte(rest)
	if !json.Valid(body) {
		return Message{}, fmt.Errorf("%w: %s %q", ErrMalformedBody, code, truncate(rest, 64))
	}
	return Message{Code: code, Body: json.RawMessage(body)}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
