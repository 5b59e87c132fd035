package fchat

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/NeboLoop/fchat-go-sdk/frame"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn is an in-memory MessageConn. Inbound frames go through a real
// inbox so ordering and close behave like a Conn.
type fakeConn struct {
	in *inbox

	mu      sync.Mutex
	sent    []string
	sendErr error
}

func newFakeConn(frames ...string) *fakeConn {
	f := &fakeConn{in: newInbox()}
	f.deliver(frames...)
	return f
}

func (f *fakeConn) deliver(frames ...string) {
	for _, text := range frames {
		f.in.push(text)
	}
}

func (f *fakeConn) close() { f.in.close() }

func (f *fakeConn) Read(ctx context.Context) (frame.Message, error) {
	text, ok, err := f.in.pull(ctx)
	if err != nil {
		return frame.Message{}, err
	}
	if !ok {
		return frame.Message{}, ErrClosed
	}
	return frame.Decode(text)
}

func (f *fakeConn) Send(code string, body any) error {
	text, err := frame.Encode(code, body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeConn) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

var _ MessageConn = (*fakeConn)(nil)

// newChatServer starts a WebSocket server that hands every accepted
// connection to handle and closes it when handle returns.
func newChatServer(t *testing.T, handle func(c *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()
		handle(c)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// sendClose writes a normal close frame from the server side.
func sendClose(c *websocket.Conn) {
	c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readText reads the next text frame the client sent.
func readText(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	typ, data, err := c.ReadMessage()
	if err != nil {
		t.Errorf("server read: %v", err)
		return ""
	}
	if typ != websocket.TextMessage {
		t.Errorf("server read: message type %d, want text", typ)
	}
	return string(data)
}
