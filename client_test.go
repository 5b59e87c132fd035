package fchat

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/NeboLoop/fchat-go-sdk/frame"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func dialTest(t *testing.T, srv *httptest.Server, opts ...Option) *Conn {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	c, err := Dial(testCtx(t), wsURL(srv), opts...)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDialRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no websockets here", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Dial(testCtx(t), wsURL(srv), WithLogger(discardLogger()))
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
}

func TestDialNoServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	_, err := Dial(testCtx(t), url, WithLogger(discardLogger()))
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
}

func TestConnReadsInArrivalOrderThenClosed(t *testing.T) {
	srv := newChatServer(t, func(c *websocket.Conn) {
		c.WriteMessage(websocket.TextMessage, []byte("PIN"))
		c.WriteMessage(websocket.TextMessage, []byte(`JCH {"channel":"Development"}`))
		c.WriteMessage(websocket.TextMessage, []byte(`MSG {"channel":"Development","character":"b","message":"c"}`))
		sendClose(c)
	})
	conn := dialTest(t, srv)
	ctx := testCtx(t)

	for _, want := range []string{"PIN", "JCH", "MSG"} {
		msg, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read %s: %v", want, err)
		}
		if msg.Code != want {
			t.Errorf("code: got %q, want %q", msg.Code, want)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := conn.Read(ctx); err != ErrClosed {
			t.Fatalf("read %d after close: got %v, want ErrClosed", i, err)
		}
	}

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after server close")
	}
	if err := conn.Send(frame.CodePing, nil); err != ErrClosed {
		t.Errorf("send after close: got %v, want ErrClosed", err)
	}
}

func TestConnPendingReadReleasedByServerClose(t *testing.T) {
	release := make(chan struct{})
	srv := newChatServer(t, func(c *websocket.Conn) {
		<-release
		sendClose(c)
	})
	conn := dialTest(t, srv)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Read(context.Background())
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-errCh:
		if err != ErrClosed {
			t.Fatalf("got %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending read not released")
	}
}

func TestConnSendReachesServer(t *testing.T) {
	got := make(chan []string, 1)
	srv := newChatServer(t, func(c *websocket.Conn) {
		var frames []string
		for i := 0; i < 3; i++ {
			frames = append(frames, readText(t, c))
		}
		got <- frames
		c.WriteMessage(websocket.TextMessage, []byte("PIN"))
		c.ReadMessage()
	})
	conn := dialTest(t, srv)

	conn.Send(frame.CodeIdentify, map[string]string{"method": "ticket"})
	conn.Send(frame.CodeJoinChannel, map[string]string{"channel": "Development"})
	conn.Send(frame.CodePing, nil)

	select {
	case frames := <-got:
		want := []string{`IDN {"method":"ticket"}`, `JCH {"channel":"Development"}`, "PIN"}
		for i := range want {
			if frames[i] != want[i] {
				t.Errorf("frame %d: got %q, want %q", i, frames[i], want[i])
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received frames")
	}

	msg, err := conn.Read(testCtx(t))
	if err != nil || msg.Code != "PIN" {
		t.Fatalf("read: %+v %v", msg, err)
	}
}

func TestConnCloseFlushesQueuedFrames(t *testing.T) {
	type result struct {
		frames   []string
		closeErr error
	}
	got := make(chan result, 1)
	srv := newChatServer(t, func(c *websocket.Conn) {
		var r result
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				r.closeErr = err
				break
			}
			r.frames = append(r.frames, string(data))
		}
		got <- r
	})
	conn := dialTest(t, srv)

	for _, ch := range []string{"A", "B", "C"} {
		if err := conn.Send(frame.CodeJoinChannel, map[string]string{"channel": ch}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}

	select {
	case r := <-got:
		if len(r.frames) != 3 {
			t.Fatalf("server got %d frames, want 3: %v", len(r.frames), r.frames)
		}
		if r.frames[2] != `JCH {"channel":"C"}` {
			t.Errorf("last frame: got %q", r.frames[2])
		}
		if !websocket.IsCloseError(r.closeErr, websocket.CloseNormalClosure) {
			t.Errorf("expected normal close, got %v", r.closeErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not see the close")
	}

	if _, err := conn.Read(testCtx(t)); err != ErrClosed {
		t.Errorf("read after close: got %v, want ErrClosed", err)
	}
}

func TestConnSendRacingCloseIsDeliveredOrRefused(t *testing.T) {
	received := make(chan int, 1)
	srv := newChatServer(t, func(c *websocket.Conn) {
		n := 0
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
			n++
		}
		received <- n
	})
	conn := dialTest(t, srv, WithSendBuffer(4096))

	const senders = 8
	var accepted atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 200; j++ {
				err := conn.Send(frame.CodePing, nil)
				if err == nil {
					accepted.Add(1)
				} else if err != ErrClosed {
					t.Errorf("send: %v", err)
					return
				}
			}
		}()
	}
	close(start)
	time.Sleep(time.Millisecond)
	conn.Close()
	wg.Wait()

	select {
	case n := <-received:
		if int64(n) != accepted.Load() {
			t.Errorf("server got %d frames, Send accepted %d", n, accepted.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not see the close")
	}
}

func TestConnMalformedFrame(t *testing.T) {
	srv := newChatServer(t, func(c *websocket.Conn) {
		c.WriteMessage(websocket.TextMessage, []byte("MSG {broken"))
		c.WriteMessage(websocket.TextMessage, []byte("PIN"))
		c.ReadMessage()
	})
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	conn := dialTest(t, srv, WithMetrics(m))
	ctx := testCtx(t)

	if _, err := conn.Read(ctx); !errors.Is(err, frame.ErrMalformedBody) {
		t.Fatalf("expected ErrMalformedBody, got %v", err)
	}
	msg, err := conn.Read(ctx)
	if err != nil || msg.Code != "PIN" {
		t.Fatalf("frame after malformed one: %+v %v", msg, err)
	}
	if got := testutil.ToFloat64(m.malformedFrames); got != 1 {
		t.Errorf("malformed frames: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.framesReceived.WithLabelValues("PIN")); got != 1 {
		t.Errorf("PIN received: got %v, want 1", got)
	}
}

func TestConnMetricsAndTranscript(t *testing.T) {
	srv := newChatServer(t, func(c *websocket.Conn) {
		readText(t, c)
		c.WriteMessage(websocket.TextMessage, []byte(`IDN {"character":"Bot"}`))
		sendClose(c)
	})

	var buf bytes.Buffer
	tr, err := frame.NewTranscript(nopWriteCloser{&buf})
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	conn := dialTest(t, srv, WithMetrics(m), WithTranscript(tr))

	if got := testutil.ToFloat64(m.connected); got != 1 {
		t.Errorf("connected gauge: got %v, want 1", got)
	}
	conn.Send(frame.CodeIdentify, map[string]string{"method": "ticket"})
	if msg, err := conn.Read(testCtx(t)); err != nil || msg.Code != "IDN" {
		t.Fatalf("read: %+v %v", msg, err)
	}
	if _, err := conn.Read(testCtx(t)); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	conn.Close()
	tr.Close()

	if got := testutil.ToFloat64(m.framesSent.WithLabelValues("IDN")); got != 1 {
		t.Errorf("IDN sent: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.connected); got != 0 {
		t.Errorf("connected gauge after close: got %v, want 0", got)
	}

	entries, err := frame.ReadTranscript(&buf)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	want := map[frame.TranscriptEntry]bool{
		{Dir: frame.Outbound, Text: `IDN {"method":"ticket"}`}: false,
		{Dir: frame.Inbound, Text: `IDN {"character":"Bot"}`}:  false,
	}
	for _, e := range entries {
		if _, ok := want[e]; ok {
			want[e] = true
		}
	}
	for e, seen := range want {
		if !seen {
			t.Errorf("transcript missing %+v", e)
		}
	}
}

func TestConnID(t *testing.T) {
	a := newConn("ws://example", WithLogger(discardLogger()))
	b := newConn("ws://example", WithLogger(discardLogger()))
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("ids should be unique and non-empty: %q %q", a.ID(), b.ID())
	}
	if a.Endpoint() != "ws://example" {
		t.Errorf("endpoint: got %q", a.Endpoint())
	}
}

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }
