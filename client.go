// Package fchat provides a Go client for the F-Chat text protocol.
// It connects to the chat server over WebSocket, identifies a character,
// joins channels and dispatches incoming frames to handlers by code.
package fchat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/NeboLoop/fchat-go-sdk/frame"
)

const (
	defaultSendBuffer = 256
	closeTimeout      = 5 * time.Second
)

// Sender queues outbound frames.
type Sender interface {
	Send(code string, body any) error
}

// MessageConn is the part of a connection the session and dispatch code use.
type MessageConn interface {
	Sender
	Read(ctx context.Context) (frame.Message, error)
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// WithMetrics records frame counters on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Conn) { c.metrics = m }
}

// WithTranscript records every frame sent and received on t. The caller
// owns t and closes it after the connection.
func WithTranscript(t *frame.Transcript) Option {
	return func(c *Conn) { c.transcript = t }
}

// WithSendBuffer sets how many outbound frames may queue before Send blocks.
func WithSendBuffer(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.sendBuf = n
		}
	}
}

// Conn is a chat connection. Frames are read in arrival order through Read;
// once the transport closes or fails, Read drains what was already received
// and then returns ErrClosed forever.
type Conn struct {
	id       string
	endpoint string
	conn     net.Conn
	rd       io.Reader
	wmu      sync.Mutex // serialises data frames and control replies

	inbox   *inbox
	sendBuf int
	sendCh  chan string
	sendMu  sync.RWMutex // held shared while enqueueing, exclusively to close done
	closing chan struct{}

	done       chan struct{}
	closeOnce  sync.Once
	readerDone chan struct{}
	writerDone chan struct{}

	logger     *slog.Logger
	metrics    *Metrics
	transcript *frame.Transcript
}

// Dial connects to the chat server at endpoint (e.g. "wss://chat.f-list.net/chat2").
// It returns once the WebSocket handshake completed; any failure before that
// is reported as ErrConnect.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Conn, error) {
	c := newConn(endpoint, opts...)

	conn, br, _, err := ws.Dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	c.start(conn, br)

	c.logger.Info("connected to chat server", "endpoint", endpoint)
	return c, nil
}

func newConn(endpoint string, opts ...Option) *Conn {
	c := &Conn{
		id:         uuid.NewString(),
		endpoint:   endpoint,
		inbox:      newInbox(),
		sendBuf:    defaultSendBuffer,
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
		writerDone: make(chan struct{}),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("conn", c.id)
	c.sendCh = make(chan string, c.sendBuf)
	return c
}

func (c *Conn) start(conn net.Conn, br *bufio.Reader) {
	c.conn = conn
	c.rd = conn
	if br != nil {
		// Frames the server sent right behind the upgrade response are
		// already buffered in br.
		c.rd = br
	}
	c.metrics.setConnected(true)

	go c.readLoop()
	go c.writeLoop()
}

// ID returns the connection's unique id, used to correlate log lines.
func (c *Conn) ID() string { return c.id }

// Endpoint returns the URL the connection was dialed with.
func (c *Conn) Endpoint() string { return c.endpoint }

// Done is closed when the connection reaches its closed state.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send encodes a frame and queues it for the writer. There is no
// acknowledgement; a transport write failure closes the connection.
func (c *Conn) Send(code string, body any) error {
	text, err := frame.Encode(code, body)
	if err != nil {
		return err
	}

	// done cannot close while the read lock is held, so a frame that makes
	// it into sendCh is always seen by the writer's final flush.
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	select {
	case <-c.closing:
		return ErrClosed
	default:
	}

	select {
	case c.sendCh <- text:
		c.metrics.frameSent(code)
		return nil
	case <-c.closing:
		return ErrClosed
	}
}

// Read returns the next frame in arrival order. It blocks until a frame is
// available or the connection is closed, in which case it returns ErrClosed.
// A frame that does not parse (a body that is not valid JSON or an empty
// code) is reported with an error wrapping frame.ErrMalformedBody.
func (c *Conn) Read(ctx context.Context) (frame.Message, error) {
	text, ok, err := c.inbox.pull(ctx)
	if err != nil {
		return frame.Message{}, err
	}
	if !ok {
		return frame.Message{}, ErrClosed
	}

	msg, err := frame.Decode(text)
	if err != nil {
		c.metrics.frameMalformed()
		return frame.Message{}, err
	}
	c.metrics.frameReceived(msg.Code)
	return msg, nil
}

// Close flushes queued frames, sends a close frame and releases the socket.
// It is safe to call more than once and from any goroutine.
func (c *Conn) Close() error {
	c.shutdown(nil)
	<-c.writerDone
	<-c.readerDone
	return nil
}

// shutdown moves the connection to its closed state exactly once.
func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.inbox.close()
		// closing releases senders blocked on a full queue before done is
		// closed under the write lock.
		close(c.closing)
		c.sendMu.Lock()
		close(c.done)
		c.sendMu.Unlock()
		c.metrics.setConnected(false)
		if c.conn != nil {
			// Bounds the writer's final flush and unblocks a stuck write.
			c.conn.SetWriteDeadline(time.Now().Add(closeTimeout))
		}

		if cause != nil {
			c.logger.Warn("connection closed", "error", cause)
		} else {
			c.logger.Info("connection closed")
		}
	})
}

func (c *Conn) readLoop() {
	defer close(c.readerDone)

	rw := struct {
		io.Reader
		io.Writer
	}{c.rd, writerFunc(c.writeControl)}

	for {
		data, _, err := wsutil.ReadServerData(rw)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.shutdown(readError(err))
			}
			return
		}

		text := string(data)
		c.record(frame.Inbound, text)
		c.inbox.push(text)
	}
}

func (c *Conn) writeLoop() {
	defer close(c.writerDone)

	for {
		select {
		case text := <-c.sendCh:
			if err := c.writeText(text); err != nil {
				c.shutdown(fmt.Errorf("write: %w", err))
				c.conn.Close()
				return
			}
		case <-c.done:
			c.flush()
			c.wmu.Lock()
			wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
			c.wmu.Unlock()
			c.conn.Close()
			return
		}
	}
}

// flush writes whatever is still queued when the connection closes.
func (c *Conn) flush() {
	for {
		select {
		case text := <-c.sendCh:
			if err := c.writeText(text); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) writeText(text string) error {
	c.wmu.Lock()
	err := wsutil.WriteClientText(c.conn, []byte(text))
	c.wmu.Unlock()
	if err != nil {
		return err
	}
	c.record(frame.Outbound, text)
	return nil
}

// writeControl carries pong and close replies produced while reading.
func (c *Conn) writeControl(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.Write(p)
}

func (c *Conn) record(dir frame.Direction, text string) {
	if c.transcript == nil {
		return
	}
	if err := c.transcript.Record(dir, text); err != nil {
		c.logger.Debug("transcript write failed", "error", err)
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// readError keeps a clean server close out of the warning log.
func readError(err error) error {
	if closed, ok := err.(wsutil.ClosedError); ok && closed.Code == ws.StatusNormalClosure {
		return nil
	}
	if err == io.EOF {
		return nil
	}
	return fmt.Errorf("read: %w", err)
}
