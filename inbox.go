package fchat

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// inbox turns pushed frames into ordered pulls.
//
// frames holds text that arrived with no reader waiting; waiters holds
// readers that arrived with no frame buffered. A push always serves the
// oldest live waiter before buffering, and a pull always drains the oldest
// frame before waiting, so at most one of the two queues is non-empty.
// Once closed, pending and future pulls see ok == false after the buffered
// frames are drained.
type inbox struct {
	mu      sync.Mutex
	frames  *queue.Queue // string
	waiters *queue.Queue // *waiter
	closed  bool
}

type waiter struct {
	ch        chan delivery // cap 1, written at most once
	abandoned bool
}

type delivery struct {
	text string
	ok   bool
}

func newInbox() *inbox {
	return &inbox{
		frames:  queue.New(),
		waiters: queue.New(),
	}
}

// push delivers text to the oldest live waiter or buffers it. Frames pushed
// after close are dropped.
func (b *inbox) push(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for b.waiters.Length() > 0 {
		w := b.waiters.Remove().(*waiter)
		if w.abandoned {
			continue
		}
		w.ch <- delivery{text: text, ok: true}
		return
	}
	b.frames.Add(text)
}

// close marks the inbox terminal and releases every pending waiter.
// Returns false if it was already closed.
func (b *inbox) close() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.closed = true
	for b.waiters.Length() > 0 {
		w := b.waiters.Remove().(*waiter)
		if !w.abandoned {
			w.ch <- delivery{}
		}
	}
	return true
}

// pull returns the next frame in arrival order, or ok == false once the
// inbox is closed and drained. A cancelled ctx abandons the wait; a frame
// that already reached this waiter is returned rather than dropped.
func (b *inbox) pull(ctx context.Context) (string, bool, error) {
	b.mu.Lock()
	if b.frames.Length() > 0 {
		text := b.frames.Remove().(string)
		b.mu.Unlock()
		return text, true, nil
	}
	if b.closed {
		b.mu.Unlock()
		return "", false, nil
	}
	w := &waiter{ch: make(chan delivery, 1)}
	b.waiters.Add(w)
	b.mu.Unlock()

	select {
	case d := <-w.ch:
		return d.text, d.ok, nil
	case <-ctx.Done():
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case d := <-w.ch:
		return d.text, d.ok, nil
	default:
		w.abandoned = true
		return "", false, ctx.Err()
	}
}

// buffered reports the number of frames waiting for a reader.
func (b *inbox) buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames.Length()
}

// pending reports the number of readers waiting for a frame, abandoned
// ones included until a push or close skips them.
func (b *inbox) pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiters.Length()
}
