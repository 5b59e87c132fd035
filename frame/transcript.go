package frame

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Direction marks which side produced a transcript entry.
type Direction byte

const (
	Inbound  Direction = '<'
	Outbound Direction = '>'
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "in"
	case Outbound:
		return "out"
	default:
		return "unknown"
	}
}

// TranscriptEntry is one recorded frame.
type TranscriptEntry struct {
	Dir  Direction
	Text string
}

// Transcript records frames as zstd-compressed lines of the form
// "< text" (received) or "> text" (sent). Safe for concurrent use.
type Transcript struct {
	mu     sync.Mutex
	enc    *zstd.Encoder
	dst    io.Closer
	err    error
	closed bool
}

// NewTranscript wraps w. Closing the transcript flushes the encoder and
// closes w.
func NewTranscript(w io.WriteCloser) (*Transcript, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	return &Transcript{enc: enc, dst: w}, nil
}

// Record appends a frame. Raw newlines can only appear as JSON whitespace,
// so they are folded to spaces to keep one entry per line.
func (t *Transcript) Record(dir Direction, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return io.ErrClosedPipe
	}
	if t.err != nil {
		return t.err
	}
	line := string(dir) + " " + strings.ReplaceAll(text, "\n", " ") + "\n"
	if _, err := io.WriteString(t.enc, line); err != nil {
		t.err = err
		return err
	}
	return nil
}

// Close flushes pending data and closes the underlying writer.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	encErr := t.enc.Close()
	dstErr := t.dst.Close()
	if encErr != nil {
		return encErr
	}
	return dstErr
}

// ReadTranscript decodes a transcript written by Transcript.
func ReadTranscript(r io.Reader) ([]TranscriptEntry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	defer dec.Close()

	var entries []TranscriptEntry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if len(line) < 2 || line[1] != ' ' {
			return entries, fmt.Errorf("transcript: malformed line %q", line)
		}
		dir := Direction(line[0])
		if dir != Inbound && dir != Outbound {
			return entries, fmt.Errorf("transcript: unknown direction %q", line[0])
		}
		entries = append(entries, TranscriptEntry{
			Dir:  dir,
			Text: line[2:],
		})
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("transcript: %w", err)
	}
	return entries, nil
}
