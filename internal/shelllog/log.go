// Package shelllog implements the append-only, byte-addressable log kept
// for each shell in a session. Bytes are opaque ciphertext to this package;
// it only ever reasons about offsets and lengths.
package shelllog

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Append once the shell has been closed.
var ErrClosed = errors.New("shelllog: shell is closed")

// Chunk is a single retained write, tagged with its starting offset in the
// logical stream and its position in the sequence of chunks ever appended.
type Chunk struct {
	Offset   uint64
	Data     []byte
	Chunknum uint64
}

// Window is a shell's terminal size, kept alongside the log so resize
// notifications ride the same broadcast as data appends.
type Window struct {
	Rows uint32
	Cols uint32
}

// Log is the ring-buffered byte store for one shell. The zero value is not
// usable; construct with New.
type Log struct {
	mu        sync.Mutex
	offset    uint64
	nextChunk uint64
	chunks    []Chunk
	retained  uint64
	ringLimit uint64
	closed    bool
	window    Window

	notifier *Notifier
}

// New returns a Log that retains the last ringLimit bytes, plus the rest of
// any chunk straddling that boundary, with an initial window.
func New(ringLimit uint64, window Window) *Log {
	return &Log{
		ringLimit: ringLimit,
		window:    window,
		notifier:  NewNotifier(),
	}
}

// Append adds data to the end of the stream, evicting the oldest whole
// chunks that lie entirely before the last ringLimit bytes (see
// appendChunkLocked), and wakes anyone waiting on Wait.
func (l *Log) Append(data []byte) (offset uint64, err error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, ErrClosed
	}

	offset = l.offset
	l.appendChunkLocked(offset, data)
	l.mu.Unlock()

	l.notifier.Notify()
	return offset, nil
}

// AppendAt adds data to the stream like Append, but treats data as starting
// at logical offset seq rather than trusting the caller to have already
// deduplicated it. Only the suffix of data that lands at or after the
// stream's current offset is appended; frames that arrive entirely before
// the current offset (already applied) or that open a gap after it are
// dropped. This lets a host resend a range during reconciliation without
// the server double-applying bytes the live stream already delivered.
// applied reports whether any bytes were appended.
func (l *Log) AppendAt(seq uint64, data []byte) (applied bool, err error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false, ErrClosed
	}

	if seq > l.offset || seq+uint64(len(data)) <= l.offset {
		l.mu.Unlock()
		return false, nil
	}

	l.appendChunkLocked(l.offset, data[l.offset-seq:])
	l.mu.Unlock()

	l.notifier.Notify()
	return true, nil
}

// appendChunkLocked stores data as a new chunk starting at offset, then
// evicts whole chunks that end at or before the offset-ringLimit boundary
// so a chunk straddling it is kept in full rather than trimmed - the ring
// limit is a lower bound on retention, not a strict cap. Callers must hold
// l.mu.
func (l *Log) appendChunkLocked(offset uint64, data []byte) {
	stored := make([]byte, len(data))
	copy(stored, data)

	l.chunks = append(l.chunks, Chunk{Offset: offset, Data: stored, Chunknum: l.nextChunk})
	l.nextChunk++
	l.offset = offset + uint64(len(data))
	l.retained += uint64(len(data))

	var boundary uint64
	if l.offset > l.ringLimit {
		boundary = l.offset - l.ringLimit
	}
	for len(l.chunks) > 0 {
		oldest := l.chunks[0]
		if oldest.Offset+uint64(len(oldest.Data)) > boundary {
			break
		}
		l.chunks = l.chunks[1:]
		l.retained -= uint64(len(oldest.Data))
	}
}

// Snapshot returns every retained byte at or after fromOffset, trimming the
// leading chunk if fromOffset falls inside it. If fromOffset precedes the
// earliest retained byte, it is silently advanced to that byte - the caller
// resumes lossily rather than erroring. startOffset is the offset of the
// first byte actually returned, matching the on-wire Chunks.startOffset
// contract.
func (l *Log) Snapshot(fromOffset uint64) (startOffset uint64, chunks [][]byte, closed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	closed = l.closed

	if len(l.chunks) == 0 || fromOffset >= l.offset {
		return l.offset, nil, closed
	}

	if earliest := l.chunks[0].Offset; fromOffset < earliest {
		fromOffset = earliest
	}

	var result [][]byte
	for _, c := range l.chunks {
		end := c.Offset + uint64(len(c.Data))
		if end <= fromOffset {
			continue
		}
		data := c.Data
		if fromOffset > c.Offset {
			data = data[fromOffset-c.Offset:]
		}
		result = append(result, data)
	}

	return fromOffset, result, closed
}

// SnapshotChunks returns every retained chunk from fromChunknum onward,
// where fromChunknum is the count of chunks the caller has already
// received. If some of those chunks have since been evicted, delivery
// silently resumes at the earliest chunk still retained rather than
// erroring - the caller resumes lossily, same as Snapshot. startOffset is
// the byte offset of the first chunk actually returned, and nextChunknum is
// the chunknum to pass on the following call to continue from here.
func (l *Log) SnapshotChunks(fromChunknum uint64) (startOffset, nextChunknum uint64, chunks [][]byte, closed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	closed = l.closed

	if len(l.chunks) == 0 || fromChunknum >= l.nextChunk {
		return l.offset, l.nextChunk, nil, closed
	}

	if earliest := l.chunks[0].Chunknum; fromChunknum < earliest {
		fromChunknum = earliest
	}

	var result [][]byte
	startOffset = l.offset
	for _, c := range l.chunks {
		if c.Chunknum < fromChunknum {
			continue
		}
		if len(result) == 0 {
			startOffset = c.Offset
		}
		result = append(result, c.Data)
	}

	return startOffset, fromChunknum + uint64(len(result)), result, closed
}

// Resize updates the shell's window and wakes waiters.
func (l *Log) Resize(window Window) {
	l.mu.Lock()
	l.window = window
	l.mu.Unlock()

	l.notifier.Notify()
}

// Close marks the shell closed; further Append calls fail. Idempotent.
func (l *Log) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.notifier.Notify()
}

// Window returns the current window.
func (l *Log) Window() Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.window
}

// Offset returns the total number of bytes ever appended, including bytes
// that have since been evicted from the ring.
func (l *Log) Offset() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offset
}

// Closed reports whether the shell has been closed.
func (l *Log) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Wait returns a channel that closes the next time the log changes (append,
// resize, or close).
func (l *Log) Wait() <-chan struct{} {
	return l.notifier.Wait()
}
