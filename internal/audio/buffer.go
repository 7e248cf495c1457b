package audio

import (
	"context"
	"errors"
	"io"
	"sync"
)

var (
	// ErrBufferClosed is returned by Push once the buffer has been closed.
	ErrBufferClosed = errors.New("audio: push on closed buffer")

	// ErrEmpty is returned by TryPop when nothing is queued.
	ErrEmpty = errors.New("audio: buffer empty")
)

// item is one queued entry. end marks the end-of-stream sentinel.
type item struct {
	data []byte
	end  bool
}

// ChunkBuffer is a thread-safe FIFO of audio chunks shared between the
// transport read loop (producer) and the recognition stream (consumer).
//
// Pop returns io.EOF once the end marker is reached, and keeps returning it
// afterwards. Close only stops producers; consumers are released by
// PushEndMarker.
type ChunkBuffer struct {
	mu     sync.Mutex
	items  []item
	wake   chan struct{} // closed and replaced on every push
	closed bool
	marked bool // end marker enqueued
	ended  bool // end marker popped
	queued int  // bytes currently queued
}

// NewChunkBuffer creates an empty buffer
func NewChunkBuffer() *ChunkBuffer {
	return &ChunkBuffer{
		wake: make(chan struct{}),
	}
}

// Push appends a copy of chunk to the tail. It never blocks.
func (b *ChunkBuffer) Push(chunk []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBufferClosed
	}

	data := make([]byte, len(chunk))
	copy(data, chunk)
	b.items = append(b.items, item{data: data})
	b.queued += len(data)
	b.broadcast()

	return nil
}

// PushEndMarker enqueues the end-of-stream sentinel. It is accepted after
// Close so teardown can always release a blocked consumer. Only the first
// call has an effect.
func (b *ChunkBuffer) PushEndMarker() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.marked {
		return
	}
	b.marked = true
	b.items = append(b.items, item{end: true})
	b.broadcast()
}

// Pop blocks until a chunk or the end marker is available, or ctx is done.
// It returns io.EOF for the end marker.
func (b *ChunkBuffer) Pop(ctx context.Context) ([]byte, error) {
	for {
		b.mu.Lock()
		data, err := b.popLocked()
		wake := b.wake
		b.mu.Unlock()

		if err != ErrEmpty {
			return data, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// TryPop returns the head without blocking. It returns ErrEmpty when nothing
// is queued and io.EOF for the end marker.
func (b *ChunkBuffer) TryPop() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.popLocked()
}

func (b *ChunkBuffer) popLocked() ([]byte, error) {
	if b.ended {
		return nil, io.EOF
	}
	if len(b.items) == 0 {
		return nil, ErrEmpty
	}

	head := b.items[0]
	b.items[0] = item{}
	b.items = b.items[1:]

	if head.end {
		b.ended = true
		b.items = nil
		b.queued = 0
		return nil, io.EOF
	}

	b.queued -= len(head.data)
	return head.data, nil
}

// broadcast wakes every goroutine blocked in Pop. Callers hold mu.
func (b *ChunkBuffer) broadcast() {
	close(b.wake)
	b.wake = make(chan struct{})
}

// Close marks the buffer closed. It is idempotent and does not wake
// consumers blocked in Pop.
func (b *ChunkBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Closed reports whether Close has been called
func (b *ChunkBuffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Ended reports whether the end marker has been consumed
func (b *ChunkBuffer) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

// Len returns the number of queued chunks, not counting the end marker
func (b *ChunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.items)
	if b.marked && !b.ended {
		n--
	}
	return n
}

// Bytes returns the number of audio bytes currently queued
func (b *ChunkBuffer) Bytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queued
}
