package audio

import (
	"context"
	"errors"
	"io"
	"iter"
)

// Coalescer merges whatever is queued in a ChunkBuffer into one frame per
// blocking pop, so the recognition stream sees fewer, larger requests.
type Coalescer struct {
	buffer        *ChunkBuffer
	maxFrameBytes int // 0 means unlimited
}

// NewCoalescer creates a coalescer reading from buffer. When maxFrameBytes is
// positive a frame stops growing once it reaches that size; chunks are never
// split.
func NewCoalescer(buffer *ChunkBuffer, maxFrameBytes int) *Coalescer {
	if maxFrameBytes < 0 {
		maxFrameBytes = 0
	}
	return &Coalescer{
		buffer:        buffer,
		maxFrameBytes: maxFrameBytes,
	}
}

// Frames returns a single-pass sequence of coalesced frames. It ends when the
// end marker is reached or ctx is done. Calling Frames again continues from
// the buffer's current head.
func (c *Coalescer) Frames(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			first, err := c.buffer.Pop(ctx)
			if err != nil {
				return
			}

			frame, end := c.drain(first)
			if len(frame) > 0 && !yield(frame) {
				return
			}
			if end {
				return
			}
		}
	}
}

// drain appends every immediately available chunk to first. end reports
// that the end marker was reached while draining.
func (c *Coalescer) drain(first []byte) (frame []byte, end bool) {
	frame = first
	for c.maxFrameBytes == 0 || len(frame) < c.maxFrameBytes {
		chunk, err := c.buffer.TryPop()
		if errors.Is(err, io.EOF) {
			return frame, true
		}
		if err != nil {
			break
		}
		frame = append(frame, chunk...)
	}
	return frame, false
}
