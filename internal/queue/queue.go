// Package queue implements the bounded, multi-producer/single-consumer
// channel of chunk messages that sits between range workers and the writer.
package queue

import (
	"context"
	"time"
)

// Chunk is an immutable value carrying one downloaded chunk's bytes, its
// absolute offset in the destination file, and its chunk index. Ownership
// transfers from the producing range worker to the queue, and from the
// queue to the writer.
type Chunk struct {
	Bytes      []byte
	FileOffset int64
	Index      int
}

// Queue is a fixed-capacity FIFO of Chunk values. Its capacity bounds memory
// (Capacity * CHUNK_SIZE worst-case) independent of how many chunks a
// download contains.
type Queue struct {
	ch chan Chunk
}

// New creates a Queue with the given capacity.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan Chunk, capacity)}
}

// Enqueue blocks until there is room in the queue or the context is
// canceled. It returns the context's error on cancellation.
func (q *Queue) Enqueue(ctx context.Context, c Chunk) error {
	select {
	case q.ch <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a chunk is available, the timeout elapses, or ctx is
// canceled. A timeout or cancellation is reported as an error: per the
// writer's contract (spec §5/§7), both are fatal to the run.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (Chunk, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c := <-q.ch:
		return c, nil
	case <-timer.C:
		return Chunk{}, errTimeout{timeout}
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	}
}

// errTimeout reports that Dequeue did not receive a chunk before its
// deadline.
type errTimeout struct{ after time.Duration }

func (e errTimeout) Error() string {
	return "queue: dequeue timed out after " + e.after.String()
}

// IsTimeout reports whether err was returned by Dequeue timing out, as
// opposed to context cancellation.
func IsTimeout(err error) bool {
	_, ok := err.(errTimeout)
	return ok
}
