// Package rangeworker implements one producer in the download pipeline: it
// issues a single HTTP range GET, walks the response chunk by chunk against
// a bitmap snapshot, and enqueues the chunks that are not already on disk.
package rangeworker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alonweissfeld/download-manager/internal/chunkmap"
	"github.com/alonweissfeld/download-manager/internal/queue"
	"github.com/alonweissfeld/download-manager/internal/rangehttp"
)

// Default timing values (spec reference values).
const (
	DefaultConnectTimeout = 25 * time.Second
	DefaultReadTimeout    = 20 * time.Second
)

// Config carries the timing and chunk-geometry parameters a Worker needs.
// All fields are required; callers normally copy these from the coordinator.
type Config struct {
	ChunkSize      int64
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Worker downloads one contiguous byte range and emits the chunks within it
// that are not already marked done in its bitmap snapshot.
type Worker struct {
	ID           int
	URL          string
	RangeStart   int64
	RangeEnd     int64
	Snapshot     chunkmap.Snapshot
	ChunkCount   int
	IsLastWorker bool
	Queue        *queue.Queue
	Client       *http.Client
	Config       Config
	Log          *logrus.Entry
}

// Run executes the worker's protocol against ctx. It returns nil once every
// fresh chunk in its range has been enqueued (or immediately, if trimming
// already consumed the whole range); any I/O failure, timeout, or short read
// is returned as a fatal error for the coordinator to escalate.
func (w *Worker) Run(ctx context.Context) error {
	if w.RangeStart >= w.RangeEnd {
		return nil
	}

	log := w.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("worker", w.ID)

	client := w.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: w.Config.ConnectTimeout}).DialContext,
			},
		}
	}

	reqCtx, touch, cancel := idleTimeoutContext(ctx, w.Config.ReadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, w.URL, nil)
	if err != nil {
		return fmt.Errorf("range worker %d: build request: %w", w.ID, err)
	}
	req.Header.Set("Range", rangehttp.Header(w.RangeStart, w.RangeEnd))

	log.Debugf("[%d] Start downloading range (%d - %d) from:\n%s", w.ID, w.RangeStart, w.RangeEnd, w.URL)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("range worker %d: %w", w.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("range worker %d: expected 206 Partial Content, got %d", w.ID, resp.StatusCode)
	}

	chunkSize := w.Config.ChunkSize
	startIdx := int(w.RangeStart / chunkSize)

	for i := startIdx; i < startIdx+w.ChunkCount; i++ {
		fileOffset := int64(i) * chunkSize
		thisChunkSize := chunkSize
		if w.IsLastWorker && i == startIdx+w.ChunkCount-1 {
			thisChunkSize = (w.RangeEnd + 1) - fileOffset
		}

		if w.Snapshot.IsSet(i) {
			if err := discard(resp.Body, thisChunkSize, touch); err != nil {
				return fmt.Errorf("range worker %d: discard chunk %d: %w", w.ID, i, err)
			}
			continue
		}

		buf := make([]byte, thisChunkSize)
		if err := readFull(resp.Body, buf, touch); err != nil {
			return fmt.Errorf("range worker %d: read chunk %d: %w", w.ID, i, err)
		}

		if err := w.Queue.Enqueue(ctx, queue.Chunk{Bytes: buf, FileOffset: fileOffset, Index: i}); err != nil {
			return fmt.Errorf("range worker %d: enqueue chunk %d: %w", w.ID, i, err)
		}
	}

	log.Debugf("[%d] Finished downloading", w.ID)
	return nil
}

// readFull reads exactly len(buf) bytes, tolerating short individual Read
// calls by looping until filled. touch is invoked after every Read that
// makes progress, to reset the idle-read deadline.
func readFull(r io.Reader, buf []byte, touch func()) error {
	var n int
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if m > 0 && touch != nil {
			touch()
		}
		if n >= len(buf) {
			break
		}
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("short read: got %d, want %d", n, len(buf))
			}
			return err
		}
	}
	return nil
}

// discard reads and throws away exactly n bytes (chunks already present on
// disk, which the server still streams since they lie within the requested
// range), using a reusable scratch buffer.
func discard(r io.Reader, n int64, touch func()) error {
	scratch := make([]byte, 32*1024)
	var read int64
	for read < n {
		want := scratch
		if remaining := n - read; remaining < int64(len(want)) {
			want = want[:remaining]
		}
		m, err := r.Read(want)
		read += int64(m)
		if m > 0 && touch != nil {
			touch()
		}
		if err != nil {
			if err == io.EOF && read == n {
				return nil
			}
			if err == io.EOF {
				return fmt.Errorf("short read while discarding: got %d, want %d", read, n)
			}
			return err
		}
	}
	return nil
}

// idleTimeoutContext derives a context from parent that is canceled if touch
// is not called for at least d. It implements the worker's 20s read timeout
// as an idle timeout on the response stream rather than a deadline on the
// whole request, since a large range legitimately takes longer than d to
// fully download.
func idleTimeoutContext(parent context.Context, d time.Duration) (ctx context.Context, touch func(), cancel context.CancelFunc) {
	ctx, cancel = context.WithCancel(parent)
	if d <= 0 {
		return ctx, func() {}, cancel
	}
	timer := time.AfterFunc(d, cancel)
	touch = func() { timer.Reset(d) }
	return ctx, touch, func() {
		timer.Stop()
		cancel()
	}
}
