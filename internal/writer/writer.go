// Package writer implements the single queue consumer: it writes each
// dequeued chunk to the destination file at its offset, marks it done in
// the metadata, and persists the side-car through to disk.
package writer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alonweissfeld/download-manager/internal/chunkmap"
	"github.com/alonweissfeld/download-manager/internal/progress"
	"github.com/alonweissfeld/download-manager/internal/queue"
)

// DefaultDequeueTimeout is the spec's reference writer dequeue timeout.
const DefaultDequeueTimeout = 2 * time.Minute

// Writer is the sole mutator of the destination file and its metadata.
type Writer struct {
	file           *os.File
	destPath       string
	metadata       *chunkmap.Metadata
	queue          *queue.Queue
	iterations     int
	dequeueTimeout time.Duration
	progress       *progress.Reporter
	log            *logrus.Entry
}

// New creates a Writer. iterations must be chunks_remaining at construction
// time: the writer runs exactly that many loop iterations, no more, no
// fewer, regardless of what arrives on the queue afterward.
func New(file *os.File, destPath string, metadata *chunkmap.Metadata, q *queue.Queue, iterations int, dequeueTimeout time.Duration, reporter *progress.Reporter, log *logrus.Entry) *Writer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if reporter == nil {
		reporter = progress.New(os.Stdout)
	}
	return &Writer{
		file:           file,
		destPath:       destPath,
		metadata:       metadata,
		queue:          q,
		iterations:     iterations,
		dequeueTimeout: dequeueTimeout,
		progress:       reporter,
		log:            log,
	}
}

// Run drains exactly w.iterations chunk messages from the queue, writing,
// marking, and persisting each one. A dequeue timeout or cancellation, or a
// file write error, is fatal and returned immediately; a metadata persist
// failure is logged and the loop continues.
func (w *Writer) Run(ctx context.Context) error {
	for i := 0; i < w.iterations; i++ {
		c, err := w.queue.Dequeue(ctx, w.dequeueTimeout)
		if err != nil {
			return fmt.Errorf("writer: dequeue: %w", err)
		}

		if _, err := w.file.WriteAt(c.Bytes, c.FileOffset); err != nil {
			w.file.Close()
			return fmt.Errorf("writer: write chunk %d at offset %d: %w", c.Index, c.FileOffset, err)
		}

		w.metadata.Mark(c.Index)

		if err := w.metadata.Persist(w.destPath); err != nil {
			// Rename failures inside Persist are already swallowed; an
			// error here means even the temp-file write failed, which is
			// still non-fatal per the spec's metadata-persist contract —
			// log and continue, the next successful chunk retries.
			w.log.WithError(err).Warn("writer: metadata persist failed, will retry on next chunk")
		}

		if percent := w.metadata.Percent(); percent > 0 {
			if err := w.progress.Report(percent); err != nil {
				w.log.WithError(err).Warn("writer: progress report failed")
			}
		}
	}
	return nil
}
