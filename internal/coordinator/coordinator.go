// Package coordinator constructs and runs one download: it probes content
// length, loads or creates metadata, partitions the byte range across
// workers (trimming against already-done chunks), and supervises the range
// workers and the writer until the run succeeds or a fatal error occurs.
package coordinator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	units "github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alonweissfeld/download-manager/internal/chunkmap"
	"github.com/alonweissfeld/download-manager/internal/mirrors"
	"github.com/alonweissfeld/download-manager/internal/progress"
	"github.com/alonweissfeld/download-manager/internal/queue"
	"github.com/alonweissfeld/download-manager/internal/rangehttp"
	"github.com/alonweissfeld/download-manager/internal/rangeworker"
	"github.com/alonweissfeld/download-manager/internal/writer"
)

// Reference values from the spec; all are overridable constructor options.
const (
	DefaultChunkSize              int64 = 65536
	DefaultQueueCapacity                = 1000
	DefaultMinBytesPerConnection  int64 = 1048576
	DefaultConnectTimeout               = 25 * time.Second
	DefaultReadTimeout                  = 20 * time.Second
	DefaultWriterDequeueTimeout         = 2 * time.Minute
	DefaultRunTimeout                   = 24 * time.Hour
)

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	chunkSize            int64
	queueCapacity        int
	minBytesPerConn      int64
	connectTimeout       time.Duration
	readTimeout          time.Duration
	writerDequeueTimeout time.Duration
	runTimeout           time.Duration
	client               *http.Client
	logger               *logrus.Entry
}

// WithChunkSize overrides CHUNK_SIZE.
func WithChunkSize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithQueueCapacity overrides Q.
func WithQueueCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueCapacity = n
		}
	}
}

// WithMinBytesPerConnection overrides MIN_BYTES_PER_CONNECTION.
func WithMinBytesPerConnection(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.minBytesPerConn = n
		}
	}
}

// WithTimeouts overrides the connect, read, and writer-dequeue timeouts.
func WithTimeouts(connect, read, writerDequeue time.Duration) Option {
	return func(o *options) {
		if connect > 0 {
			o.connectTimeout = connect
		}
		if read > 0 {
			o.readTimeout = read
		}
		if writerDequeue > 0 {
			o.writerDequeueTimeout = writerDequeue
		}
	}
}

// WithRunTimeout overrides the overall run timeout.
func WithRunTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.runTimeout = d
		}
	}
}

// WithHTTPClient overrides the HTTP client used for the probe and range
// requests (tests substitute a fake transport here).
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func defaultOptions() *options {
	return &options{
		chunkSize:            DefaultChunkSize,
		queueCapacity:        DefaultQueueCapacity,
		minBytesPerConn:      DefaultMinBytesPerConnection,
		connectTimeout:       DefaultConnectTimeout,
		readTimeout:          DefaultReadTimeout,
		writerDequeueTimeout: DefaultWriterDequeueTimeout,
		runTimeout:           DefaultRunTimeout,
		client:               http.DefaultClient,
		logger:               logrus.NewEntry(logrus.StandardLogger()),
	}
}

// Coordinator supervises one resumable download.
type Coordinator struct {
	urls       []string
	destPath   string
	requestedN int
	opts       *options
}

// New constructs a Coordinator for downloading urls (mirrors, rotated by
// worker index) to destPath with requestedN range workers (before
// clamping).
func New(urls []string, destPath string, requestedN int, opts ...Option) (*Coordinator, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("coordinator: at least one URL is required")
	}
	if requestedN < 1 {
		return nil, fmt.Errorf("coordinator: requested concurrency must be at least 1, got %d", requestedN)
	}
	if destPath == "" {
		return nil, fmt.Errorf("coordinator: destination path is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Coordinator{urls: urls, destPath: destPath, requestedN: requestedN, opts: o}, nil
}

// partition describes the byte range and chunk span assigned to one worker
// after resume trimming.
type partition struct {
	rangeStart   int64
	rangeEnd     int64
	startChunk   int
	chunkCount   int
	isLastWorker bool
}

// Run executes the full download protocol: probe, load-or-create metadata,
// partition, launch workers, await completion, and clean up on success. It
// writes the spec's literal progress lines to stdout via the supplied
// writer (main.go passes os.Stdout).
func (c *Coordinator) Run(ctx context.Context, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.runTimeout)
	defer cancel()

	contentLength, err := c.probeContentLength(ctx)
	if err != nil {
		return fmt.Errorf("coordinator: probe: %w", err)
	}

	chunkCount := int((contentLength + c.opts.chunkSize - 1) / c.opts.chunkSize)

	file, err := os.OpenFile(c.destPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("coordinator: open destination %q: %w", c.destPath, err)
	}
	defer file.Close()

	metadata, err := chunkmap.LoadOrNew(c.destPath, chunkCount)
	if err != nil {
		return fmt.Errorf("coordinator: load metadata: %w", err)
	}

	n := c.effectiveN(contentLength)
	if n == 1 {
		fmt.Fprintln(stdout, "Downloading...")
	} else {
		fmt.Fprintf(stdout, "Downloading using %d connections...\n", n)
	}

	snapshot := metadata.Snapshot()
	partitions := partitionAndTrim(chunkCount, n, snapshot, c.opts.chunkSize, contentLength)

	q := queue.New(c.opts.queueCapacity)
	reporter := progress.New(stdout)
	w := writer.New(file, c.destPath, metadata, q, metadata.ChunksRemaining(), c.opts.writerDequeueTimeout, reporter, c.opts.logger)

	g, gctx := errgroup.WithContext(ctx)

	for k, p := range partitions {
		k, p := k, p
		url := mirrors.ForWorker(c.urls, k)
		g.Go(func() error {
			worker := &rangeworker.Worker{
				ID:           k,
				URL:          url,
				RangeStart:   p.rangeStart,
				RangeEnd:     p.rangeEnd,
				Snapshot:     snapshot,
				ChunkCount:   p.chunkCount,
				IsLastWorker: p.isLastWorker,
				Queue:        q,
				Client:       c.opts.client,
				Config: rangeworker.Config{
					ChunkSize:      c.opts.chunkSize,
					ConnectTimeout: c.opts.connectTimeout,
					ReadTimeout:    c.opts.readTimeout,
				},
				Log: c.opts.logger,
			}
			return worker.Run(gctx)
		})
	}

	g.Go(func() error {
		return w.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if err := chunkmap.Remove(c.destPath); err != nil {
		return fmt.Errorf("coordinator: cleanup: %w", err)
	}

	fmt.Fprintln(stdout, "Download succeeded.")
	return nil
}

// probeContentLength issues a single GET to the first URL and reads
// Content-Length. A value <= 0 is fatal.
func (c *Coordinator) probeContentLength(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.urls[0], nil)
	if err != nil {
		return 0, fmt.Errorf("build probe request: %w", err)
	}

	resp, err := c.opts.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()

	length := resp.ContentLength
	if length <= 0 {
		if _, _, total, ok := rangehttp.ParseContentRange(resp.Header.Get("Content-Range")); ok && total > 0 {
			length = total
		}
	}
	if length <= 0 {
		return 0, fmt.Errorf("Content-Length is zero or unknown")
	}

	c.opts.logger.Debugf("probed content length: %s", units.HumanSize(float64(length)))
	return length, nil
}

// effectiveN applies the clamping rule: if content_length / requestedN <=
// MIN_BYTES_PER_CONNECTION, fall back to content_length / MIN_BYTES_PER_CONNECTION,
// raised to at least 1.
func (c *Coordinator) effectiveN(contentLength int64) int {
	n := c.requestedN
	if contentLength/int64(n) <= c.opts.minBytesPerConn {
		n = int(contentLength / c.opts.minBytesPerConn)
		if n < 1 {
			n = 1
		}
	}
	return n
}

// partitionAndTrim computes each worker's byte range and chunk span, then
// advances past any prefix of already-done chunks (resume trimming is
// prefix-only; interior holes are left for the worker to skip).
func partitionAndTrim(chunkCount, n int, snapshot chunkmap.Snapshot, chunkSize, contentLength int64) []partition {
	chunksPerWorker := chunkCount / n
	out := make([]partition, n)

	for k := 0; k < n; k++ {
		startChunk := k * chunksPerWorker
		endChunkExclusive := startChunk + chunksPerWorker
		isLast := k == n-1
		if isLast {
			endChunkExclusive = chunkCount
		}

		for startChunk < endChunkExclusive && snapshot.IsSet(startChunk) {
			startChunk++
		}

		rangeStart := int64(startChunk) * chunkSize
		var rangeEnd int64
		if isLast {
			rangeEnd = contentLength - 1
		} else {
			rangeEnd = int64(endChunkExclusive)*chunkSize - 1
		}

		out[k] = partition{
			rangeStart:   rangeStart,
			rangeEnd:     rangeEnd,
			startChunk:   startChunk,
			chunkCount:   endChunkExclusive - startChunk,
			isLastWorker: isLast,
		}
	}
	return out
}
