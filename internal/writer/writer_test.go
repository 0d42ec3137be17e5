package writer_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alonweissfeld/download-manager/internal/chunkmap"
	"github.com/alonweissfeld/download-manager/internal/progress"
	"github.com/alonweissfeld/download-manager/internal/queue"
	"github.com/alonweissfeld/download-manager/internal/writer"
)

func TestWriterDrainsExactIterationsAndPersists(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.bin")

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	meta := chunkmap.New(3)
	q := queue.New(10)

	ctx := context.Background()
	q.Enqueue(ctx, queue.Chunk{Bytes: []byte("AAAA"), FileOffset: 0, Index: 0})
	q.Enqueue(ctx, queue.Chunk{Bytes: []byte("BBBB"), FileOffset: 4, Index: 1})
	q.Enqueue(ctx, queue.Chunk{Bytes: []byte("CCCC"), FileOffset: 8, Index: 2})

	var buf bytes.Buffer
	w := writer.New(f, dest, meta, q, 3, time.Second, progress.New(&buf), nil)

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if meta.ChunksDone() != 3 {
		t.Fatalf("ChunksDone() = %d, want 3", meta.ChunksDone())
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "AAAABBBBCCCC" {
		t.Fatalf("file contents = %q, want %q", got, "AAAABBBBCCCC")
	}

	if _, err := os.Stat(chunkmap.SideCarPath(dest)); err != nil {
		t.Fatalf("side-car should exist after persisting: %v", err)
	}

	if buf.String() != "Downloaded 33%\nDownloaded 66%\nDownloaded 100%\n" {
		t.Fatalf("progress output = %q", buf.String())
	}
}

func TestWriterFatalOnDequeueTimeout(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.bin")
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	meta := chunkmap.New(1)
	q := queue.New(1)

	w := writer.New(f, dest, meta, q, 1, 20*time.Millisecond, nil, nil)
	if err := w.Run(context.Background()); err == nil {
		t.Fatalf("expected a fatal error on dequeue timeout")
	}
}

func TestWriterZeroIterationsWhenAllDone(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.bin")
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	meta := chunkmap.New(0)
	q := queue.New(1)

	w := writer.New(f, dest, meta, q, 0, time.Second, nil, nil)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run with zero iterations should succeed trivially: %v", err)
	}
}
