// Package chunkmap tracks which fixed-size chunks of a download have been
// durably written to disk, and persists that state to a side-car file so an
// interrupted run can resume without re-fetching completed chunks.
package chunkmap

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// sideCarSuffix is appended to the destination path to locate the metadata
// file, per the spec's "<destination>.tmp" convention.
const sideCarSuffix = ".tmp"

// onDisk is the JSON-serializable form of a Metadata. Bitmap is packed one
// bit per chunk (big-endian within each byte) and base64-encoded so the file
// stays a single flat JSON document and round-trips deterministically.
type onDisk struct {
	ChunkCount int    `json:"chunk_count"`
	ChunksDone int    `json:"chunks_done"`
	Bitmap     string `json:"bitmap"`
}

// Metadata is the in-memory record of which chunks of a file are durably on
// disk. It is exclusively owned and mutated by the writer worker; range
// workers only ever see an immutable snapshot (see Snapshot).
type Metadata struct {
	mu         sync.Mutex
	chunkCount int
	chunksDone int
	bitmap     []bool
}

// New creates a fresh Metadata with every chunk marked not-done.
func New(chunkCount int) *Metadata {
	return &Metadata{
		chunkCount: chunkCount,
		bitmap:     make([]bool, chunkCount),
	}
}

// LoadOrNew returns the Metadata decoded from the side-car next to destPath,
// provided it exists and its chunk_count matches chunkCount. Any decode
// failure, or a mismatched chunk count, is non-fatal: it logs nothing itself
// (callers decide whether to log) and falls through to a fresh Metadata.
func LoadOrNew(destPath string, chunkCount int) (*Metadata, error) {
	raw, err := os.ReadFile(SideCarPath(destPath))
	if err != nil {
		return New(chunkCount), nil
	}

	var d onDisk
	if err := json.Unmarshal(raw, &d); err != nil {
		return New(chunkCount), nil
	}
	if d.ChunkCount != chunkCount {
		return New(chunkCount), nil
	}

	bitmapBytes, err := base64.StdEncoding.DecodeString(d.Bitmap)
	if err != nil || len(bitmapBytes) < byteLen(d.ChunkCount) {
		return New(chunkCount), nil
	}

	bitmap := unpackBits(bitmapBytes, d.ChunkCount)
	// Trust the bits over the cached cardinality field; a mismatch means
	// the file was torn or hand-edited, but the bits are still usable.
	done := popcount(bitmap)

	return &Metadata{
		chunkCount: d.ChunkCount,
		chunksDone: done,
		bitmap:     bitmap,
	}, nil
}

// SideCarPath returns the path of the metadata file for a given destination.
func SideCarPath(destPath string) string {
	return destPath + sideCarSuffix
}

// ChunkCount returns the total number of chunks tracked.
func (m *Metadata) ChunkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunkCount
}

// ChunksDone returns the number of chunks durably written so far.
func (m *Metadata) ChunksDone() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunksDone
}

// ChunksRemaining returns chunk_count - chunks_done.
func (m *Metadata) ChunksRemaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunkCount - m.chunksDone
}

// Percent returns floor(100 * chunks_done / chunk_count). Preserves the
// reference implementation's integer-truncation rounding exactly.
func (m *Metadata) Percent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunkCount == 0 {
		return 100
	}
	return int(math.Floor(100 * float64(m.chunksDone) / float64(m.chunkCount)))
}

// IsSet reports whether chunk i is already marked done.
func (m *Metadata) IsSet(i int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bitmap[i]
}

// Mark sets bitmap[i] true and increments chunks_done. The caller must not
// call Mark twice for the same index; Metadata does not guard against it.
func (m *Metadata) Mark(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bitmap[i] = true
	m.chunksDone++
}

// Snapshot produces an immutable copy of the bitmap for publication to range
// workers. Workers consult it once at startup; they never observe writes
// made to the live Metadata during the run.
func (m *Metadata) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]bool, len(m.bitmap))
	copy(cp, m.bitmap)
	return Snapshot{bits: cp}
}

// Persist serializes Metadata and writes it through to the side-car path at
// destPath using a temp-file-then-rename protocol: the document is written
// to a randomly-suffixed temp file in the same directory, fsynced, and
// atomically renamed over the side-car. A rename failure is swallowed — the
// next successful chunk will retry the persist.
func (m *Metadata) Persist(destPath string) error {
	m.mu.Lock()
	d := onDisk{
		ChunkCount: m.chunkCount,
		ChunksDone: m.chunksDone,
		Bitmap:     base64.StdEncoding.EncodeToString(packBits(m.bitmap)),
	}
	m.mu.Unlock()

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	path := SideCarPath(destPath)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create metadata directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp1-*")
	if err != nil {
		return fmt.Errorf("create temporary metadata file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temporary metadata file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temporary metadata file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temporary metadata file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		// Rename failures are swallowed by contract: the next
		// successful chunk retries the persist.
		cleanup()
		return nil
	}
	return nil
}

// Remove deletes the side-car file. It fails only if the file is already
// absent, which the caller (after a successful run) treats as fatal.
func Remove(destPath string) error {
	if err := os.Remove(SideCarPath(destPath)); err != nil {
		return fmt.Errorf("remove side-car: %w", err)
	}
	return nil
}

// Snapshot is an immutable, read-only view of a bitmap captured at
// coordinator startup and published to range workers.
type Snapshot struct {
	bits []bool
}

// IsSet reports whether chunk i was already done at snapshot time.
func (s Snapshot) IsSet(i int) bool {
	return s.bits[i]
}

// Len returns the number of chunks covered by the snapshot.
func (s Snapshot) Len() int {
	return len(s.bits)
}

func byteLen(chunkCount int) int {
	return (chunkCount + 7) / 8
}

func packBits(bits []bool) []byte {
	out := make([]byte, byteLen(len(bits)))
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

func unpackBits(packed []byte, chunkCount int) []bool {
	out := make([]bool, chunkCount)
	for i := range out {
		out[i] = packed[i/8]&(1<<uint(7-i%8)) != 0
	}
	return out
}

func popcount(bits []bool) int {
	n := 0
	for _, b := range bits {
		if b {
			n++
		}
	}
	return n
}
