package mirrors_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alonweissfeld/download-manager/internal/mirrors"
)

func TestResolveSingleURL(t *testing.T) {
	urls, err := mirrors.Resolve("https://example.com/file.bin")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(urls) != 1 || urls[0] != "https://example.com/file.bin" {
		t.Fatalf("urls = %v, want single URL unchanged", urls)
	}
}

func TestResolveURLListFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mirrors.txt")
	content := "https://a.example/file.bin\n\nhttps://b.example/file.bin\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	urls, err := mirrors.Resolve(path)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"https://a.example/file.bin", "https://b.example/file.bin"}
	if len(urls) != len(want) {
		t.Fatalf("urls = %v, want %v", urls, want)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("urls[%d] = %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestResolveDirectoryIsError(t *testing.T) {
	dir := t.TempDir()
	if _, err := mirrors.Resolve(dir); err == nil {
		t.Fatalf("Resolve on a directory should fail")
	}
}

func TestStripFormatChars(t *testing.T) {
	// U+200B ZERO WIDTH SPACE is category Cf.
	in := "https://example.com/​file.bin"
	want := "https://example.com/file.bin"
	if got := mirrors.StripFormatChars(in); got != want {
		t.Fatalf("StripFormatChars(%q) = %q, want %q", in, got, want)
	}
}

func TestForWorkerRotation(t *testing.T) {
	urls := []string{"u0", "u1", "u2", "u3"}
	want := []string{"u0", "u1", "u2", "u3", "u0", "u1"}
	for k, w := range want {
		if got := mirrors.ForWorker(urls, k); got != w {
			t.Fatalf("ForWorker(urls, %d) = %q, want %q", k, got, w)
		}
	}
}
