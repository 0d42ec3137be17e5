package progress_test

import (
	"bytes"
	"testing"

	"github.com/alonweissfeld/download-manager/internal/progress"
)

func TestReportsOnStrictIncreaseOnly(t *testing.T) {
	var buf bytes.Buffer
	r := progress.New(&buf)

	for _, p := range []int{0, 10, 10, 10, 25, 25, 100} {
		if err := r.Report(p); err != nil {
			t.Fatalf("Report(%d): %v", p, err)
		}
	}

	want := "Downloaded 10%\nDownloaded 25%\nDownloaded 100%\n"
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}
}

func TestZeroPercentNeverEmitted(t *testing.T) {
	var buf bytes.Buffer
	r := progress.New(&buf)
	if err := r.Report(0); err != nil {
		t.Fatalf("Report(0): %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("Report(0) should not write anything, got %q", buf.String())
	}
}
