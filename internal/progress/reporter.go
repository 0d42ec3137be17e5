// Package progress reports download progress to a writer, throttled so
// that only a strict percent increase produces a line.
package progress

import (
	"fmt"
	"io"
)

// Reporter emits "Downloaded P%" lines. Unlike the teacher's channel-fed
// Reporter (which throttles by elapsed time and byte count across
// goroutines), this one has a single in-process caller — the writer worker
// — so it throttles directly on the percent value with no goroutine or
// channel hand-off needed.
type Reporter struct {
	out  io.Writer
	last int
}

// New creates a Reporter that writes to out. The first percent reported is
// always emitted unless it is 0, since 0% carries no information.
func New(out io.Writer) *Reporter {
	return &Reporter{out: out, last: 0}
}

// Report writes "Downloaded P%\n" if percent is strictly greater than the
// last percent reported; otherwise it is a no-op.
func (r *Reporter) Report(percent int) error {
	if percent <= r.last {
		return nil
	}
	r.last = percent
	_, err := fmt.Fprintf(r.out, "Downloaded %d%%\n", percent)
	return err
}
