// Package rangehttp provides small helpers for building and parsing HTTP
// byte-range headers, shared by the coordinator's probe request and every
// range worker's GET.
package rangehttp

import (
	"fmt"
	"strconv"
	"strings"
)

// Header formats a "Range: bytes=start-end" value for an inclusive byte
// range.
func Header(start, end int64) string {
	return fmt.Sprintf("bytes=%d-%d", start, end)
}

// ParseContentRange parses a "Content-Range: bytes start-end/total" header
// value. It returns (start, end, total, ok); total is -1 when the server
// reported it as "*" (unknown).
func ParseContentRange(h string) (start, end, total int64, ok bool) {
	h = strings.ToLower(strings.TrimSpace(h))
	if !strings.HasPrefix(h, "bytes ") {
		return 0, -1, -1, false
	}
	body := strings.TrimSpace(h[len("bytes "):])
	seTotal := strings.SplitN(body, "/", 2)
	if len(seTotal) != 2 {
		return 0, -1, -1, false
	}
	se := strings.SplitN(strings.TrimSpace(seTotal[0]), "-", 2)
	if len(se) != 2 {
		return 0, -1, -1, false
	}
	s, err1 := strconv.ParseInt(strings.TrimSpace(se[0]), 10, 64)
	e, err2 := strconv.ParseInt(strings.TrimSpace(se[1]), 10, 64)
	if err1 != nil || err2 != nil {
		return 0, -1, -1, false
	}
	totalStr := strings.TrimSpace(seTotal[1])
	t := int64(-1)
	if totalStr != "*" {
		var err3 error
		t, err3 = strconv.ParseInt(totalStr, 10, 64)
		if err3 != nil {
			return 0, -1, -1, false
		}
	}
	return s, e, t, true
}
