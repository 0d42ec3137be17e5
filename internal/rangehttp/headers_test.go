package rangehttp_test

import (
	"testing"

	"github.com/alonweissfeld/download-manager/internal/rangehttp"
)

func TestHeader(t *testing.T) {
	if got, want := rangehttp.Header(0, 65535), "bytes=0-65535"; got != want {
		t.Fatalf("Header() = %q, want %q", got, want)
	}
}

func TestParseContentRange(t *testing.T) {
	start, end, total, ok := rangehttp.ParseContentRange("bytes 0-1023/2048")
	if !ok || start != 0 || end != 1023 || total != 2048 {
		t.Fatalf("got (%d,%d,%d,%v), want (0,1023,2048,true)", start, end, total, ok)
	}
}

func TestParseContentRangeUnknownTotal(t *testing.T) {
	_, _, total, ok := rangehttp.ParseContentRange("bytes 0-1023/*")
	if !ok || total != -1 {
		t.Fatalf("got total=%d ok=%v, want -1,true", total, ok)
	}
}

func TestParseContentRangeMalformed(t *testing.T) {
	for _, h := range []string{"", "garbage", "bytes 0/1024", "bytes a-b/1024"} {
		if _, _, _, ok := rangehttp.ParseContentRange(h); ok {
			t.Fatalf("ParseContentRange(%q) = ok, want failure", h)
		}
	}
}
