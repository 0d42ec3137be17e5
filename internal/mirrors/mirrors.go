// Package mirrors resolves the CLI's first positional argument into one or
// more source URLs and assigns them to range workers by rotation.
package mirrors

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Resolve interprets arg as either a path to an existing regular file (read
// line-by-line as mirror URLs) or, when no such path exists, as a single
// URL. An existing path that is not a regular file (e.g. a directory) is an
// error. Every URL is stripped of Unicode format characters (category Cf)
// before being returned.
func Resolve(arg string) ([]string, error) {
	info, err := os.Stat(arg)
	if err == nil && info.Mode().IsRegular() {
		return readURLList(arg)
	}
	if err == nil && !info.Mode().IsRegular() {
		return nil, fmt.Errorf("mirrors: %q is not a regular file", arg)
	}
	return []string{StripFormatChars(arg)}, nil
}

func readURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mirrors: open URL list %q: %w", path, err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		urls = append(urls, StripFormatChars(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mirrors: read URL list %q: %w", path, err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("mirrors: URL list %q contains no URLs", path)
	}
	return urls, nil
}

// StripFormatChars removes every rune in Unicode category Cf (format
// characters — e.g. zero-width joiners, bidi control marks) from s, the
// same rune-by-rune classification approach used elsewhere in this stack
// for cleaning untrusted strings before use.
func StripFormatChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.Is(unicode.Cf, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ForWorker returns the URL assigned to worker k, rotating through urls.
func ForWorker(urls []string, k int) string {
	return urls[k%len(urls)]
}
