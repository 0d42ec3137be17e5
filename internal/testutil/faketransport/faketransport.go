// Package faketransport provides an in-memory http.RoundTripper that serves
// range-capable fake resources, for exercising rangeworker and coordinator
// without a real network.
package faketransport

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// Resource is a fake range-servable HTTP resource.
type Resource struct {
	Data          io.ReaderAt
	Length        int64
	SupportsRange bool
	ETag          string
	Headers       http.Header
}

// Transport is a test http.RoundTripper that serves fake Resources keyed by
// request URL.
type Transport struct {
	mu        sync.Mutex
	resources map[string]*Resource
	requests  []http.Request
	failAfter map[string]int
}

// New creates an empty Transport.
func New() *Transport {
	return &Transport{
		resources: make(map[string]*Resource),
		failAfter: make(map[string]int),
	}
}

// Add registers a resource to be served for url.
func (tr *Transport) Add(url string, r *Resource) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.resources[url] = r
}

// SetFailAfter makes every response body served for url (ranged or not)
// fail with ErrFlaky once it has delivered n bytes, simulating a connection
// drop mid-chunk.
func (tr *Transport) SetFailAfter(url string, n int) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.failAfter[url] = n
}

// Requests returns a copy of every request observed so far, in order.
func (tr *Transport) Requests() []http.Request {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]http.Request, len(tr.requests))
	copy(out, tr.requests)
	return out
}

// RoundTrip implements http.RoundTripper.
func (tr *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tr.mu.Lock()
	reqCopy := *req
	if req.Header != nil {
		reqCopy.Header = req.Header.Clone()
	}
	tr.requests = append(tr.requests, reqCopy)
	resource, ok := tr.resources[req.URL.String()]
	failAfter := tr.failAfter[req.URL.String()]
	tr.mu.Unlock()

	if !ok {
		return plainResponse(req, http.StatusNotFound, nil), nil
	}

	if req.Method == http.MethodHead {
		return tr.full(req, resource, nil, http.StatusOK), nil
	}

	if rng := req.Header.Get("Range"); rng != "" && resource.SupportsRange {
		return tr.handleRange(req, resource, rng, failAfter)
	}

	var body io.ReadCloser = io.NopCloser(io.NewSectionReader(resource.Data, 0, resource.Length))
	if failAfter > 0 {
		body = NewFlakyReader(resource.Data, resource.Length, failAfter)
	}
	return tr.full(req, resource, body, http.StatusOK), nil
}

func (tr *Transport) handleRange(req *http.Request, resource *Resource, rangeHeader string, failAfter int) (*http.Response, error) {
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		return plainResponse(req, http.StatusBadRequest, nil), nil
	}
	spec := strings.TrimPrefix(rangeHeader, "bytes=")
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return plainResponse(req, http.StatusBadRequest, nil), nil
	}

	var start, end int64
	var err error
	if parts[0] != "" {
		if start, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
			return plainResponse(req, http.StatusBadRequest, nil), nil
		}
	}
	if parts[1] != "" {
		if end, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
			return plainResponse(req, http.StatusBadRequest, nil), nil
		}
	} else {
		end = resource.Length - 1
	}

	if start < 0 || end >= resource.Length || start > end {
		resp := plainResponse(req, http.StatusRequestedRangeNotSatisfiable, nil)
		resp.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", resource.Length))
		return resp, nil
	}

	size := end - start + 1
	var body io.ReadCloser = io.NopCloser(io.NewSectionReader(resource.Data, start, size))
	if failAfter > 0 {
		body = NewFlakyReader(io.NewSectionReader(resource.Data, start, size), size, failAfter)
	}

	resp := tr.full(req, resource, body, http.StatusPartialContent)
	resp.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, resource.Length))
	resp.ContentLength = size
	return resp, nil
}

func (tr *Transport) full(req *http.Request, resource *Resource, body io.ReadCloser, status int) *http.Response {
	if body == nil {
		body = io.NopCloser(bytes.NewReader(nil))
	}
	resp := &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Body:       body,
		Request:    req,
	}
	if resource.SupportsRange {
		resp.Header.Set("Accept-Ranges", "bytes")
	}
	if resource.ETag != "" {
		resp.Header.Set("ETag", resource.ETag)
	}
	for k, v := range resource.Headers {
		resp.Header[k] = v
	}
	if status == http.StatusOK {
		resp.ContentLength = resource.Length
		resp.Header.Set("Content-Length", strconv.FormatInt(resource.Length, 10))
	}
	return resp
}

func plainResponse(req *http.Request, status int, body io.ReadCloser) *http.Response {
	if body == nil {
		body = io.NopCloser(bytes.NewReader(nil))
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Body:       body,
		Request:    req,
	}
}
