// Package httpcache implements a persistent, freshness-aware HTTP response
// cache. Responses are stored one file per request identity, framed as plain
// HTTP/1.1 wire data so entries stay inspectable with standard HTTP tooling.
package httpcache

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Header is a single response header. Headers keep their original order,
// so a decoded response re-encodes byte for byte.
type Header struct {
	Name  string
	Value string
}

// Response is a cached HTTP response. It is a plain value: reading a cache
// entry always decodes the file fresh, nothing mutates a stored response.
type Response struct {
	StatusCode int
	Reason     string
	Headers    []Header
	Body       []byte
}

// Header returns the first value of the named header, matched
// case-insensitively.
func (r *Response) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// SetHeader replaces the first occurrence of the named header, or appends
// it when absent.
func (r *Response) SetHeader(name, value string) {
	for i, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			r.Headers[i].Value = value
			return
		}
	}
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
}

// DeleteHeader removes every occurrence of the named header.
func (r *Response) DeleteHeader(name string) {
	kept := r.Headers[:0]
	for _, h := range r.Headers {
		if !strings.EqualFold(h.Name, name) {
			kept = append(kept, h)
		}
	}
	r.Headers = kept
}

// Date returns the response's Date header as a time. Every persisted entry
// must carry a parseable Date; an error here means the entry is corrupt.
func (r *Response) Date() (time.Time, error) {
	v, ok := r.Header("Date")
	if !ok {
		return time.Time{}, fmt.Errorf("response has no Date header")
	}
	t, err := time.Parse(http.TimeFormat, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse Date header %q: %w", v, err)
	}
	return t, nil
}

// ExpiresAt returns the time the response stops being fresh. A missing or
// unparseable Expires header means the response is already expired, which
// the zero time represents.
func (r *Response) ExpiresAt() time.Time {
	v, ok := r.Header("Expires")
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(http.TimeFormat, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Encode serializes the response as literal HTTP/1.1 framing: status line,
// one "Name: Value" line per header in original order, a blank line, then
// the raw body bytes.
func Encode(r *Response) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\n", r.StatusCode, r.Reason)
	for _, h := range r.Headers {
		fmt.Fprintf(&buf, "%s: %s\n", h.Name, h.Value)
	}
	buf.WriteByte('\n')
	buf.Write(r.Body)
	return buf.Bytes()
}

// Decode parses bytes produced by Encode back into a Response. The status
// line and headers are split on newlines up to the first blank line;
// everything after is the body, untouched.
func Decode(data []byte) (*Response, error) {
	head, body, found := bytes.Cut(data, []byte("\n\n"))
	if !found {
		return nil, fmt.Errorf("no blank line separating headers from body")
	}

	lines := strings.Split(string(head), "\n")
	statusLine := lines[0]

	rest, ok := strings.CutPrefix(statusLine, "HTTP/1.1 ")
	if !ok {
		return nil, fmt.Errorf("malformed status line %q", statusLine)
	}
	codeStr, reason, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return nil, fmt.Errorf("malformed status code in %q: %w", statusLine, err)
	}

	headers := make([]Header, 0, len(lines)-1)
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, fmt.Errorf("malformed header line %q", line)
		}
		headers = append(headers, Header{Name: name, Value: value})
	}

	return &Response{
		StatusCode: code,
		Reason:     reason,
		Headers:    headers,
		Body:       body,
	}, nil
}
