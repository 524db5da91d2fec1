package server

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	udiderrors "getudid/internal/errors"
)

var headerSeparator = []byte("\r\n\r\n")

var (
	errRequestLine    = udiderrors.New(udiderrors.MalformedRequest, "request line has fewer than two fields", nil)
	errHeaderEncoding = udiderrors.New(udiderrors.MalformedRequest, "header section is not valid UTF-8", nil)
)

// Request is the parsed form of one raw request buffer.
type Request struct {
	Method string
	Path   string
	// Header holds the header lines after the request line.
	Header []string
	Body   []byte
}

// ParseRequest splits buf at the first CRLFCRLF into header section and body.
// Without a separator the whole buffer is the header section and the body is
// empty. The first header line is split on single spaces into method and path.
func ParseRequest(buf []byte) (*Request, error) {
	headerData, body := splitHeader(buf)

	if !utf8.Valid(headerData) {
		return nil, errHeaderEncoding
	}

	lines := strings.Split(string(headerData), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}

	fields := strings.Split(lines[0], " ")
	if len(fields) < 2 {
		return nil, errRequestLine
	}

	return &Request{
		Method: fields[0],
		Path:   fields[1],
		Header: lines[1:],
		Body:   body,
	}, nil
}

func splitHeader(buf []byte) (header, body []byte) {
	i := bytes.Index(buf, headerSeparator)
	if i < 0 {
		return buf, nil
	}
	return buf[:i], buf[i+len(headerSeparator):]
}

// declaredLength returns the Content-Length header value, if any.
func declaredLength(header []byte) (int, bool) {
	for _, line := range strings.Split(string(header), "\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// readRequest drains one request from r into a buffer of at most max bytes.
// The first read decides the request unless its header section is complete and
// declares a longer body, in which case reading continues until the body is
// complete, the peer stops sending, or max is reached.
func readRequest(r io.Reader, max int) ([]byte, error) {
	buf := make([]byte, max)

	n, err := r.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	for err == nil && n < max {
		header, body := splitHeader(buf[:n])
		if len(header) == n {
			break
		}
		want, ok := declaredLength(header)
		if !ok || len(body) >= want {
			break
		}

		var m int
		m, err = r.Read(buf[n:])
		n += m
	}

	return buf[:n], nil
}
