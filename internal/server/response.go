package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"getudid/internal/identity"
	"getudid/internal/profile"
)

type header struct {
	name, value string
}

// response is one complete HTTP/1.1 response, written in a single write.
// Every response closes the connection.
type response struct {
	status  int
	headers []header
	body    []byte
}

// Bytes renders the status line, headers and body.
func (r response) Bytes() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", r.status, http.StatusText(r.status))
	for _, h := range r.headers {
		buf.WriteString(h.name)
		buf.WriteString(": ")
		buf.WriteString(h.value)
		buf.WriteString("\r\n")
	}
	buf.WriteString("Content-Length: ")
	buf.WriteString(strconv.Itoa(len(r.body)))
	buf.WriteString("\r\nConnection: close\r\n\r\n")
	buf.Write(r.body)
	return buf.Bytes()
}

// fileResponse transfers the configuration profile verbatim as an attachment.
func fileResponse(name string, data []byte) response {
	return response{
		status: http.StatusOK,
		headers: []header{
			{"Content-Type", profile.ContentType},
			{"Content-Disposition", fmt.Sprintf("attachment; filename=%q", name)},
		},
		body: data,
	}
}

// redirectResponse sends the client to location with an empty body.
func redirectResponse(location string) response {
	return response{
		status:  http.StatusMovedPermanently,
		headers: []header{{"Location", location}},
	}
}

// pageResponse renders the status page for rec, or the invalid page when rec is nil.
func pageResponse(status int, rec *identity.Record) response {
	return response{
		status:  status,
		headers: []header{{"Content-Type", "text/html; charset=utf-8"}},
		body:    renderPage(rec),
	}
}

// errorResponse is the 400 invalid page.
func errorResponse() response {
	return pageResponse(http.StatusBadRequest, nil)
}

// pingResponse answers liveness probes.
func pingResponse() response {
	return response{status: http.StatusOK}
}
