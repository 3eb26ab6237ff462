package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// ResponseWriter is a minimal http.ResponseWriter that buffers a
// response in memory, used to run promhttp's handler inside
// gomitmproxy's OnRequest callback instead of a real net/http server.
type ResponseWriter struct {
	header http.Header
	buffer bytes.Buffer
	status int
}

func NewResponseWriter() *ResponseWriter {
	return &ResponseWriter{
		header: make(http.Header),
		status: http.StatusOK,
	}
}

func (r *ResponseWriter) Header() http.Header { return r.header }

func (r *ResponseWriter) Write(p []byte) (int, error) { return r.buffer.Write(p) }

func (r *ResponseWriter) WriteHeader(statusCode int) { r.status = statusCode }

// Response builds the *http.Response gomitmproxy hands back to the client.
func (r *ResponseWriter) Response(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode: r.status,
		Status:     fmt.Sprintf("%d %s", r.status, http.StatusText(r.status)),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     r.header,
		Body:       io.NopCloser(&r.buffer),
		Request:    req,
	}
}
