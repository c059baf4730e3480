// Package response wraps a rendered document into an HTTP response object.
//
// A response body is either a string or a stream. Strings are available
// synchronously through Body; streams must be consumed with GetBody, Pipe or
// GetReadableStream. Errors raised by a stream after the status line has been
// sent cannot change the response anymore: they are reported to the
// StreamErrorFunc and the stream is cut short.
package response

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/vango-dev/pagerender/internal/errors"
)

// Content types produced by the renderer.
const (
	ContentTypeHTML = "text/html;charset=utf-8"
	ContentTypeJSON = "application/json"
)

var (
	// ErrStreamConsumed is returned when a stream body is read a second time.
	ErrStreamConsumed = stderrors.New("response: stream already consumed")
)

// StreamErrorFunc receives errors raised while a stream body is read.
type StreamErrorFunc func(err error)

// HTTPResponse is the result of rendering a page.
type HTTPResponse struct {
	// StatusCode is the HTTP status to send.
	StatusCode int

	// ContentType is the value of the Content-Type header.
	ContentType string

	// Header holds extra headers such as Location for redirects.
	Header http.Header

	body     string
	stream   io.Reader
	onError  StreamErrorFunc
	consumed bool
	mu       sync.Mutex
}

// New creates a response with a string body.
func New(body string, statusCode int, contentType string) *HTTPResponse {
	return &HTTPResponse{
		StatusCode:  statusCode,
		ContentType: contentType,
		Header:      http.Header{},
		body:        body,
	}
}

// NewStream creates a response whose body is read from r. onError may be nil.
func NewStream(r io.Reader, statusCode int, contentType string, onError StreamErrorFunc) *HTTPResponse {
	return &HTTPResponse{
		StatusCode:  statusCode,
		ContentType: contentType,
		Header:      http.Header{},
		stream:      r,
		onError:     onError,
	}
}

// NewRedirect creates an empty response redirecting to url.
func NewRedirect(url string, statusCode int) *HTTPResponse {
	r := New("", statusCode, ContentTypeHTML)
	r.Header.Set("Location", url)
	return r
}

// IsStream reports whether the body is a stream.
func (r *HTTPResponse) IsStream() bool {
	return r.stream != nil
}

// Body returns the body of a string response. It fails for stream bodies.
func (r *HTTPResponse) Body() (string, error) {
	if r.stream != nil {
		return "", errors.New(errors.CodeStreamBody)
	}
	return r.body, nil
}

// GetBody returns the full body, draining the stream if there is one.
// A stream that fails midway yields the part read so far; the failure is
// reported to the stream error callback.
func (r *HTTPResponse) GetBody(ctx context.Context) (string, error) {
	if r.stream == nil {
		return r.body, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var b strings.Builder
	if err := r.Pipe(&b); err != nil {
		return b.String(), err
	}
	return b.String(), nil
}

// Pipe writes the body to w, flushing after each chunk when w is an
// http.Flusher. Only write errors are returned.
func (r *HTTPResponse) Pipe(w io.Writer) error {
	if r.stream == nil {
		_, err := io.WriteString(w, r.body)
		return err
	}
	src, err := r.take()
	if err != nil {
		return err
	}

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			r.reportStreamError(readErr)
			return nil
		}
	}
}

// GetReadableStream returns a reader over the body. Stream errors end the
// reader early and are reported to the stream error callback.
func (r *HTTPResponse) GetReadableStream() (io.Reader, error) {
	if r.stream == nil {
		return strings.NewReader(r.body), nil
	}
	src, err := r.take()
	if err != nil {
		return nil, err
	}
	return &guardedReader{src: src, report: r.reportStreamError}, nil
}

var (
	warnGetStream    sync.Once
	warnPipeToWriter sync.Once
)

// GetStream returns the body as a reader.
//
// Deprecated: use GetReadableStream.
func (r *HTTPResponse) GetStream() (io.Reader, error) {
	warnGetStream.Do(func() {
		slog.Warn("HTTPResponse.GetStream() is deprecated, use GetReadableStream() instead")
	})
	return r.GetReadableStream()
}

// PipeToWriter writes the body to w.
//
// Deprecated: use Pipe.
func (r *HTTPResponse) PipeToWriter(w io.Writer) error {
	warnPipeToWriter.Do(func() {
		slog.Warn("HTTPResponse.PipeToWriter() is deprecated, use Pipe() instead")
	})
	return r.Pipe(w)
}

// WriteTo sends the response to an http.ResponseWriter.
func (r *HTTPResponse) WriteTo(w http.ResponseWriter) error {
	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if r.ContentType != "" {
		w.Header().Set("Content-Type", r.ContentType)
	}
	w.WriteHeader(r.StatusCode)
	return r.Pipe(w)
}

func (r *HTTPResponse) take() (io.Reader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consumed {
		return nil, ErrStreamConsumed
	}
	r.consumed = true
	return r.stream, nil
}

func (r *HTTPResponse) reportStreamError(err error) {
	if r.onError != nil {
		r.onError(err)
	}
}

type guardedReader struct {
	src    io.Reader
	report func(error)
	done   bool
}

func (g *guardedReader) Read(p []byte) (int, error) {
	if g.done {
		return 0, io.EOF
	}
	n, err := g.src.Read(p)
	if err != nil && err != io.EOF {
		g.done = true
		g.report(err)
		return n, io.EOF
	}
	return n, err
}
