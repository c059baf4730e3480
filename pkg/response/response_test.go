package response

import (
	"context"
	stderrors "errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-dev/pagerender/internal/errors"
)

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestStringBody(t *testing.T) {
	r := New("<html></html>", 200, ContentTypeHTML)

	body, err := r.Body()
	if err != nil {
		t.Fatalf("Body() error = %v", err)
	}
	if body != "<html></html>" {
		t.Errorf("Body() = %q", body)
	}
	if r.IsStream() {
		t.Error("IsStream() = true")
	}

	got, err := r.GetBody(context.Background())
	if err != nil || got != body {
		t.Errorf("GetBody() = %q, %v", got, err)
	}
}

func TestStreamBodyRequiresAsyncAccessor(t *testing.T) {
	r := NewStream(strings.NewReader("<p>streamed</p>"), 200, ContentTypeHTML, nil)

	_, err := r.Body()
	if !errors.HasCode(err, errors.CodeStreamBody) {
		t.Fatalf("Body() error = %v, want stream body usage error", err)
	}
	if !strings.Contains(err.Error(), "GetBody()") {
		t.Errorf("error should point to GetBody(): %v", err)
	}

	got, err := r.GetBody(context.Background())
	if err != nil {
		t.Fatalf("GetBody() error = %v", err)
	}
	if got != "<p>streamed</p>" {
		t.Errorf("GetBody() = %q", got)
	}

	if _, err := r.GetBody(context.Background()); !stderrors.Is(err, ErrStreamConsumed) {
		t.Errorf("second GetBody() error = %v, want ErrStreamConsumed", err)
	}
}

func TestPipeFlushes(t *testing.T) {
	r := NewStream(strings.NewReader("chunk"), 200, ContentTypeHTML, nil)
	rec := httptest.NewRecorder()

	if err := r.Pipe(rec); err != nil {
		t.Fatalf("Pipe() error = %v", err)
	}
	if rec.Body.String() != "chunk" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if !rec.Flushed {
		t.Error("Pipe() should flush an http.Flusher")
	}
}

func TestStreamErrorIsRecordedNotReturned(t *testing.T) {
	boom := stderrors.New("boom")
	var recorded error
	r := NewStream(&failingReader{data: []byte("<h1>par"), err: boom}, 200, ContentTypeHTML, func(err error) {
		recorded = err
	})

	var b strings.Builder
	if err := r.Pipe(&b); err != nil {
		t.Fatalf("Pipe() error = %v, want nil", err)
	}
	if b.String() != "<h1>par" {
		t.Errorf("body = %q, want truncated output", b.String())
	}
	if recorded != boom {
		t.Errorf("recorded = %v, want boom", recorded)
	}
}

func TestGetReadableStream(t *testing.T) {
	boom := stderrors.New("boom")
	var recorded error
	r := NewStream(&failingReader{data: []byte("abc"), err: boom}, 200, ContentTypeHTML, func(err error) {
		recorded = err
	})

	rd, err := r.GetReadableStream()
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(rd)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "abc" {
		t.Errorf("data = %q", data)
	}
	if recorded != boom {
		t.Errorf("recorded = %v", recorded)
	}

	s, _ := New("x", 200, ContentTypeHTML).GetReadableStream()
	if b, _ := io.ReadAll(s); string(b) != "x" {
		t.Errorf("string stream = %q", b)
	}
}

func TestDeprecatedAliases(t *testing.T) {
	r := New("legacy", 200, ContentTypeHTML)
	rd, err := r.GetStream()
	if err != nil {
		t.Fatal(err)
	}
	if b, _ := io.ReadAll(rd); string(b) != "legacy" {
		t.Errorf("GetStream() = %q", b)
	}

	var b strings.Builder
	if err := New("legacy", 200, ContentTypeHTML).PipeToWriter(&b); err != nil {
		t.Fatal(err)
	}
	if b.String() != "legacy" {
		t.Errorf("PipeToWriter() = %q", b.String())
	}
}

func TestWriteTo(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := NewRedirect("/login", 302).WriteTo(rec); err != nil {
		t.Fatal(err)
	}
	if rec.Code != 302 {
		t.Errorf("Code = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q", loc)
	}

	rec = httptest.NewRecorder()
	if err := New(`{"a":1}`, 200, ContentTypeJSON).WriteTo(rec); err != nil {
		t.Fatal(err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != ContentTypeJSON {
		t.Errorf("Content-Type = %q", ct)
	}
}
