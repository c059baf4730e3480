package render

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrStreamDocument is returned when a streamed document is read as a string.
var ErrStreamDocument = errors.New("render: document contains a stream")

// Part is one piece of a Document: either text or a stream.
type Part struct {
	Text   string
	Stream io.Reader
}

// IsStream reports whether the part is a stream.
func (p Part) IsStream() bool {
	return p.Stream != nil
}

// Document is HTML that has been escaped on purpose.
type Document struct {
	parts []Part
}

// NewDocument assembles a document from parts. Adjacent text parts are merged.
func NewDocument(parts ...Part) *Document {
	d := &Document{}
	for _, p := range parts {
		d.append(p)
	}
	return d
}

// DangerouslySkipEscape wraps markup that must not be escaped.
func DangerouslySkipEscape(s string) *Document {
	return NewDocument(Part{Text: s})
}

// Stream wraps a reader as a document made of a single streamed part.
func Stream(r io.Reader) *Document {
	return NewDocument(Part{Stream: r})
}

// Escape formats a document. The verbs %s, %v and %d consume one argument
// each; %% emits a percent sign. Unknown verbs are kept literally.
//
// A *Document argument is spliced as is, streams included. Every other
// argument is escaped, readers too: wrap a reader with Stream to splice it.
func Escape(format string, args ...any) *Document {
	d := &Document{}
	var text strings.Builder
	next := 0

	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			text.WriteByte(c)
			continue
		}
		verb := format[i+1]
		switch verb {
		case '%':
			text.WriteByte('%')
			i++
		case 's', 'v', 'd':
			i++
			if next >= len(args) {
				text.WriteString("%!" + string(verb) + "(MISSING)")
				continue
			}
			arg := args[next]
			next++
			switch v := arg.(type) {
			case *Document:
				if v == nil {
					continue
				}
				for _, p := range v.parts {
					if p.IsStream() {
						d.append(Part{Text: text.String()})
						text.Reset()
						d.append(p)
					} else {
						text.WriteString(p.Text)
					}
				}
			default:
				text.WriteString(EscapeHTML(fmt.Sprint(v)))
			}
		default:
			text.WriteByte(c)
		}
	}
	d.append(Part{Text: text.String()})
	return d
}

func (d *Document) append(p Part) {
	if !p.IsStream() {
		if p.Text == "" {
			return
		}
		if n := len(d.parts); n > 0 && !d.parts[n-1].IsStream() {
			d.parts[n-1].Text += p.Text
			return
		}
	}
	d.parts = append(d.parts, p)
}

// Parts returns the parts of the document.
func (d *Document) Parts() []Part {
	return append([]Part(nil), d.parts...)
}

// HasStream reports whether any part of the document is streamed.
func (d *Document) HasStream() bool {
	for _, p := range d.parts {
		if p.IsStream() {
			return true
		}
	}
	return false
}

// String returns the document text. It fails for streamed documents.
func (d *Document) String() (string, error) {
	if d.HasStream() {
		return "", ErrStreamDocument
	}
	var b strings.Builder
	for _, p := range d.parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

// Reader returns a reader over the whole document.
func (d *Document) Reader() io.Reader {
	readers := make([]io.Reader, 0, len(d.parts))
	for _, p := range d.parts {
		if p.IsStream() {
			readers = append(readers, p.Stream)
		} else {
			readers = append(readers, strings.NewReader(p.Text))
		}
	}
	return io.MultiReader(readers...)
}

// Head returns the text before the first stream, and the remaining parts.
func (d *Document) Head() (string, []Part) {
	if len(d.parts) == 0 {
		return "", nil
	}
	if d.parts[0].IsStream() {
		return "", d.Parts()
	}
	return d.parts[0].Text, append([]Part(nil), d.parts[1:]...)
}
