package assets

import (
	"context"
	"io"
	"strings"

	"github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/render"
)

// PageContextScriptBegin opens the script tag holding the serialized page
// context. It appears exactly once in a rendered page.
const PageContextScriptBegin = `<script id="pagerender_pageContext" type="application/json">`

// HTMLTransformer rewrites the HTML before assets are injected. The
// development server uses it to add its live-reload client.
type HTMLTransformer interface {
	TransformHTML(ctx context.Context, urlPathname, html string) (string, error)
}

// HTMLTransformerFunc adapts a function to HTMLTransformer.
type HTMLTransformerFunc func(ctx context.Context, urlPathname, html string) (string, error)

// TransformHTML implements HTMLTransformer.
func (f HTMLTransformerFunc) TransformHTML(ctx context.Context, urlPathname, html string) (string, error) {
	return f(ctx, urlPathname, html)
}

// Injection holds what gets injected into a rendered document.
type Injection struct {
	URLPathname string
	Assets      []PageAsset
	Transformer HTMLTransformer

	// SkipAssets leaves scripts and links out. The page context is still
	// injected.
	SkipAssets bool

	// PageContext returns the serialized page context. It is called once
	// the document has been fully rendered.
	PageContext func(ctx context.Context) (string, error)
}

// InjectBeforeRender makes sure the document has a head, applies the
// transformer and injects the link tags and scripts.
func InjectBeforeRender(ctx context.Context, html string, in Injection) (string, error) {
	html = render.EnsureHead(html)
	if in.Transformer != nil {
		var err error
		if html, err = in.Transformer.TransformHTML(ctx, in.URLPathname, html); err != nil {
			return "", err
		}
	}
	if in.SkipAssets {
		return html, nil
	}
	for _, a := range in.Assets {
		if a.AssetType == AssetScript {
			html = render.InjectAtHTMLEnd(html, Tag(a))
		}
	}
	return injectLinks(html, in.Assets), nil
}

func injectLinks(html string, assets []PageAsset) string {
	var links strings.Builder
	for _, a := range assets {
		if a.AssetType != AssetScript {
			links.WriteString(Tag(a))
		}
	}
	if links.Len() == 0 {
		return html
	}
	if strings.Contains(html, "</head>") {
		return render.InjectAtClosingTag(html, "</head>", links.String())
	}
	return render.InjectAtHTMLBegin(html, links.String())
}

// InjectAfterRender injects the serialized page context at the end of the
// document. It fails when the document already carries one.
func InjectAfterRender(html, pageContextJSON string) (string, error) {
	if strings.Contains(html, PageContextScriptBegin) {
		return "", errors.New(errors.CodeDoubleInjection).
			WithDetail("the rendered HTML already contains the serialized page context")
	}
	return render.InjectAtHTMLEnd(html, pageContextScript(pageContextJSON)), nil
}

func pageContextScript(pageContextJSON string) string {
	return PageContextScriptBegin + pageContextJSON + "</script>"
}

// InjectDocument injects assets and the page context into doc. A streamed
// document gets its links injected into the leading text and its scripts
// and page context appended after the stream ends.
func InjectDocument(ctx context.Context, doc *render.Document, in Injection) (*render.Document, error) {
	if !doc.HasStream() {
		html, err := doc.String()
		if err != nil {
			return nil, err
		}
		if html, err = InjectBeforeRender(ctx, html, in); err != nil {
			return nil, err
		}
		if in.PageContext != nil {
			s, err := in.PageContext(ctx)
			if err != nil {
				return nil, err
			}
			if html, err = InjectAfterRender(html, s); err != nil {
				return nil, err
			}
		}
		return render.DangerouslySkipEscape(html), nil
	}

	head, rest := doc.Head()
	if strings.Contains(head, PageContextScriptBegin) {
		return nil, errors.New(errors.CodeDoubleInjection).
			WithDetail("the rendered HTML already contains the serialized page context")
	}
	if head != "" {
		head = render.EnsureHead(head)
	}
	if in.Transformer != nil {
		var err error
		if head, err = in.Transformer.TransformHTML(ctx, in.URLPathname, head); err != nil {
			return nil, err
		}
	}
	if !in.SkipAssets {
		head = injectLinks(head, in.Assets)
	}

	parts := []render.Part{{Text: head}}
	parts = append(parts, rest...)
	parts = append(parts, render.Part{Stream: &tailReader{fn: func() (string, error) {
		var tail strings.Builder
		if !in.SkipAssets {
			for _, a := range in.Assets {
				if a.AssetType == AssetScript {
					tail.WriteString(Tag(a))
				}
			}
		}
		if in.PageContext != nil {
			s, err := in.PageContext(ctx)
			if err != nil {
				return "", err
			}
			tail.WriteString(pageContextScript(s))
		}
		return tail.String(), nil
	}}})
	return render.NewDocument(parts...), nil
}

// tailReader produces its content on first read, after every preceding
// part of the document has been consumed.
type tailReader struct {
	fn  func() (string, error)
	r   io.Reader
	err error
}

func (t *tailReader) Read(p []byte) (int, error) {
	if t.r == nil && t.err == nil {
		s, err := t.fn()
		if err != nil {
			t.err = err
		} else {
			t.r = strings.NewReader(s)
		}
	}
	if t.err != nil {
		return 0, t.err
	}
	return t.r.Read(p)
}
