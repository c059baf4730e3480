// Package pagecontext defines the per-request record threaded through the
// render pipeline.
//
// A PageContext is append-only: pipeline stages and hooks contribute
// Addendum values which are merged in. Keys are added or overwritten, never
// deleted. Built-in fields are typed struct fields; everything else lives in
// a string-keyed value bag readable with Get.
package pagecontext

import (
	"net/url"
	"sort"
	"sync"

	"github.com/vango-dev/pagerender/pkg/response"
)

// Addendum is a set of keys to merge into a PageContext.
type Addendum map[string]any

// URLParsed holds the parsed parts of the request URL.
type URLParsed struct {
	Origin   string            `json:"origin,omitempty"`
	Pathname string            `json:"pathname"`
	Search   map[string]string `json:"search"`
	Hash     string            `json:"hash"`
}

// ExportValue is one contribution to an export name by a loaded page file.
type ExportValue struct {
	FilePath    string
	ExportValue any
	IsDefault   bool
}

// PageContext is the state of one render.
type PageContext struct {
	// URLOriginal is the URL as received, including the base URL.
	URLOriginal string

	// URLPathname is the pathname without base URL, used for routing.
	URLPathname string

	// URLParsed is the parsed URL.
	URLParsed *URLParsed

	// HTTPHeaders are the request headers, lower-cased.
	HTTPHeaders map[string]string

	// IsClientSideNavigation is set for pageContext JSON requests.
	IsClientSideNavigation bool

	// PageID identifies the page that matched the URL.
	PageID string

	// RouteParams are the parameters extracted by the route.
	RouteParams map[string]string

	// Is404 is set when the error page renders a "not found" error.
	Is404 *bool

	// AbortReason is the reason passed to abort.Render or abort.RenderStatus.
	AbortReason any

	// AbortStatusCode is the status passed to abort.RenderStatus.
	AbortStatusCode int

	// Exports maps export names to the winning value.
	Exports map[string]any

	// ExportsAll keeps every contribution to each export, page-local first.
	ExportsAll map[string][]ExportValue

	// PassToClient lists the keys serialized into the HTML document.
	PassToClient []string

	// HTTPResponse is set once the render is finished.
	HTTPResponse *response.HTTPResponse

	// ErrorWhileRendering is the error that caused the error page to render.
	ErrorWhileRendering error

	mu                  sync.Mutex
	values              map[string]any
	errorWhileStreaming error
	urlRewrite          string
}

// New creates a PageContext for urlOriginal.
func New(urlOriginal string) *PageContext {
	return &PageContext{
		URLOriginal: urlOriginal,
		RouteParams: map[string]string{},
		values:      map[string]any{},
	}
}

// Fork copies pc into a fresh context that starts a new render pass, such
// as rendering the error page. User values and the abort reason are
// carried over.
func (pc *PageContext) Fork() *PageContext {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	next := &PageContext{
		URLOriginal:            pc.URLOriginal,
		URLPathname:            pc.URLPathname,
		URLParsed:              pc.URLParsed,
		HTTPHeaders:            pc.HTTPHeaders,
		IsClientSideNavigation: pc.IsClientSideNavigation,
		RouteParams:            map[string]string{},
		AbortReason:            pc.AbortReason,
		values:                 make(map[string]any, len(pc.values)),
		urlRewrite:             pc.urlRewrite,
	}
	for k, v := range pc.values {
		next.values[k] = v
	}
	return next
}

// Get returns the value stored under key. Built-in fields are readable by
// their serialized names.
func (pc *PageContext) Get(key string) any {
	v, _ := pc.Lookup(key)
	return v
}

// Lookup is like Get but reports whether the key is set.
func (pc *PageContext) Lookup(key string) (any, bool) {
	if v, ok := pc.builtIn(key); ok {
		return v, true
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	v, ok := pc.values[key]
	return v, ok
}

// Set stores a single value.
func (pc *PageContext) Set(key string, value any) {
	pc.Merge(Addendum{key: value})
}

// Merge adds the keys of a to pc, overwriting existing values. Built-in
// names update the typed fields when the value has the matching type.
func (pc *PageContext) Merge(a Addendum) {
	if len(a) == 0 {
		return
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for k, v := range a {
		if pc.setBuiltIn(k, v) {
			continue
		}
		if pc.values == nil {
			pc.values = map[string]any{}
		}
		pc.values[k] = v
	}
}

// Keys returns the user keys in sorted order.
func (pc *PageContext) Keys() []string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	keys := make([]string, 0, len(pc.values))
	for k := range pc.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetErrorWhileStreaming records an error raised after the response started.
func (pc *PageContext) SetErrorWhileStreaming(err error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.errorWhileStreaming == nil {
		pc.errorWhileStreaming = err
	}
	if pc.ErrorWhileRendering == nil {
		pc.ErrorWhileRendering = err
	}
}

// ErrorWhileStreaming returns the error recorded by SetErrorWhileStreaming.
func (pc *PageContext) ErrorWhileStreaming() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.errorWhileStreaming
}

// URLRewrite returns the URL set by the last abort.Render call.
func (pc *PageContext) URLRewrite() string {
	return pc.urlRewrite
}

// SetURLRewrite records a rewrite; routing then uses it instead of the
// original URL.
func (pc *PageContext) SetURLRewrite(u string) {
	pc.urlRewrite = u
}

// IsTerminal reports whether the render is finished.
func (pc *PageContext) IsTerminal() bool {
	return pc.HTTPResponse != nil
}

// AddComputedURLProps parses URLOriginal, strips baseURL and fills the URL
// fields. It reports false when the URL is outside baseURL or unparsable.
func (pc *PageContext) AddComputedURLProps(baseURL string) bool {
	raw := pc.URLOriginal
	if pc.urlRewrite != "" {
		raw = pc.urlRewrite
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	pathname, ok := stripBase(u.EscapedPath(), baseURL)
	if !ok {
		return false
	}
	parsed := &URLParsed{
		Pathname: pathname,
		Search:   map[string]string{},
		Hash:     u.Fragment,
	}
	if u.Scheme != "" && u.Host != "" {
		parsed.Origin = u.Scheme + "://" + u.Host
	}
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			parsed.Search[k] = vs[len(vs)-1]
		}
	}
	pc.URLPathname = pathname
	pc.URLParsed = parsed
	return true
}

func stripBase(pathname, base string) (string, bool) {
	if pathname == "" {
		pathname = "/"
	}
	if base == "" || base == "/" {
		return pathname, true
	}
	base = "/" + trimSlashes(base)
	if pathname == base || pathname == base+"/" {
		return "/", true
	}
	if len(pathname) > len(base) && pathname[:len(base)+1] == base+"/" {
		return pathname[len(base):], true
	}
	return "", false
}

func trimSlashes(s string) string {
	for len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
