// Package abort implements the control-flow signals hooks return to stop
// rendering the current page: redirects, rewrites to another URL, and
// error-page renders with a status code.
//
// Signals are ordinary errors. Any hook may return one, at any stage:
//
//	func guard(ctx context.Context, pc *pagecontext.PageContext) error {
//	    if pc.Get("user") == nil {
//	        return abort.Redirect("/login")
//	    }
//	    return nil
//	}
//
// The render driver recognizes signals with As and never logs them as errors.
package abort

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/vango-dev/pagerender/internal/errors"
)

// Kind tags the payload carried by a Signal.
type Kind int

const (
	// KindRedirect asks the HTTP layer to redirect the client.
	KindRedirect Kind = iota
	// KindRewrite renders another URL in place of the current one.
	KindRewrite
	// KindStatus renders the error page with a status code.
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindRedirect:
		return "redirect"
	case KindRewrite:
		return "rewrite"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// RedirectStatusCodes are the status codes accepted by Redirect.
var RedirectStatusCodes = []int{301, 302}

// StatusCodes are the status codes accepted by RenderStatus.
var StatusCodes = []int{401, 403, 404, 410, 429, 500, 503}

// Signal is the error returned by Redirect, Render and RenderStatus.
type Signal struct {
	Kind Kind

	// URL is the redirect target or the rewritten URL.
	URL string

	// StatusCode is the redirect status or the abort status.
	StatusCode int

	// Reason is exposed to the error page as pageContext.abortReason.
	Reason any

	// Call is a readable rendition of the call that created the signal,
	// e.g. render('/login').
	Call string

	legacy bool
}

// Error implements the error interface.
func (s *Signal) Error() string {
	return "abort: " + s.Call
}

// Is404 reports whether the signal renders the 404 page.
func (s *Signal) Is404() bool {
	return s.Kind == KindStatus && s.StatusCode == 404
}

// IsLegacy reports whether the signal was created by RenderErrorPage.
func (s *Signal) IsLegacy() bool {
	return s.legacy
}

// As extracts a Signal from err.
func As(err error) (*Signal, bool) {
	var s *Signal
	if stderrors.As(err, &s) {
		return s, true
	}
	return nil, false
}

// Is reports whether err carries a Signal.
func Is(err error) bool {
	_, ok := As(err)
	return ok
}

// Redirect aborts rendering and redirects the client to url. The status
// defaults to 302; pass 301 for a permanent redirect.
func Redirect(url string, statusCode ...int) error {
	code := 302
	if len(statusCode) > 0 {
		code = statusCode[0]
	}
	if !strings.HasPrefix(url, "/") && !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return errors.New(errors.CodeInvalidAbort).
			WithDetailf("abort.Redirect(%q): the URL should start with /, https:// or http://", url)
	}
	warnUnexpectedStatus(code, RedirectStatusCodes, "Redirect")
	return &Signal{
		Kind:       KindRedirect,
		URL:        url,
		StatusCode: code,
		Call:       fmt.Sprintf("redirect(%s, %d)", quote(url), code),
	}
}

// Render aborts rendering and renders url instead. The reason, if any,
// becomes pageContext.abortReason.
func Render(url string, reason ...any) error {
	if !strings.HasPrefix(url, "/") {
		return errors.New(errors.CodeInvalidAbort).
			WithDetailf("abort.Render(%q): the URL should start with /", url)
	}
	r := firstReason(reason)
	return &Signal{
		Kind:   KindRewrite,
		URL:    url,
		Reason: r,
		Call:   renderCall(quote(url), r),
	}
}

// RenderStatus aborts rendering and renders the error page with statusCode.
func RenderStatus(statusCode int, reason ...any) error {
	warnUnexpectedStatus(statusCode, StatusCodes, "RenderStatus")
	r := firstReason(reason)
	return &Signal{
		Kind:       KindStatus,
		StatusCode: statusCode,
		Reason:     r,
		Call:       renderCall(strconv.Itoa(statusCode), r),
	}
}

// RenderErrorPage renders the error page with a 404 or 500 status.
//
// Deprecated: use RenderStatus instead.
func RenderErrorPage(is404 bool, reason ...any) error {
	errors.WarnOnce(slog.Default(), "abort.RenderErrorPage",
		"abort.RenderErrorPage() is deprecated, use abort.RenderStatus() instead")
	code := 500
	if is404 {
		code = 404
	}
	r := firstReason(reason)
	return &Signal{
		Kind:       KindStatus,
		StatusCode: code,
		Reason:     r,
		Call:       "RenderErrorPage()",
		legacy:     true,
	}
}

func firstReason(reason []any) any {
	if len(reason) == 0 {
		return nil
	}
	return reason[0]
}

func renderCall(target string, reason any) string {
	if reason == nil {
		return "render(" + target + ")"
	}
	r, err := json.Marshal(reason)
	if err != nil {
		return "render(" + target + ", ...)"
	}
	return "render(" + target + ", " + truncate(string(r), 30) + ")"
}

func quote(s string) string {
	return "'" + s + "'"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func warnUnexpectedStatus(code int, expected []int, caller string) {
	for _, c := range expected {
		if c == code {
			return
		}
	}
	names := make([]string, len(expected))
	for i, c := range expected {
		names[i] = strconv.Itoa(c)
	}
	errors.WarnOnce(slog.Default(), fmt.Sprintf("abort.%s:%d", caller, code),
		"unexpected status code passed to abort."+caller,
		"status", code,
		"expected", strings.Join(names, ", "))
}
