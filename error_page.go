package pagerender

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/abort"
	"github.com/vango-dev/pagerender/pkg/hook"
	"github.com/vango-dev/pagerender/pkg/pagecontext"
	"github.com/vango-dev/pagerender/pkg/response"
)

// Payloads answering client-side navigation when there is no error page.
const (
	notFoundJSON        = `{"pageContext404PageDoesNotExist":true}`
	serverSideErrorJSON = `{"serverSideError":true}`
)

// renderStatus renders the error page for an abort status or a missing
// page. A hook failing on the way is handled like any other render error.
func (r *renderer) renderStatus(ctx context.Context, prev *pagecontext.PageContext, status int, sig *abort.Signal) (*pagecontext.PageContext, error) {
	pc, err := r.renderErrorPage(ctx, prev, status, sig, nil)
	if err != nil && !isFatal(err) {
		return r.renderAfterError(ctx, prev, err)
	}
	return pc, err
}

// renderAfterError handles an error raised while rendering prev. Usage
// errors are returned as is. Anything else is logged once and the error
// page renders with status 500; should that fail too, the second error is
// swallowed and nothing is rendered.
func (r *renderer) renderAfterError(ctx context.Context, prev *pagecontext.PageContext, err error) (*pagecontext.PageContext, error) {
	if isFatal(err) || r.prerender {
		return prev, err
	}
	r.logError(prev, err)

	pc, err2 := r.renderErrorPage(ctx, prev, http.StatusInternalServerError, nil, err)
	if err2 == nil {
		return pc, nil
	}
	if !sameCause(err2, err) {
		r.logError(prev, err2)
	}
	fallback := prev.Fork()
	fallback.PageID = prev.PageID
	fallback.ErrorWhileRendering = err
	if fallback.IsClientSideNavigation {
		fallback.HTTPResponse = response.New(serverSideErrorJSON, http.StatusInternalServerError, response.ContentTypeJSON)
	}
	return fallback, nil
}

// renderErrorPage renders the error page in a fork of prev. Without an
// error page, client-side navigation gets a JSON marker and HTML requests
// get no response.
func (r *renderer) renderErrorPage(ctx context.Context, prev *pagecontext.PageContext, status int, sig *abort.Signal, cause error) (*pagecontext.PageContext, error) {
	pc := prev.Fork()
	is404 := status == http.StatusNotFound
	pc.Is404 = &is404
	pc.ErrorWhileRendering = cause
	if sig != nil {
		pc.AbortReason = sig.Reason
		if !sig.IsLegacy() {
			pc.AbortStatusCode = sig.StatusCode
		}
	}

	if _, err := r.e.registry.Files(ctx); err != nil {
		return pc, err
	}
	errorPageID := r.e.registry.ErrorPageID()
	if errorPageID == "" {
		errors.WarnCode(r.logger, errors.CodeNoErrorPage, "no-error-page")
		if pc.IsClientSideNavigation {
			body := serverSideErrorJSON
			if is404 {
				body = notFoundJSON
			}
			pc.HTTPResponse = response.New(body, status, response.ContentTypeJSON)
		}
		return pc, nil
	}

	pc.PageID = errorPageID
	next, err := r.executePage(ctx, pc, status, true)
	if err != nil {
		return pc, err
	}
	if next == nil {
		return pc, nil
	}
	if next.Kind != abort.KindRedirect {
		return pc, errors.New(errors.CodeInvalidAbort).
			WithDetailf("%s was called while rendering the error page %s; only abort.Redirect() is supported there", next.Call, errorPageID)
	}
	if err := r.chain.Record(next); err != nil {
		return pc, err
	}
	r.intercepted(pc, next)
	r.redirect(pc, next)
	return pc, nil
}

// logError logs err unless it was logged before.
func (r *renderer) logError(pc *pagecontext.PageContext, err error) {
	if !errors.MarkLogged(err) {
		return
	}
	attrs := []any{"url", pc.URLOriginal, "page_id", pc.PageID, "err", err}
	var he *hook.Error
	if stderrors.As(err, &he) {
		attrs = append(attrs, "hook", he.Hook, "file", he.FilePath)
		if he.Panic != nil {
			attrs = append(attrs, "stack", string(he.Stack))
		}
	}
	r.logger.Error("error while rendering page", attrs...)
}

// isFatal reports whether err is a usage error or a failed assertion:
// errors in the application or in the engine that no error page should
// hide.
func isFatal(err error) bool {
	return errors.IsUsage(err) || errors.IsInternal(err)
}

// sameCause reports whether err wraps the innermost error of cause, as
// happens when the error page re-raises pageContext.ErrorWhileRendering.
func sameCause(err, cause error) bool {
	root := cause
	for {
		next := stderrors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	return stderrors.Is(err, root)
}
