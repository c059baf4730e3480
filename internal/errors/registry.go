package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// Registered error codes.
const (
	CodeNoRenderHook         = "P001"
	CodeStringRenderResult   = "P002"
	CodeAmbiguousRoutes      = "P003"
	CodeInfiniteAbortLoop    = "P004"
	CodeTooManyRouteRewrites = "P005"
	CodeInheritedHookSkipped = "P006"
	CodeDoubleInjection      = "P007"
	CodeUnserializable       = "P008"
	CodeStreamBody           = "P009"
	CodeInvalidRouteString   = "P010"
	CodeInvalidExport        = "P011"
	CodeInvalidAbort         = "P012"
	CodePrerenderNoDocument  = "P013"
	CodePrerenderStream      = "P014"
	CodeInvalidRouteResult   = "P015"
	CodeSlowRouteFunction    = "P016"
	CodePrerenderNoPage      = "P017"

	CodeMalformedGlob  = "P020"
	CodeUnknownExport  = "P021"
	CodeNoErrorPage    = "P022"
	CodeDuplicatePage  = "P023"
	CodeNoPrerenderURL = "P024"

	CodeConfigNotFound = "P030"
	CodeConfigParse    = "P031"
	CodeConfigInvalid  = "P032"
)

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Pipeline usage errors (P001-P019)
	// ============================================

	CodeNoRenderHook: {
		Category: CategoryUsage,
		Message:  "No render hook defined",
		Detail:   "Every page needs a `render` export, either page-local or inherited from a _default file.",
		DocURL:   "https://pagerender.dev/docs/errors/P001",
	},
	CodeStringRenderResult: {
		Category: CategoryUsage,
		Message:  "Render hook returned a plain string",
		Detail:   "Wrap the document with html.Escape or html.DangerouslySkipEscape so it is escaped on purpose.",
		DocURL:   "https://pagerender.dev/docs/errors/P002",
	},
	CodeAmbiguousRoutes: {
		Category: CategoryUsage,
		Message:  "Ambiguous routes",
		Detail:   "Two routes match the same URL with the same precedence.",
		DocURL:   "https://pagerender.dev/docs/errors/P003",
	},
	CodeInfiniteAbortLoop: {
		Category: CategoryUsage,
		Message:  "Infinite loop of abort.Render() and abort.Redirect() calls",
		DocURL:   "https://pagerender.dev/docs/errors/P004",
	},
	CodeTooManyRouteRewrites: {
		Category: CategoryUsage,
		Message:  "onBeforeRoute() rewrote the URL too many times",
		DocURL:   "https://pagerender.dev/docs/errors/P005",
	},
	CodeInheritedHookSkipped: {
		Category: CategoryUsage,
		Message:  "Inherited hook was not called",
		Detail:   "A page-local hook overrides a hook defined by a _default file. Call hook.RunInherited() or export skipDefault.",
		DocURL:   "https://pagerender.dev/docs/errors/P006",
	},
	CodeDoubleInjection: {
		Category: CategoryUsage,
		Message:  "pageContext is already injected",
		DocURL:   "https://pagerender.dev/docs/errors/P007",
	},
	CodeUnserializable: {
		Category: CategoryUsage,
		Message:  "pageContext value cannot be serialized",
		DocURL:   "https://pagerender.dev/docs/errors/P008",
	},
	CodeStreamBody: {
		Category: CategoryUsage,
		Message:  "Response body is a stream",
		Detail:   "Use HTTPResponse.GetBody(), Pipe() or GetReadableStream() instead of Body().",
		DocURL:   "https://pagerender.dev/docs/errors/P009",
	},
	CodeInvalidRouteString: {
		Category: CategoryUsage,
		Message:  "Invalid route string",
		DocURL:   "https://pagerender.dev/docs/errors/P010",
	},
	CodeInvalidExport: {
		Category: CategoryUsage,
		Message:  "Page file export has the wrong type",
		DocURL:   "https://pagerender.dev/docs/errors/P011",
	},
	CodeInvalidAbort: {
		Category: CategoryUsage,
		Message:  "Invalid abort call",
		DocURL:   "https://pagerender.dev/docs/errors/P012",
	},
	CodePrerenderNoDocument: {
		Category: CategoryUsage,
		Message:  "Cannot prerender a page that renders nothing",
		DocURL:   "https://pagerender.dev/docs/errors/P013",
	},
	CodePrerenderStream: {
		Category: CategoryUsage,
		Message:  "Cannot prerender a stream",
		Detail:   "Streams are only supported for server-side rendering.",
		DocURL:   "https://pagerender.dev/docs/errors/P014",
	},
	CodeInvalidRouteResult: {
		Category: CategoryUsage,
		Message:  "Invalid routing hook result",
		DocURL:   "https://pagerender.dev/docs/errors/P015",
	},
	CodeSlowRouteFunction: {
		Category: CategoryWarning,
		Message:  "Route function took long to resolve",
		Detail:   "Route functions run for every request and every page. Export iKnowThePerformanceRisksOfAsyncRouteFunctions to silence this warning.",
		DocURL:   "https://pagerender.dev/docs/errors/P016",
	},
	CodePrerenderNoPage: {
		Category: CategoryUsage,
		Message:  "Prerendered URL matches no page",
		Detail:   "Every URL returned by a prerender hook must be routed to a page.",
		DocURL:   "https://pagerender.dev/docs/errors/P017",
	},

	// ============================================
	// Registry errors (P020-P029)
	// ============================================

	CodeMalformedGlob: {
		Category: CategoryInternal,
		Message:  "Malformed page file glob result",
		DocURL:   "https://pagerender.dev/docs/errors/P020",
	},
	CodeUnknownExport: {
		Category: CategoryWarning,
		Message:  "Unknown page file export",
		Detail:   "List custom exports in the `customExports` export of the file to silence this warning.",
		DocURL:   "https://pagerender.dev/docs/errors/P021",
	},
	CodeNoErrorPage: {
		Category: CategoryWarning,
		Message:  "No error page defined",
		Detail:   "Create a _error.page file to show users a proper error page.",
		DocURL:   "https://pagerender.dev/docs/errors/P022",
	},
	CodeDuplicatePage: {
		Category: CategoryInternal,
		Message:  "Duplicate page file path",
		DocURL:   "https://pagerender.dev/docs/errors/P023",
	},
	CodeNoPrerenderURL: {
		Category: CategoryWarning,
		Message:  "Page with a parameterized route is not prerendered",
		Detail:   "Export a `prerender` hook returning the URLs, or enable partial prerendering.",
		DocURL:   "https://pagerender.dev/docs/errors/P024",
	},

	// ============================================
	// Config errors (P030-P039)
	// ============================================

	CodeConfigNotFound: {
		Category: CategoryConfig,
		Message:  "Config file not found",
		DocURL:   "https://pagerender.dev/docs/errors/P030",
	},
	CodeConfigParse: {
		Category: CategoryConfig,
		Message:  "Config file parse error",
		DocURL:   "https://pagerender.dev/docs/errors/P031",
	},
	CodeConfigInvalid: {
		Category: CategoryConfig,
		Message:  "Invalid config value",
		DocURL:   "https://pagerender.dev/docs/errors/P032",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
