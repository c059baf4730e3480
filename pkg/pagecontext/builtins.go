package pagecontext

// builtInNames are the keys backed by typed PageContext fields.
var builtInNames = map[string]bool{
	"urlOriginal":            true,
	"urlPathname":            true,
	"urlParsed":              true,
	"httpHeaders":            true,
	"isClientSideNavigation": true,
	"pageId":                 true,
	"_pageId":                true,
	"routeParams":            true,
	"is404":                  true,
	"abortReason":            true,
	"abortStatusCode":        true,
	"exports":                true,
	"exportsAll":             true,
	"Page":                   true,
	"passToClient":           true,
	"httpResponse":           true,
	"errorWhileRendering":    true,
}

// IsBuiltIn reports whether key names a built-in field.
func IsBuiltIn(key string) bool {
	return builtInNames[key]
}

// StripBuiltIns returns a copy of a without the keys that would override
// built-in fields. Data received over the network goes through it before
// being merged.
func StripBuiltIns(a Addendum) Addendum {
	out := make(Addendum, len(a))
	for k, v := range a {
		if IsBuiltIn(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func (pc *PageContext) builtIn(key string) (any, bool) {
	switch key {
	case "urlOriginal":
		return pc.URLOriginal, true
	case "urlPathname":
		return pc.URLPathname, pc.URLPathname != ""
	case "urlParsed":
		return pc.URLParsed, pc.URLParsed != nil
	case "httpHeaders":
		return pc.HTTPHeaders, pc.HTTPHeaders != nil
	case "isClientSideNavigation":
		return pc.IsClientSideNavigation, true
	case "pageId", "_pageId":
		return pc.PageID, pc.PageID != ""
	case "routeParams":
		return pc.RouteParams, pc.RouteParams != nil
	case "is404":
		if pc.Is404 == nil {
			return nil, false
		}
		return *pc.Is404, true
	case "abortReason":
		return pc.AbortReason, pc.AbortReason != nil
	case "abortStatusCode":
		return pc.AbortStatusCode, pc.AbortStatusCode != 0
	case "exports":
		return pc.Exports, pc.Exports != nil
	case "exportsAll":
		return pc.ExportsAll, pc.ExportsAll != nil
	case "Page":
		v, ok := pc.Exports["Page"]
		return v, ok
	case "passToClient":
		return pc.PassToClient, pc.PassToClient != nil
	case "httpResponse":
		return pc.HTTPResponse, pc.HTTPResponse != nil
	case "errorWhileRendering":
		return pc.ErrorWhileRendering, pc.ErrorWhileRendering != nil
	}
	return nil, false
}

// setBuiltIn assigns a writable built-in. It reports whether key is a
// built-in; values of the wrong type and read-only built-ins are dropped.
func (pc *PageContext) setBuiltIn(key string, v any) bool {
	if !IsBuiltIn(key) {
		return false
	}
	switch key {
	case "urlOriginal":
		if s, ok := v.(string); ok {
			pc.URLOriginal = s
		}
	case "httpHeaders":
		if h, ok := v.(map[string]string); ok {
			pc.HTTPHeaders = h
		}
	case "pageId", "_pageId":
		if s, ok := v.(string); ok {
			pc.PageID = s
		}
	case "routeParams":
		if p := toStringMap(v); p != nil {
			pc.RouteParams = p
		}
	case "is404":
		if b, ok := v.(bool); ok {
			pc.Is404 = &b
		}
	case "abortReason":
		pc.AbortReason = v
	case "abortStatusCode":
		switch n := v.(type) {
		case int:
			pc.AbortStatusCode = n
		case float64:
			pc.AbortStatusCode = int(n)
		}
	case "passToClient":
		if keys, ok := v.([]string); ok {
			pc.PassToClient = keys
		}
	}
	return true
}

func toStringMap(v any) map[string]string {
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			s, ok := val.(string)
			if !ok {
				return nil
			}
			out[k] = s
		}
		return out
	}
	return nil
}
