package router

import (
	"strings"

	"github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/routepath"
)

const catchAll = "*"

// AssertRouteString checks the syntax of a route string. definedAt names
// where it comes from.
func AssertRouteString(routeString, definedAt string) error {
	invalid := func(format string, args ...any) *errors.Error {
		return errors.New(errors.CodeInvalidRouteString).
			WithDetailf("%s: route string %q "+format, append([]any{definedAt, routeString}, args...)...)
	}
	if routeString == catchAll {
		return nil
	}
	if !strings.HasPrefix(routeString, "/") {
		return invalid("should start with a leading slash '/'").
			WithSuggestion("Use '/" + routeString + "' instead.")
	}
	segs := routepath.Segments(routeString)
	for i, seg := range segs {
		switch {
		case seg == catchAll:
			if i != len(segs)-1 {
				return invalid("has a catch-all '*' that is not the last segment")
			}
		case strings.Contains(seg, catchAll):
			return invalid("has a '*' inside the segment %q", seg)
		case seg == "@":
			return invalid("has a parameter without a name")
		case strings.Contains(seg[1:], "@"):
			return invalid("has an '@' inside the segment %q", seg)
		}
	}
	return nil
}

// IsStaticRouteString reports whether routeString has neither parameters
// nor a catch-all.
func IsStaticRouteString(routeString string) bool {
	return !strings.Contains(routeString, "@") && !strings.Contains(routeString, catchAll)
}

// ResolveRouteString matches urlPathname against routeString. The catch-all
// captures the rest of the pathname under the key "*".
func ResolveRouteString(routeString, urlPathname string) (map[string]string, bool) {
	route := routepath.Segments(routeString)
	if routeString == catchAll {
		route = []string{catchAll}
	}
	url := routepath.Segments(urlPathname)
	params := map[string]string{}

	for i, seg := range route {
		if seg == catchAll {
			rest := strings.Join(url[min(i, len(url)):], "/")
			v, err := routepath.DecodeParam(rest, true)
			if err != nil {
				return nil, false
			}
			params[catchAll] = v
			return params, true
		}
		if i >= len(url) {
			return nil, false
		}
		if strings.HasPrefix(seg, "@") {
			v, err := routepath.DecodeParam(url[i], false)
			if err != nil {
				return nil, false
			}
			params[seg[1:]] = v
			continue
		}
		if seg != url[i] {
			return nil, false
		}
	}
	if len(url) != len(route) {
		return nil, false
	}
	return params, true
}

// routeStringRank describes a route string for ranking.
type routeStringRank struct {
	literals int
	params   int
	catchAll bool
}

func rankRouteString(routeString string) routeStringRank {
	var r routeStringRank
	if routeString == catchAll {
		r.catchAll = true
		return r
	}
	for _, seg := range routepath.Segments(routeString) {
		switch {
		case seg == catchAll:
			r.catchAll = true
		case strings.HasPrefix(seg, "@"):
			r.params++
		default:
			r.literals++
		}
	}
	return r
}
