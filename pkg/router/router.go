package router

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vango-dev/pagerender/internal/errors"
	"github.com/vango-dev/pagerender/pkg/hook"
	"github.com/vango-dev/pagerender/pkg/pagecontext"
	"github.com/vango-dev/pagerender/pkg/routepath"
)

// MaxRouteRewrites bounds the URL rewrites of onBeforeRoute per request.
const MaxRouteRewrites = 7

// DefaultSlowRouteThreshold is the duration after which a route function
// without the async opt-in is reported as slow.
const DefaultSlowRouteThreshold = 100 * time.Millisecond

// Result is the outcome of routing.
type Result struct {
	PageID      string
	RouteParams map[string]string

	// Addendum holds the keys contributed by onBeforeRoute.
	Addendum pagecontext.Addendum

	// Route is nil when onBeforeRoute chose the page.
	Route *PageRoute
}

// Router resolves URLs against a set of page routes.
type Router struct {
	Runner *hook.Runner
	Logger *slog.Logger

	// BaseURL is stripped from rewritten URLs.
	BaseURL string

	// SlowRouteThreshold overrides DefaultSlowRouteThreshold.
	SlowRouteThreshold time.Duration
}

func (r *Router) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Resolve finds the page rendering pc. It returns nil when no page matches.
// An abort signal raised by a hook is returned as the error, unhandled.
func (r *Router) Resolve(ctx context.Context, pc *pagecontext.PageContext, routes *PageRoutes) (*Result, error) {
	addendum := pagecontext.Addendum{}

	if routes.OnBeforeRoute != nil {
		chain := []string{pc.URLOriginal}
		for {
			res, sig, err := r.Runner.OnBeforeRoute(ctx, pc, routes.OnBeforeRoute, routes.OnBeforeRouteFile)
			if sig != nil {
				return nil, sig
			}
			if err != nil {
				return nil, err
			}
			if res == nil {
				break
			}
			pc.Merge(res.PageContext)
			for k, v := range res.PageContext {
				addendum[k] = v
			}
			if id, _ := res.PageContext["pageId"].(string); id != "" {
				out := &Result{PageID: id, RouteParams: map[string]string{}, Addendum: addendum}
				if params, ok := res.PageContext["routeParams"].(map[string]string); ok {
					out.RouteParams = params
				}
				return out, nil
			}
			target := res.URLOriginal
			if target == "" || target == chain[len(chain)-1] {
				break
			}
			chain = append(chain, target)
			if len(chain)-1 > MaxRouteRewrites {
				return nil, errors.New(errors.CodeTooManyRouteRewrites).
					WithDetailf("rewrites: %s", strings.Join(chain, " => "))
			}
			base := r.BaseURL
			if pc.URLRewrite() != "" {
				pc.SetURLRewrite(target)
				base = ""
			} else {
				pc.URLOriginal = target
			}
			if !pc.AddComputedURLProps(base) {
				return nil, nil
			}
		}
	}

	pathname, _, err := routepath.Canonicalize(pc.URLPathname)
	if err != nil {
		r.logger().Debug("unroutable pathname", "pathname", pc.URLPathname, "error", err)
		return nil, nil
	}

	var matches []candidate
	for i := range routes.Routes {
		route := &routes.Routes[i]
		c, err := r.match(ctx, pc, route, pathname, i)
		if err != nil {
			return nil, err
		}
		if c != nil {
			matches = append(matches, *c)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}

	best, err := pick(matches)
	if err != nil {
		return nil, err
	}
	return &Result{
		PageID:      best.route.PageID,
		RouteParams: best.params,
		Addendum:    addendum,
		Route:       best.route,
	}, nil
}

// Precedence tiers, best first.
const (
	tierExplicit = iota
	tierStatic
	tierParams
	tierFunction
	tierCatchAll
	tierFilesystem
)

type candidate struct {
	route      *PageRoute
	params     map[string]string
	tier       int
	precedence int
	rank       routeStringRank
	order      int
}

func (r *Router) match(ctx context.Context, pc *pagecontext.PageContext, route *PageRoute, pathname string, order int) (*candidate, error) {
	if route.Type != RouteFunction {
		params, ok := ResolveRouteString(route.RouteString, pathname)
		if !ok {
			return nil, nil
		}
		c := &candidate{route: route, params: params, rank: rankRouteString(route.RouteString), order: order}
		switch {
		case route.Type == RouteFilesystem:
			c.tier = tierFilesystem
		case c.rank.catchAll:
			c.tier = tierCatchAll
		case c.rank.params > 0:
			c.tier = tierParams
		default:
			c.tier = tierStatic
		}
		return c, nil
	}

	start := time.Now()
	m, sig, err := r.Runner.Route(ctx, pc, route.Func, route.DefinedAt)
	threshold := r.SlowRouteThreshold
	if threshold == 0 {
		threshold = DefaultSlowRouteThreshold
	}
	if d := time.Since(start); d > threshold && !route.AsyncOptIn {
		errors.WarnCode(r.logger(), errors.CodeSlowRouteFunction, route.DefinedAt,
			"file", route.DefinedAt, "duration", d)
	}
	if sig != nil {
		return nil, errors.New(errors.CodeInvalidRouteResult).
			WithDetailf("route function of %s called %s; abort in guard() or onBeforeRender() instead", route.DefinedAt, sig.Call)
	}
	if err != nil {
		return nil, err
	}
	if m == nil || !m.Match {
		if m != nil && (len(m.RouteParams) > 0 || m.Precedence != nil) {
			return nil, errors.New(errors.CodeInvalidRouteResult).
				WithDetailf("route function of %s returned route params or a precedence without a match", route.DefinedAt)
		}
		return nil, nil
	}
	c := &candidate{route: route, params: m.RouteParams, tier: tierFunction, order: order}
	if c.params == nil {
		c.params = map[string]string{}
	}
	if m.Precedence != nil {
		c.tier = tierExplicit
		c.precedence = *m.Precedence
	}
	return c, nil
}

// pick returns the best candidate, or an error when the two best rank
// equally.
func pick(cs []candidate) (candidate, error) {
	sort.SliceStable(cs, func(i, j int) bool { return better(cs[i], cs[j]) })
	if len(cs) > 1 && !better(cs[0], cs[1]) && cs[0].tier != tierFunction {
		return candidate{}, errors.New(errors.CodeAmbiguousRoutes).
			WithDetailf("%s (%s route %s) and %s (%s route %s) match with the same precedence",
				cs[0].route.PageID, cs[0].route.Type, describe(cs[0].route),
				cs[1].route.PageID, cs[1].route.Type, describe(cs[1].route)).
			WithSuggestion("Make one of the routes more specific, or return a precedence from a route function.")
	}
	return cs[0], nil
}

func describe(r *PageRoute) string {
	if r.Type == RouteFunction {
		return "defined at " + r.DefinedAt
	}
	return "'" + r.RouteString + "' defined at " + r.DefinedAt
}

func better(a, b candidate) bool {
	if a.tier != b.tier {
		return a.tier < b.tier
	}
	switch a.tier {
	case tierExplicit:
		return a.precedence > b.precedence
	case tierFunction:
		return a.order < b.order
	}
	if a.rank.literals != b.rank.literals {
		return a.rank.literals > b.rank.literals
	}
	return a.rank.params < b.rank.params
}
