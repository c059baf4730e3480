package router

import (
	"sort"
	"strings"

	"github.com/vango-dev/pagerender/internal/errors"
)

// AssertRedirects validates configured redirects, keyed by source route
// string. Targets start with '/', 'http://' or 'https://', and may only use
// the parameters of their source.
func AssertRedirects(redirects map[string]string) error {
	for source, target := range redirects {
		if err := AssertRouteString(source, "redirects"); err != nil {
			return err
		}
		if !strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
			return errors.New(errors.CodeConfigInvalid).
				WithDetailf("redirect target %q of %q should start with '/', 'http://' or 'https://'", target, source)
		}
		sourceSegs := strings.Split(source, "/")
		for _, seg := range strings.Split(target, "/") {
			if !strings.HasPrefix(seg, "@") && seg != catchAll {
				continue
			}
			if !containsString(sourceSegs, seg) {
				return errors.New(errors.CodeConfigInvalid).
					WithDetailf("redirect source %q is missing the parameter %q used by the target %q", source, seg, target)
			}
		}
	}
	return nil
}

// ResolveRedirects returns the target of the first redirect matching
// urlPathname, trying sources in lexical order. It returns "" when none
// applies or when the target equals urlPathname.
func ResolveRedirects(redirects map[string]string, urlPathname string) string {
	sources := make([]string, 0, len(redirects))
	for s := range redirects {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, source := range sources {
		params, ok := ResolveRouteString(source, urlPathname)
		if !ok {
			continue
		}
		target := redirects[source]
		names := make([]string, 0, len(params))
		for k := range params {
			names = append(names, k)
		}
		// Longer names first so @id does not clobber @idx.
		sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
		for _, k := range names {
			key := k
			if k != catchAll {
				key = "@" + k
			}
			target = strings.ReplaceAll(target, key, params[k])
		}
		if target == urlPathname {
			continue
		}
		return target
	}
	return ""
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
