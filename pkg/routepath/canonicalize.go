// Package routepath normalizes URL pathnames before they are routed.
package routepath

import (
	"errors"
	"net/url"
	"strings"
)

// Pathname errors. A pathname failing canonicalization matches no page.
var (
	ErrBackslash         = errors.New("routepath: pathname contains a backslash")
	ErrNullByte          = errors.New("routepath: pathname contains a null byte")
	ErrBadEscape         = errors.New("routepath: invalid percent escape")
	ErrEscapesRoot       = errors.New("routepath: pathname escapes the root")
	ErrEncodedSlashParam = errors.New("routepath: encoded slash in route parameter")
)

// Canonicalize collapses repeated slashes, resolves dot segments and drops
// the trailing slash. The root stays "/". It reports whether the pathname
// changed.
func Canonicalize(pathname string) (string, bool, error) {
	if strings.Contains(pathname, `\`) {
		return "", false, ErrBackslash
	}
	if strings.Contains(pathname, "\x00") || strings.Contains(strings.ToUpper(pathname), "%00") {
		return "", false, ErrNullByte
	}
	if strings.Contains(pathname, "%") {
		if _, err := url.PathUnescape(pathname); err != nil {
			return "", false, ErrBadEscape
		}
	}

	var out []string
	for _, seg := range strings.Split(pathname, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(out) == 0 {
				return "", false, ErrEscapesRoot
			}
			out = out[:len(out)-1]
		default:
			out = append(out, seg)
		}
	}
	canonical := "/" + strings.Join(out, "/")
	return canonical, canonical != pathname, nil
}

// Segments splits a canonical pathname into its segments. The root has
// none.
func Segments(pathname string) []string {
	var segs []string
	for _, s := range strings.Split(pathname, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// DecodeParam unescapes one segment captured by a route parameter. Only a
// catch-all parameter may contain an encoded slash.
func DecodeParam(segment string, catchAll bool) (string, error) {
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return "", ErrBadEscape
	}
	if !catchAll && strings.Contains(decoded, "/") {
		return "", ErrEncodedSlashParam
	}
	return decoded, nil
}
