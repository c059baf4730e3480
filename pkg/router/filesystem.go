package router

import (
	"path"
	"sort"
	"strings"
)

// FilesystemRoot maps a directory to a URL prefix. It is declared by the
// filesystemRoutingRoot export of a default .page.route file.
type FilesystemRoot struct {
	// Dir is the directory of the declaring file.
	Dir string
	// URLRoot replaces Dir in the derived routes.
	URLRoot string
}

// ignoredSegments never appear in a filesystem route.
var ignoredSegments = map[string]bool{
	"pages": true,
	"src":   true,
	"index": true,
}

// DeduceFilesystemRoute derives the route of a page from its page id. The
// deepest filesystem root containing the page applies. Segments named
// pages, src or index and group segments such as (marketing) are dropped.
func DeduceFilesystemRoute(pageID string, roots []FilesystemRoot) string {
	route := pageID
	var matching []FilesystemRoot
	for _, r := range roots {
		if r.Dir == "/" || route == r.Dir || strings.HasPrefix(route, r.Dir+"/") {
			matching = append(matching, r)
		}
	}
	if len(matching) > 0 {
		sort.SliceStable(matching, func(i, j int) bool { return len(matching[i].Dir) > len(matching[j].Dir) })
		r := matching[0]
		rest := strings.TrimPrefix(route, strings.TrimSuffix(r.Dir, "/"))
		route = path.Join("/", r.URLRoot, rest)
	}

	var out []string
	for _, seg := range strings.Split(route, "/") {
		if seg == "" || ignoredSegments[seg] || isGroupSegment(seg) {
			continue
		}
		out = append(out, seg)
	}
	return "/" + strings.Join(out, "/")
}

func isGroupSegment(seg string) bool {
	return len(seg) > 2 && seg[0] == '(' && seg[len(seg)-1] == ')'
}
