// Package router resolves a URL to the page that renders it.
//
// Every page has exactly one route:
//
//   - a route string exported by its .page.route file, such as
//     "/product/@id" or "/docs/*"
//   - a route function exported by its .page.route file, evaluated per
//     request
//   - otherwise a filesystem route derived from the page's path:
//     /pages/about/index.page.go routes /about
//
// When several routes match, the best one wins:
//
//	function route with explicit precedence (higher first)
//	static route string
//	route string with parameters (more literal segments first)
//	function route without precedence (declaration order)
//	catch-all route string (more literal segments first)
//	filesystem route
//
// Two matches of equal rank are reported as ambiguous.
//
// A global onBeforeRoute hook, exported by a default .page.route file, runs
// before routing. It may rewrite the URL or decide the page itself.
package router
