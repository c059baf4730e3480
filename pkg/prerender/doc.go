// Package prerender renders the pages of an application ahead of time.
//
// Run collects the URLs returned by prerender hooks, adds the pages whose
// route matches a single URL and writes for each URL the HTML document and
// the page context fetched by client-side navigation:
//
//	dist/client/index.html
//	dist/client/index.pageContext.json
//	dist/client/product/1/index.html
//	dist/client/product/1/index.pageContext.json
//	dist/client/404.html
//
// Files go to a Sink: DirSink writes a directory, S3Sink uploads to a
// bucket.
package prerender
