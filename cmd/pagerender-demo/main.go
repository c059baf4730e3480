// Command pagerender-demo serves and prerenders a small product catalog.
//
//	pagerender-demo serve --dev
//	pagerender-demo prerender --out=public
//	pagerender-demo routes
package main

import (
	"net/http"

	"github.com/vango-dev/pagerender/pkg/cli"
	"github.com/vango-dev/pagerender/pkg/pagecontext"
)

func main() {
	cli.Main(cli.App{
		Name:        "pagerender-demo",
		Short:       "Serve and prerender the demo catalog",
		Files:       glob,
		PageContext: userFromCookie,
	})
}

// userFromCookie exposes the signed-in user to the pages. The demo trusts
// the cookie as is.
func userFromCookie(r *http.Request) pagecontext.Addendum {
	if c, err := r.Cookie("user"); err == nil {
		return pagecontext.Addendum{"user": c.Value}
	}
	return nil
}
