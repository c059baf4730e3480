package main

import (
	"context"
	"sort"

	"github.com/vango-dev/pagerender/pkg/abort"
	"github.com/vango-dev/pagerender/pkg/hook"
	"github.com/vango-dev/pagerender/pkg/pagecontext"
	"github.com/vango-dev/pagerender/pkg/pagefile"
	"github.com/vango-dev/pagerender/pkg/render"
)

type product struct {
	ID    string
	Name  string
	Price int
}

var products = map[string]product{
	"1": {ID: "1", Name: "Hammer", Price: 12},
	"2": {ID: "2", Name: "Saw", Price: 25},
	"3": {ID: "3", Name: "Chisel", Price: 9},
}

// glob stands in for the descriptor a build step generates from the pages
// directory.
func glob(context.Context) (pagefile.GlobResult, error) {
	files := map[string]pagefile.Exports{
		"/pages/_default.page.server.go": {
			"passToClient": []string{"title"},
		},
		"/pages/_error.page.server.go": {
			"render": hook.RenderFunc(renderError),
		},
		"/pages/index.page.server.go": {
			"render": hook.RenderFunc(renderIndex),
		},
		"/pages/about.page.server.go": {
			"render": hook.RenderFunc(func(_ context.Context, pc *pagecontext.PageContext) (any, error) {
				return layout("About", render.Escape("<p>A catalog rendered on the server.</p>")), nil
			}),
		},
		"/pages/product.page.route.go": {
			"route": "/product/@id",
		},
		"/pages/product.page.server.go": {
			"onBeforeRender": hook.OnBeforeRenderFunc(loadProduct),
			"render":         hook.RenderFunc(renderProduct),
			"prerender":      hook.PrerenderFunc(productURLs),
		},
		"/pages/account.page.server.go": {
			"guard":          hook.GuardFunc(requireUser),
			"render":         hook.RenderFunc(renderAccount),
			"doNotPrerender": true,
		},
	}

	g := pagefile.GlobResult{
		IsGeneratedFile: true,
		PageFilesLazy: map[pagefile.FileType]map[string]pagefile.Loader{
			pagefile.TypeView:   {},
			pagefile.TypeServer: {},
			pagefile.TypeClient: {},
			pagefile.TypeRoute:  {},
		},
	}
	for p, exports := range files {
		exports := exports
		g.PageFilesLazy[pagefile.DetermineFileType(p)][p] = func(context.Context) (pagefile.Exports, error) {
			return exports, nil
		}
	}
	return g, nil
}

func layout(title string, body *render.Document) *render.Document {
	return render.Escape(`<!DOCTYPE html>
<html>
  <head><title>%s</title></head>
  <body>
    <nav><a href="/">Home</a> <a href="/about">About</a> <a href="/account">Account</a></nav>
    <h1>%s</h1>
    %s
  </body>
</html>`, title, title, body)
}

func sortedProducts() []product {
	list := make([]product, 0, len(products))
	for _, p := range products {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func renderIndex(_ context.Context, pc *pagecontext.PageContext) (any, error) {
	items := render.Escape("")
	for _, p := range sortedProducts() {
		items = render.Escape(`%s<li><a href="/product/%s">%s</a></li>`, items, p.ID, p.Name)
	}
	return layout("Catalog", render.Escape("<ul>%s</ul>", items)), nil
}

func loadProduct(_ context.Context, pc *pagecontext.PageContext) (pagecontext.Addendum, error) {
	p, ok := products[pc.RouteParams["id"]]
	if !ok {
		return nil, abort.RenderStatus(404, "No product "+pc.RouteParams["id"])
	}
	return pagecontext.Addendum{"product": p, "title": p.Name}, nil
}

func renderProduct(_ context.Context, pc *pagecontext.PageContext) (any, error) {
	p, _ := pc.Get("product").(product)
	return layout(p.Name, render.Escape("<p>$%d</p>", p.Price)), nil
}

func productURLs(context.Context) ([]hook.PrerenderEntry, error) {
	var entries []hook.PrerenderEntry
	for _, p := range sortedProducts() {
		entries = append(entries, hook.PrerenderEntry{
			URL:         "/product/" + p.ID,
			PageContext: pagecontext.Addendum{"product": p, "title": p.Name},
		})
	}
	return entries, nil
}

func requireUser(_ context.Context, pc *pagecontext.PageContext) error {
	if user, _ := pc.Get("user").(string); user == "" {
		return abort.Redirect("/")
	}
	return nil
}

func renderAccount(_ context.Context, pc *pagecontext.PageContext) (any, error) {
	return layout("Account", render.Escape("<p>Signed in as %s.</p>", pc.Get("user"))), nil
}

func renderError(_ context.Context, pc *pagecontext.PageContext) (any, error) {
	title := "Something went wrong"
	if pc.Is404 != nil && *pc.Is404 {
		title = "Page not found"
	}
	msg, _ := pc.AbortReason.(string)
	return layout(title, render.Escape("<p>%s</p>", msg)), nil
}
