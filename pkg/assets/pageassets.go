package assets

import (
	"path"
	"sort"
	"strings"

	"github.com/vango-dev/pagerender/pkg/render"
)

// AssetType says how an asset is loaded.
type AssetType string

const (
	AssetScript  AssetType = "script"
	AssetStyle   AssetType = "style"
	AssetPreload AssetType = "preload"
)

// MediaType is the inferred type of an asset URL.
type MediaType struct {
	MediaType   string
	PreloadType string
}

// PageAsset is one tag to inject.
type PageAsset struct {
	Src         string
	AssetType   AssetType
	MediaType   string
	PreloadType string
}

var mediaTypes = map[string]MediaType{
	".css":   {"text/css", "style"},
	".js":    {"text/javascript", "script"},
	".mjs":   {"text/javascript", "script"},
	".png":   {"image/png", "image"},
	".webp":  {"image/webp", "image"},
	".jpg":   {"image/jpeg", "image"},
	".jpeg":  {"image/jpeg", "image"},
	".gif":   {"image/gif", "image"},
	".svg":   {"image/svg+xml", "image"},
	".avif":  {"image/avif", "image"},
	".ttf":   {"font/ttf", "font"},
	".otf":   {"font/otf", "font"},
	".woff":  {"font/woff", "font"},
	".woff2": {"font/woff2", "font"},
	".mp4":   {"video/mp4", "video"},
	".webm":  {"video/webm", "video"},
	".ogv":   {"video/ogg", "video"},
}

// InferMediaType guesses the media type of src from its extension.
func InferMediaType(src string) (MediaType, bool) {
	p, _, _ := strings.Cut(src, "?")
	mt, ok := mediaTypes[strings.ToLower(path.Ext(p))]
	return mt, ok
}

// Input describes the client code of a page.
type Input struct {
	// Production selects manifest resolution. Without it, module ids are
	// used as URLs.
	Production bool
	Manifest   *Manifest
	Graph      ModuleGraph

	Dependencies  []ClientDependency
	ClientEntries []string

	BaseURL    string
	BaseAssets string
}

// GetPageAssets returns the assets of a page in injection order.
func GetPageAssets(in Input) []PageAsset {
	var urls []string
	switch {
	case in.Production && in.Manifest != nil:
		urls = CollectAssets(in.Manifest, in.Dependencies)
	case !in.Production && in.Graph != nil:
		urls = CollectStyles(in.Graph, in.Dependencies)
	}

	assets := make([]PageAsset, 0, len(urls)+len(in.ClientEntries))
	for _, u := range urls {
		mt, _ := InferMediaType(u)
		a := PageAsset{Src: u, AssetType: AssetPreload, MediaType: mt.MediaType, PreloadType: mt.PreloadType}
		if mt.MediaType == "text/css" {
			a.AssetType = AssetStyle
		}
		assets = append(assets, a)
	}

	for _, id := range in.ClientEntries {
		src := id
		if in.Production {
			if in.Manifest == nil {
				continue
			}
			_, e, ok := GetManifestEntry(id, in.Manifest)
			if !ok {
				continue
			}
			src = "/" + strings.TrimPrefix(e.File, "/")
		}
		assets = append(assets, PageAsset{Src: src, AssetType: AssetScript, MediaType: "text/javascript"})
	}

	base := in.BaseAssets
	if base == "" {
		base = in.BaseURL
	}
	for i := range assets {
		assets[i].Src = prependBase(assets[i].Src, base)
	}
	SortForPriority(assets)
	return assets
}

// SortForPriority orders assets for the browser: stylesheets first, then
// font and image preloads, then script preloads, then scripts.
func SortForPriority(assets []PageAsset) {
	sort.SliceStable(assets, func(i, j int) bool {
		return priority(assets[i]) > priority(assets[j])
	})
}

func priority(a PageAsset) int {
	switch {
	case a.AssetType == AssetStyle:
		return 0
	case a.PreloadType == "style":
		return -1
	case a.PreloadType == "font":
		return -2
	case a.PreloadType == "image":
		return -3
	case a.AssetType == AssetScript:
		return -6
	case a.PreloadType == "script":
		return -5
	}
	return -4
}

func prependBase(src, base string) string {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return src
	}
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(src, "/")
	}
	base = "/" + strings.Trim(base, "/")
	if base == "/" {
		return src
	}
	return base + "/" + strings.TrimPrefix(src, "/")
}

// Tag returns the HTML tag loading a.
func Tag(a PageAsset) string {
	src := render.EscapeAttr(a.Src)
	switch a.AssetType {
	case AssetScript:
		return `<script type="module" src="` + src + `"></script>`
	case AssetStyle:
		return `<link rel="stylesheet" type="text/css" href="` + src + `">`
	}
	switch a.PreloadType {
	case "font":
		return `<link rel="preload" as="font" crossorigin type="` + a.MediaType + `" href="` + src + `">`
	case "script":
		return `<link rel="modulepreload" as="script" type="` + a.MediaType + `" href="` + src + `">`
	}
	tag := `<link rel="preload" href="` + src + `"`
	if a.PreloadType != "" {
		tag += ` as="` + a.PreloadType + `"`
	}
	if a.MediaType != "" {
		tag += ` type="` + a.MediaType + `"`
	}
	return tag + ">"
}
