// Package config loads the project configuration of a pagerender app.
//
// The configuration lives in pagerender.json or pagerender.yaml at the
// project root. Both files share one schema; the YAML file wins when both
// exist.
//
// # Configuration File Structure
//
//	{
//	  "baseUrl": "/app/",
//	  "baseAssets": "https://cdn.example.com/",
//	  "production": true,
//	  "trailingSlash": false,
//	  "redirects": {
//	    "/old/@id": "/new/@id",
//	    "/docs/*": "https://docs.example.com/*"
//	  },
//	  "manifest": { "client": "dist/client/manifest.json" },
//	  "server": { "addr": ":3000" },
//	  "dev": { "liveReload": true },
//	  "prerender": {
//	    "outDir": "dist/client",
//	    "parallel": 8,
//	    "s3": { "bucket": "my-site", "prefix": "www/", "region": "eu-west-1" }
//	  },
//	  "log": { "level": "info", "format": "text" }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Addr:", cfg.Server.Addr)
package config
