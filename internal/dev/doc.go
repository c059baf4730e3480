// Package dev provides live reload for development servers.
//
// This package implements:
//   - File watching for the config file, the client build output and extra paths
//   - WebSocket-based browser refresh
//   - Error overlay in browser for broken config files
//
// The Server watches and notifies; the HTTP server mounts its reload
// endpoint and the engine injects the client script through it:
//
//	devServer := dev.NewServer(dev.ServerOptions{
//	    Config:     cfg,
//	    Invalidate: engine.Invalidate,
//	})
//	if rs := devServer.Reload(); rs != nil {
//	    router.Handle(dev.ReloadPath, rs)
//	}
//	go devServer.Start(ctx)
//
// # Hot Reload Protocol
//
// The browser connects to /__pagerender/reload via WebSocket.
// Messages are JSON-encoded:
//
//	{"type": "reload"}                // Triggers full page reload
//	{"type": "css", "file": "..."}    // Triggers CSS-only reload
//	{"type": "error", "error": "..."} // Shows error overlay
//	{"type": "clear"}                 // Clears error overlay
package dev
