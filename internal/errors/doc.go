// Package errors provides structured, actionable error messages for the
// page rendering runtime.
//
// # Error Categories
//
//   - usage: the application misuses the runtime (missing render hook,
//     ambiguous routes, abort loops). Usage errors fail fast.
//   - internal: an assertion inside the runtime failed.
//   - hook: a user hook returned an error or panicked.
//   - config: the configuration file is missing or invalid.
//   - warning: reported once, never fatal.
//
// # Error Codes
//
// Each error has a unique code (e.g., "P001") that maps to a short message,
// a detailed explanation and a documentation URL.
//
// # Usage
//
//	err := errors.New(errors.CodeNoRenderHook).
//	    WithDetailf("loaded files: %s", strings.Join(files, ", "))
//	fmt.Println(err.Format())
//
// # Logging once
//
// Errors flow through several layers before they reach the log. Each layer
// calls MarkLogged and only logs when it returns true, so an error is never
// printed twice.
package errors
