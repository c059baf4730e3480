// Package render builds the HTML documents returned by render hooks.
//
// A render hook never returns a bare string. Documents are built with Escape,
// which escapes every interpolated value, or with DangerouslySkipEscape for
// markup that is already safe:
//
//	return render.Escape(`<!DOCTYPE html>
//	<html>
//	  <body><h1>%s</h1></body>
//	</html>`, name), nil
//
// Interpolated values keep their meaning:
//
//   - *Document values are embedded as-is, including streams made by Stream
//   - everything else is formatted with fmt.Sprint and escaped
//
// A bare io.Reader is escaped like any other value. Wrap it with Stream to
// send it as a streamed part of the document.
//
// The package also provides the string surgery used to inject tags into a
// document: EnsureHead, InjectAtHTMLEnd and InjectAtClosingTag.
package render
