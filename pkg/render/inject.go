package render

import (
	"regexp"
	"strings"
)

var (
	headOpen = regexp.MustCompile(`(?i)<head(>| [^>]*>)`)
	htmlOpen = regexp.MustCompile(`(?i)<html(>| [^>]*>)`)
)

// HasHead reports whether html contains an opening head tag.
func HasHead(html string) bool {
	return headOpen.MatchString(html)
}

// EnsureHead inserts an empty head element when html has none.
func EnsureHead(html string) string {
	if HasHead(html) {
		return html
	}
	return InjectAtHTMLBegin(html, "<head></head>")
}

// InjectAtHTMLBegin inserts injection right after the opening head tag, or
// after the opening html tag, or after the doctype line.
func InjectAtHTMLBegin(html, injection string) string {
	if loc := headOpen.FindStringIndex(html); loc != nil {
		return html[:loc[1]] + injection + html[loc[1]:]
	}
	if loc := htmlOpen.FindStringIndex(html); loc != nil {
		return html[:loc[1]] + injection + html[loc[1]:]
	}
	if strings.HasPrefix(strings.ToLower(html), "<!doctype") {
		if i := strings.IndexByte(html, '\n'); i >= 0 {
			return html[:i+1] + injection + "\n" + html[i+1:]
		}
		return html + "\n" + injection
	}
	return injection + "\n" + html
}

// InjectAtHTMLEnd inserts injection before the closing body tag, or before
// the closing html tag, or appends it.
func InjectAtHTMLEnd(html, injection string) string {
	if strings.Contains(html, "</body>") {
		return InjectAtClosingTag(html, "</body>", injection)
	}
	if strings.Contains(html, "</html>") {
		return InjectAtClosingTag(html, "</html>", injection)
	}
	return html + "\n" + injection
}

// InjectAtClosingTag inserts injection before the last occurrence of
// closingTag. html is returned unchanged when the tag is missing.
func InjectAtClosingTag(html, closingTag, injection string) string {
	i := strings.LastIndex(html, closingTag)
	if i < 0 {
		return html
	}
	return html[:i] + injection + html[i:]
}
