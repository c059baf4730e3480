package abort

import (
	"strings"

	"github.com/vango-dev/pagerender/internal/errors"
)

// MaxChainLength is the number of consecutive rewrites and redirects a
// single request may go through.
const MaxChainLength = 7

// Chain records the signals consumed while rendering one request.
// The zero value is ready to use. A Chain is not safe for concurrent use.
type Chain struct {
	calls     []string
	rewrites  int
	redirects int
}

// Record consumes s. It returns a usage error once the chain grows past
// MaxChainLength hops.
func (c *Chain) Record(s *Signal) error {
	switch s.Kind {
	case KindRewrite:
		c.rewrites++
	case KindRedirect:
		c.redirects++
	default:
		return nil
	}
	c.calls = append(c.calls, s.Call)
	if c.rewrites+c.redirects <= MaxChainLength {
		return nil
	}

	var kinds []string
	if c.rewrites > 0 {
		kinds = append(kinds, "abort.Render('/some-url')")
	}
	if c.redirects > 0 {
		kinds = append(kinds, "abort.Redirect('/some-url')")
	}
	return errors.New(errors.CodeInfiniteAbortLoop).
		WithDetailf("maximum chain length of %d exceeded: %s", MaxChainLength, strings.Join(c.calls, " => ")).
		WithSuggestion("Check for an infinite loop of " + strings.Join(kinds, " and "))
}

// Len returns the number of hops recorded so far.
func (c *Chain) Len() int {
	return c.rewrites + c.redirects
}

// Calls returns the recorded calls in order.
func (c *Chain) Calls() []string {
	return append([]string(nil), c.calls...)
}
