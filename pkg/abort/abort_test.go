package abort

import (
	"fmt"
	"strings"
	"testing"

	"github.com/vango-dev/pagerender/internal/errors"
)

func TestRedirect(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		status   []int
		wantCode int
		wantCall string
	}{
		{"default status", "/login", nil, 302, "redirect('/login', 302)"},
		{"permanent", "/new", []int{301}, 301, "redirect('/new', 301)"},
		{"absolute", "https://example.com/x", nil, 302, "redirect('https://example.com/x', 302)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Redirect(tt.url, tt.status...)
			s, ok := As(err)
			if !ok {
				t.Fatalf("As(%v) = false", err)
			}
			if s.Kind != KindRedirect {
				t.Errorf("Kind = %v, want redirect", s.Kind)
			}
			if s.StatusCode != tt.wantCode {
				t.Errorf("StatusCode = %d, want %d", s.StatusCode, tt.wantCode)
			}
			if s.Call != tt.wantCall {
				t.Errorf("Call = %q, want %q", s.Call, tt.wantCall)
			}
		})
	}
}

func TestRedirectInvalidURL(t *testing.T) {
	err := Redirect("login")
	if Is(err) {
		t.Fatal("relative redirect should not produce a signal")
	}
	if !errors.IsUsage(err) {
		t.Errorf("err = %v, want usage error", err)
	}
}

func TestRender(t *testing.T) {
	s, ok := As(Render("/other", map[string]string{"why": "moved"}))
	if !ok {
		t.Fatal("Render should return a signal")
	}
	if s.Kind != KindRewrite || s.URL != "/other" {
		t.Errorf("signal = %+v", s)
	}
	if s.Call != `render('/other', {"why":"moved"})` {
		t.Errorf("Call = %q", s.Call)
	}

	if Is(Render("other")) {
		t.Error("Render without leading slash should be a usage error")
	}
}

func TestRenderStatus(t *testing.T) {
	s, _ := As(RenderStatus(404, "no such product"))
	if s.Kind != KindStatus || s.StatusCode != 404 {
		t.Fatalf("signal = %+v", s)
	}
	if !s.Is404() {
		t.Error("Is404() = false")
	}
	if s.Reason != "no such product" {
		t.Errorf("Reason = %v", s.Reason)
	}

	s, _ = As(RenderStatus(403))
	if s.Is404() || s.Call != "render(403)" {
		t.Errorf("signal = %+v", s)
	}
}

func TestRenderErrorPage(t *testing.T) {
	s, _ := As(RenderErrorPage(true))
	if s.StatusCode != 404 || !s.IsLegacy() {
		t.Errorf("signal = %+v", s)
	}
	s, _ = As(RenderErrorPage(false))
	if s.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", s.StatusCode)
	}
}

func TestAsWrapped(t *testing.T) {
	err := fmt.Errorf("guard: %w", Redirect("/login"))
	if !Is(err) {
		t.Error("Is() should see through wrapping")
	}
	if Is(fmt.Errorf("plain")) {
		t.Error("Is(plain) = true")
	}
}

func TestChainDetectsTwoCycle(t *testing.T) {
	var c Chain
	urls := []string{"/a", "/b"}

	var err error
	hops := 0
	for i := 0; i < 100 && err == nil; i++ {
		s, _ := As(Render(urls[i%2]))
		err = c.Record(s)
		hops++
	}

	if err == nil {
		t.Fatal("a 2-cycle of rewrites never terminated")
	}
	if hops != MaxChainLength+1 {
		t.Errorf("terminated after %d hops, want %d", hops, MaxChainLength+1)
	}
	if !errors.HasCode(err, errors.CodeInfiniteAbortLoop) {
		t.Errorf("err = %v, want infinite loop usage error", err)
	}
	if !strings.Contains(err.Error(), "render('/a') => render('/b')") {
		t.Errorf("error should name the URL chain: %v", err)
	}
}

func TestChainIgnoresStatus(t *testing.T) {
	var c Chain
	for i := 0; i < 20; i++ {
		s, _ := As(RenderStatus(404))
		if err := c.Record(s); err != nil {
			t.Fatalf("status signals should not count: %v", err)
		}
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestChainMixedKinds(t *testing.T) {
	var c Chain
	for i := 0; i < MaxChainLength; i++ {
		var s *Signal
		if i%2 == 0 {
			s, _ = As(Render("/x"))
		} else {
			s, _ = As(Redirect("/y"))
		}
		if err := c.Record(s); err != nil {
			t.Fatalf("hop %d: unexpected error %v", i, err)
		}
	}
	s, _ := As(Redirect("/z"))
	err := c.Record(s)
	if err == nil {
		t.Fatal("expected error past the cap")
	}
	e := errors.FromError(err, "")
	if !strings.Contains(e.Suggestion, "abort.Render") || !strings.Contains(e.Suggestion, "abort.Redirect") {
		t.Errorf("Suggestion = %q", e.Suggestion)
	}
	if len(c.Calls()) != MaxChainLength+1 {
		t.Errorf("len(Calls()) = %d", len(c.Calls()))
	}
}
