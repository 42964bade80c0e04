package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecure(opt SecurityOptions, prep func(*http.Request), pre gin.HandlerFunc) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	if prep != nil {
		prep(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveSecure(SecurityOptions{}, nil, nil)
	if h.Get("X-Content-Type-Options") != "nosniff" || h.Get("X-Frame-Options") != "DENY" || h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline missing: %v", h)
	}
	if h.Get("Permissions-Policy") != "" || h.Get("Cache-Control") != "" || h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("optional headers leaked: %v", h)
	}
	exp := h.Get("Access-Control-Expose-Headers")
	for _, n := range exposed {
		if !strings.Contains(exp, n) {
			t.Fatalf("%s not exposed: %q", n, exp)
		}
	}
}

func TestSecurityHeaders_OptionalHeaders(t *testing.T) {
	h := serveSecure(SecurityOptions{NoStore: true, EnablePolicy: true}, nil, nil)
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("no-store headers: %v", h)
	}
	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers: %v", h)
	}
}

func TestSecurityHeaders_HSTSOnlyOverHTTPS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour}
	if h := serveSecure(opt, nil, nil); h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS on plain HTTP")
	}
	h := serveSecure(opt, func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, nil)
	if got := h.Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains; preload" {
		t.Fatalf("HSTS=%q", got)
	}
	h = serveSecure(SecurityOptions{EnableHSTS: true}, func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") }, nil)
	if !strings.HasPrefix(h.Get("Strict-Transport-Security"), "max-age=15552000") {
		t.Fatalf("default max-age: %q", h.Get("Strict-Transport-Security"))
	}
}

func TestSecurityHeaders_MergesExistingExposeList(t *testing.T) {
	pre := func(c *gin.Context) {
		c.Header("Access-Control-Expose-Headers", "Foo, x-request-id")
		c.Next()
	}
	got := serveSecure(SecurityOptions{}, nil, pre).Get("Access-Control-Expose-Headers")
	if !strings.HasPrefix(got, "Foo, x-request-id") || strings.Count(strings.ToLower(got), "x-request-id") != 1 {
		t.Fatalf("expose list=%q", got)
	}
	if !strings.Contains(got, "Retry-After") {
		t.Fatalf("Retry-After not appended: %q", got)
	}
}
