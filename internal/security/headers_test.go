package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(h Headers, req *http.Request) http.Header {
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr.Result().Header
}

func TestHeadersMiddlewareSetsSecurityHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/api/v1/invoices", nil)
	req.TLS = &tls.ConnectionState{}
	headers := serve(Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 600, HSTSIncludeSubdomains: true}, req)

	if got := headers.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff header, got %q", got)
	}
	if got := headers.Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected no-store, got %q", got)
	}
	if got := headers.Get("Strict-Transport-Security"); got != "max-age=600; includeSubDomains" {
		t.Fatalf("unexpected hsts header %q", got)
	}
}

func TestHeadersHSTSBehindProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	if got := serve(Headers{Enable: true, EnableHSTS: true}, req).Get("Strict-Transport-Security"); got != "max-age=31536000" {
		t.Fatalf("unexpected hsts header %q", got)
	}

	plain := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := serve(Headers{Enable: true, EnableHSTS: true}, plain).Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("expected no hsts over http, got %q", got)
	}
}

func TestHeadersDisabled(t *testing.T) {
	headers := serve(Headers{}, httptest.NewRequest(http.MethodGet, "/", nil))
	if headers.Get("X-Frame-Options") != "" {
		t.Fatal("expected no headers when disabled")
	}
}
