package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/config"
)

func TestCORSPreflightAllowsDelete(t *testing.T) {
	r := chi.NewRouter()
	r.Use(cors.Handler(corsOptions(&config.Config{CORSAllowedOrigins: []string{"https://app.example"}})))
	r.Delete("/api/v1/clients/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/clients/abc", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
}

func TestPprofMountServesNamedHandlers(t *testing.T) {
	r := chi.NewRouter()
	r.Mount("/debug/pprof", protectPprof(newPprofMux(), "ops", "secret"))

	get := func(path string, auth bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if auth {
			req.SetBasicAuth("ops", "secret")
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/debug/pprof/cmdline", false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = get("/debug/pprof/cmdline", true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	require.NotContains(t, rec.Body.String(), "Types of profiles available")

	rec = get("/debug/pprof/goroutine?debug=1", true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "goroutine profile")

	rec = get("/debug/pprof/", true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Types of profiles available")
}
