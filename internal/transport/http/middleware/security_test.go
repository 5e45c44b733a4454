package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ErlanBelekov/bloodbank/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

func TestSecurity_Headers(t *testing.T) {
	for _, hsts := range []bool{true, false} {
		r := gin.New()
		r.Use(middleware.Security(hsts))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if w.Header().Get("Cache-Control") != "no-store" {
			t.Errorf("hsts=%v: Cache-Control = %q", hsts, w.Header().Get("Cache-Control"))
		}
		if got := w.Header().Get("Strict-Transport-Security") != ""; got != hsts {
			t.Errorf("hsts=%v: HSTS header present = %v", hsts, got)
		}
	}
}

func TestRequestID_GeneratesAndPreserves(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("no request id generated")
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	r.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") != "abc-123" {
		t.Errorf("incoming id not preserved, got %q", w.Header().Get("X-Request-ID"))
	}
}
