package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNew_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	l, closer := New("dev", Options{File: path, MaxSizeMB: 1})
	l.Info("hello", "k", "v")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(b) == 0 {
		t.Fatalf("expected log output in file")
	}
}

func TestFrom_FallsBackToDefault(t *testing.T) {
	if From(context.Background()) == nil {
		t.Fatalf("expected default logger")
	}
}

func TestMiddleware_SetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := New("production", Options{})

	r := gin.New()
	r.Use(Middleware(l))
	var sawCtxLogger bool
	r.GET("/x", func(c *gin.Context) {
		sawCtxLogger = From(c.Request.Context()) == FromGin(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)

	if w.Header().Get(headerRequestID) == "" {
		t.Fatalf("expected request id header")
	}
	if !sawCtxLogger {
		t.Fatalf("expected request logger on context")
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "abc")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(headerRequestID); got != "abc" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}
