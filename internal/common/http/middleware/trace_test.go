package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"codequest/internal/common/http/middleware"
	"codequest/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

func TestTraceContextMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.TraceContextMiddleware())

	var ctxTraceID, ctxUserID string
	router.GET("/probe", func(c *gin.Context) {
		if v, ok := c.Request.Context().Value(contextkey.TraceID).(string); ok {
			ctxTraceID = v
		}
		if v, ok := c.Request.Context().Value(contextkey.UserID).(string); ok {
			ctxUserID = v
		}
		c.Status(http.StatusOK)
	})

	t.Run("generates trace id when missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		router.ServeHTTP(rec, req)

		header := rec.Header().Get("X-Trace-Id")
		if header == "" {
			t.Fatalf("expected generated trace id header")
		}
		if ctxTraceID != header {
			t.Fatalf("context trace id %q does not match header %q", ctxTraceID, header)
		}
		if rec.Header().Get("X-Request-Id") == "" {
			t.Fatalf("expected generated request id header")
		}
	})

	t.Run("preserves incoming ids", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set("X-Trace-Id", "trace-123")
		req.Header.Set("X-User-Id", "7")
		router.ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Trace-Id"); got != "trace-123" {
			t.Fatalf("expected trace-123, got %q", got)
		}
		if ctxTraceID != "trace-123" {
			t.Fatalf("expected trace-123 in context, got %q", ctxTraceID)
		}
		if ctxUserID != "7" {
			t.Fatalf("expected user id 7 in context, got %q", ctxUserID)
		}
	})
}
