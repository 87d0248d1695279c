package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func serve(r *Router, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.Engine.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(zap.NewNop(), nil)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodHead, "/healthz").Code)

	metrics := serve(r, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "go_goroutines")
}

func TestRouter_Readiness(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ok := NewRouter(zap.NewNop(), map[string]Pinger{
		"db": PingFunc(func(context.Context) error { return nil }),
	})
	w := serve(ok, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")

	down := NewRouter(zap.NewNop(), map[string]Pinger{
		"db": PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	w = serve(down, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "db_not_ready")
}
