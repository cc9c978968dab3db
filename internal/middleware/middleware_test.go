package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tessera/internal/logger"
	"tessera/internal/metrics"

	"github.com/gin-gonic/gin"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	return r
}

func TestRequestIDPropagates(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, "info", "json")

	r := newEngine(RequestID())
	r.GET("/ping", func(c *gin.Context) {
		logger.WithContext(c.Request.Context()).Info("inside")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	req.Header.Set(OperatorHeader, "op7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "op7", entry["operator"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestTimeoutSetsDeadline(t *testing.T) {
	r := newEngine(Timeout(50 * time.Millisecond))
	var deadline bool
	r.GET("/slow", func(c *gin.Context) {
		_, deadline = c.Request.Context().Deadline()
		select {
		case <-c.Request.Context().Done():
			assert.ErrorIs(t, c.Request.Context().Err(), context.DeadlineExceeded)
		case <-time.After(time.Second):
			t.Error("deadline not applied")
		}
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.True(t, deadline)
}

func TestCORSPreflight(t *testing.T) {
	r := newEngine(CORS())
	r.POST("/api/sales", func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/sales", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryReturnsInternalError(t *testing.T) {
	logger.InitWriter(&bytes.Buffer{}, "error", "json")
	r := newEngine(Recovery())
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"ok":false,"error":"internal_error"}`, w.Body.String())
}

func TestMetricsUseRouteTemplate(t *testing.T) {
	r := newEngine(Metrics())
	r.GET("/api/cards/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := metrics.HTTPRequests.WithLabelValues("/api/cards/:id", http.MethodGet, "200")
	before := promtest.ToFloat64(counter)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/cards/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/cards/def", nil))

	assert.Equal(t, before+2, promtest.ToFloat64(counter))

	unmatched := metrics.HTTPRequests.WithLabelValues("unmatched", http.MethodGet, "404")
	before = promtest.ToFloat64(unmatched)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, before+1, promtest.ToFloat64(unmatched))
}
