package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newMetricsRouter(t *testing.T, metrics *HTTPMetrics) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(metrics.Handler())
	router.POST("/User1/create", func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	router.GET("/User1/get", func(c *gin.Context) {
		c.Status(http.StatusUnauthorized)
	})
	return router
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHTTPMetricsLabelsByRouteTemplate(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewHTTPMetrics returned error: %v", err)
	}
	router := newMetricsRouter(t, metrics)

	if rr := serve(router, http.MethodPost, "/User1/create"); rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	serve(router, http.MethodGet, "/User1/get")
	serve(router, http.MethodGet, "/User1/get")

	cases := []struct {
		labels prometheus.Labels
		want   float64
	}{
		{labels: prometheus.Labels{"method": http.MethodPost, "route": "/User1/create", "status": "201"}, want: 1},
		{labels: prometheus.Labels{"method": http.MethodGet, "route": "/User1/get", "status": "401"}, want: 2},
	}
	for _, tc := range cases {
		if got := testutil.ToFloat64(metrics.Requests.With(tc.labels)); got != tc.want {
			t.Fatalf("requests%v = %f, want %f", tc.labels, got, tc.want)
		}
	}

	if got := testutil.ToFloat64(metrics.InFlight); got != 0 {
		t.Fatalf("expected in-flight gauge to return to 0, got %f", got)
	}
	if samples := testutil.CollectAndCount(metrics.Duration); samples != 2 {
		t.Fatalf("expected one histogram series per route, got %d", samples)
	}
}

func TestHTTPMetricsGroupsUnmatchedPaths(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewHTTPMetrics returned error: %v", err)
	}
	router := newMetricsRouter(t, metrics)

	for _, path := range []string{"/User3/create", "/no/such/path", "/User1/create/extra"} {
		if rr := serve(router, http.MethodGet, path); rr.Code != http.StatusNotFound {
			t.Fatalf("%s: expected status 404, got %d", path, rr.Code)
		}
	}

	labels := prometheus.Labels{"method": http.MethodGet, "route": unmatchedRoute, "status": "404"}
	if got := testutil.ToFloat64(metrics.Requests.With(labels)); got != 3 {
		t.Fatalf("expected 3 unmatched requests, got %f", got)
	}
	if got := testutil.CollectAndCount(metrics.Requests); got != 1 {
		t.Fatalf("expected unmatched paths to share one series, got %d", got)
	}
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("first NewHTTPMetrics returned error: %v", err)
	}
	second, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("second NewHTTPMetrics returned error: %v", err)
	}

	if first.Requests != second.Requests || first.Duration != second.Duration || first.InFlight != second.InFlight {
		t.Fatal("expected second construction to return the registered collectors")
	}

	serve(newMetricsRouter(t, second), http.MethodPost, "/User1/create")
	labels := prometheus.Labels{"method": http.MethodPost, "route": "/User1/create", "status": "201"}
	if got := testutil.ToFloat64(first.Requests.With(labels)); got != 1 {
		t.Fatalf("expected both handles to share counts, got %f", got)
	}
}

func TestHTTPMetricsHandlerNoopWhenNil(t *testing.T) {
	router := newMetricsRouter(t, nil)

	if rr := serve(router, http.MethodPost, "/User1/create"); rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
}
