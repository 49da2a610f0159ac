package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"downloads-gateway/internal/client"
	"downloads-gateway/internal/config"
	"downloads-gateway/internal/metrics"
	"downloads-gateway/internal/service"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	g := newGateway(t, testRoutes(t, "cdn.store.tld", "s3://bucket"), nil)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /status", http.MethodGet, "/status", http.StatusOK},
		{"GET /metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"GET /download without signature", http.MethodGet, "/download/abc/file.pdf", http.StatusNotAcceptable},
		{"POST /download", http.MethodPost, "/download/abc/file.pdf", http.StatusMethodNotAllowed},
		{"GET /download missing filename", http.MethodGet, "/download/abc", http.StatusNotFound},
		{"GET /unknown", http.MethodGet, "/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			g.echo.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_MetricsExposition(t *testing.T) {
	g := newGateway(t, testRoutes(t, "cdn.store.tld", "s3://bucket"), nil)

	g.get("https://gateway.tld/download/abc/file.pdf", nil)
	rec := g.get("/metrics", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `downloads_gateway_downloads_total{backend="none",status_code="406"} 1`) {
		t.Errorf("metrics output missing download counter:\n%s", rec.Body.String())
	}
}

func TestRegisterRoutes_MetricsDisabled(t *testing.T) {
	cfg := &config.Config{
		Signing:  config.SigningConfig{Secret: testSecret},
		Upstream: config.UpstreamConfig{TimeoutSeconds: 5, IdleConnections: 10},
		Metrics:  config.MetricsConfig{Enabled: false, Path: "/metrics"},
	}
	routes := testRoutes(t, "cdn.store.tld", "s3://bucket")
	logger := testLogger()
	svc := service.NewDownloadService(client.NewOriginClient(cfg, logger, nil), nil, logger)

	e := echo.New()
	RegisterRoutes(e, cfg, metrics.New(), NewDownloadHandler(cfg, routes, svc, logger, nil), NewHealthHandler(routes, "test"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when metrics are disabled", rec.Code)
	}
}
