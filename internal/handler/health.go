package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"downloads-gateway/internal/route"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	routes  *route.Table
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(routes *route.Table, v Version) *HealthHandler {
	return &HealthHandler{routes: routes, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type statusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Routes  int    `json:"routes"`
}

// Status returns gateway status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:  "ok",
		Version: string(h.version),
		Routes:  h.routes.Len(),
	})
}
