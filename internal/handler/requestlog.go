package handler

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/labstack/echo/v4"

	"downloads-gateway/internal/metrics"
)

// backendNone labels downloads that ended before an upstream was chosen.
const backendNone = "none"

// requestLog collects context for a single download request and emits one
// terminal record when the request completes.
type requestLog struct {
	ctx      context.Context
	logger   *slog.Logger
	metrics  *metrics.Metrics
	backend  string
	finished bool
}

func newRequestLog(c echo.Context, logger *slog.Logger, m *metrics.Metrics) *requestLog {
	id := c.Response().Header().Get(echo.HeaderXRequestID)
	if id == "" {
		id = c.Request().Header.Get(echo.HeaderXRequestID)
	}
	return &requestLog{
		ctx:     c.Request().Context(),
		logger:  logger.With("request_id", id),
		metrics: m,
		backend: backendNone,
	}
}

// add attaches key/value context to every later record.
func (l *requestLog) add(args ...any) {
	l.logger = l.logger.With(args...)
}

func (l *requestLog) setBackend(backend string) {
	l.backend = backend
	l.add("backend", backend)
}

// debug emits an intermediate record.
func (l *requestLog) debug(msg string, args ...any) {
	l.logger.DebugContext(l.ctx, msg, args...)
}

// finish emits the terminal record. Only the first call has an effect.
func (l *requestLog) finish(status int, msg string, args ...any) {
	if l.finished {
		return
	}
	l.finished = true

	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	l.logger.Log(l.ctx, level, msg, append([]any{"status", status}, args...)...)

	if l.metrics != nil {
		l.metrics.DownloadsTotal.WithLabelValues(l.backend, strconv.Itoa(status)).Inc()
	}
}
