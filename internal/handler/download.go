// Package handler serves the download endpoint and the operational endpoints.
package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"downloads-gateway/internal/config"
	"downloads-gateway/internal/identifier"
	"downloads-gateway/internal/metrics"
	"downloads-gateway/internal/model"
	"downloads-gateway/internal/route"
	"downloads-gateway/internal/service"
	"downloads-gateway/internal/signer"
)

const (
	textNotFound         = "Not Found"
	textNoSignature      = "Not Acceptable: no signature given"
	textInvalidSignature = "Not Acceptable: invalid signature"
	textBadGateway       = "Bad Gateway"
)

var filenameEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r", "", "\n", "")

// DownloadHandler verifies signed download requests and streams the target
// back from its upstream.
type DownloadHandler struct {
	secret       string
	trustedHosts []string
	routes       *route.Table
	service      *service.DownloadService
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewDownloadHandler creates a DownloadHandler. The metrics parameter is optional.
func NewDownloadHandler(cfg *config.Config, routes *route.Table, svc *service.DownloadService, logger *slog.Logger, m *metrics.Metrics) *DownloadHandler {
	return &DownloadHandler{
		secret:       cfg.Signing.Secret,
		trustedHosts: cfg.Signing.TrustedHosts,
		routes:       routes,
		service:      svc,
		logger:       logger.With("component", "download_handler"),
		metrics:      m,
	}
}

// Handle serves GET /download/:id/:filename.
func (h *DownloadHandler) Handle(c echo.Context) error {
	req := c.Request()
	log := newRequestLog(c, h.logger, h.metrics)

	u, err := requestURL(req)
	if err != nil {
		log.finish(http.StatusNotFound, "malformed request url", "err", err)
		return c.String(http.StatusNotFound, textNotFound)
	}

	signature := u.Query().Get(signer.SignatureParam)
	if signature == "" {
		log.finish(http.StatusNotAcceptable, "no signature given")
		return c.String(http.StatusNotAcceptable, textNoSignature)
	}

	forwardedHost := strings.Join(req.Header.Values("X-Forwarded-Host"), ", ")
	canonical := signer.Canonicalize(u, forwardedHost, h.trustedHosts)
	if !signer.Verify(h.secret, canonical, signature) {
		log.finish(http.StatusNotAcceptable, "failed to verify the url for the download",
			"canonical_url", canonical,
			"forwarded_host", forwardedHost,
		)
		return c.String(http.StatusNotAcceptable, textInvalidSignature)
	}

	target, err := identifier.Decode(pathParam(c, "id"))
	if err != nil {
		log.finish(http.StatusNotFound, "undecodable identifier", "err", err)
		return c.String(http.StatusNotFound, textNotFound)
	}
	log.add("target", target.String())

	up := route.DirectOrigin(target)
	if r, ok := h.routes.Resolve(target); ok {
		up = r.Upstream
		log.add("route", r.Prefix)
	}
	log.setBackend(up.Kind.String())
	log.debug("resolved upstream", "upstream", up.String())

	resp, err := h.service.Fetch(req.Context(), up, &model.FetchRequest{
		Target: target,
		Header: req.Header,
	})
	if err != nil {
		return h.badGateway(c, log, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		resp.Header.Set(echo.HeaderContentDisposition, contentDisposition(pathParam(c, "filename")))
		if canonicalURI := identifier.CanonicalURI(target); canonicalURI != "" {
			resp.Header.Set("Link", fmt.Sprintf("<%s>; rel=\"canonical\"", canonicalURI))
		}
	}

	return h.stream(c, log, resp)
}

// stream writes resp to the client. Once the status line is sent a failed copy
// can only truncate the body, so it is logged and not returned.
func (h *DownloadHandler) stream(c echo.Context, log *requestLog, resp *model.ProxyResponse) error {
	header := c.Response().Header()
	for key, vals := range resp.Header {
		for _, v := range vals {
			header.Add(key, v)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)

	n, err := io.Copy(c.Response(), resp.Body)
	if err != nil {
		log.finish(resp.StatusCode, "streaming response body", "bytes", n, "err", err)
		return nil
	}

	msg := "download served"
	if resp.StatusCode != http.StatusOK {
		msg = "upstream outcome passed through"
	}
	log.finish(resp.StatusCode, msg, "bytes", n)
	return nil
}

func (h *DownloadHandler) badGateway(c echo.Context, log *requestLog, err error) error {
	body := textBadGateway

	var upErr *service.UpstreamError
	if errors.As(err, &upErr) && upErr.StatusCode != 0 {
		body = fmt.Sprintf("%s\n\nError fetching upstream content: %d", textBadGateway, upErr.StatusCode)
		log.finish(http.StatusBadGateway, "upstream source failed to return 200 or 304",
			"upstream_status", upErr.StatusCode,
		)
	} else {
		log.finish(http.StatusBadGateway, "failed to connect to the upstream source", "err", err)
	}

	return c.String(http.StatusBadGateway, body)
}

// requestURL reconstructs the absolute URL the client requested. Only the
// connection decides the scheme; forwarded scheme headers are not trusted. The
// host is lowercased and a default port dropped.
func requestURL(req *http.Request) (*url.URL, error) {
	raw := req.RequestURI
	if raw == "" {
		raw = req.URL.RequestURI()
	}

	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		if req.Host == "" {
			return nil, errors.New("request has no host")
		}
		u.Scheme = "http"
		if req.TLS != nil {
			u.Scheme = "https"
		}
		u.Host = req.Host
	}
	u.Host = route.NormalizeHost(u.Scheme, u.Host)
	return u, nil
}

// pathParam returns the decoded path parameter name. The router matches against
// the raw path when the request has one, leaving parameters escaped.
func pathParam(c echo.Context, name string) string {
	raw := c.Param(name)
	if c.Request().URL.RawPath == "" {
		return raw
	}
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func contentDisposition(name string) string {
	return `attachment; filename="` + filenameEscaper.Replace(name) + `"`
}
