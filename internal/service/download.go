// Package service fetches download targets from HTTP origins and object stores.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"downloads-gateway/internal/client"
	"downloads-gateway/internal/identifier"
	"downloads-gateway/internal/model"
	"downloads-gateway/internal/route"
	"downloads-gateway/internal/storage"
)

// forwardableRequestHeaders are the only client headers sent to HTTP origins.
var forwardableRequestHeaders = []string{
	"Accept",
	"Cache-Control",
	"If-Modified-Since",
	"If-None-Match",
	"Referer",
	"X-Forwarded-Host",
	"X-Forwarded-Port",
	"X-Forwarded-Proto",
}

// forwardableResponseHeaders are the only origin headers sent to the client.
var forwardableResponseHeaders = map[string]bool{
	"Content-Length": true,
	"Etag":           true,
	"Content-Type":   true,
	"Last-Modified":  true,
	"Cache-Control":  true,
	"Date":           true,
	"Expires":        true,
	"Vary":           true,
}

const userAgent = "downloads-gateway/1.0"

// DownloadService retrieves targets from the upstream selected for them.
type DownloadService struct {
	origin *client.OriginClient
	stores storage.Factory
	logger *slog.Logger
}

// NewDownloadService creates a DownloadService. stores is only called when a
// target resolves to an object store.
func NewDownloadService(origin *client.OriginClient, stores storage.Factory, logger *slog.Logger) *DownloadService {
	return &DownloadService{
		origin: origin,
		stores: stores,
		logger: logger.With("component", "download_service"),
	}
}

// Fetch retrieves req.Target from up. A missing object is returned as a 404
// response rather than an error. Any other failure is an *UpstreamError.
// The caller must close the response body.
func (s *DownloadService) Fetch(ctx context.Context, up route.Upstream, req *model.FetchRequest) (*model.ProxyResponse, error) {
	if up.Kind == route.KindObjectStore {
		return s.fetchObject(ctx, up, req.Target)
	}
	return s.fetchHTTP(ctx, up, req)
}

func (s *DownloadService) fetchHTTP(ctx context.Context, up route.Upstream, req *model.FetchRequest) (*model.ProxyResponse, error) {
	originURL := up.OriginURL(req.Target, identifier.UpstreamQuery(req.Target))

	s.logger.Debug("fetching from origin", "url", originURL.String())

	resp, err := s.origin.Get(ctx, originURL.String(), filterRequestHeaders(req.Header))
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotModified:
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return notFound(), nil
	default:
		_ = resp.Body.Close()
		return nil, &UpstreamError{StatusCode: resp.StatusCode}
	}

	header := filterResponseHeaders(resp.Header)
	if resp.StatusCode == http.StatusOK && resp.ContentLength >= 0 && header.Get("Content-Length") == "" {
		header.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       resp.Body,
	}, nil
}

func (s *DownloadService) fetchObject(ctx context.Context, up route.Upstream, target *url.URL) (*model.ProxyResponse, error) {
	store, err := s.stores(ctx)
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("object store client: %w", err)}
	}

	key := up.ObjectKey(target.Path)
	s.logger.Debug("fetching from object store", "bucket", up.Bucket, "key", key)

	exists, err := store.Exists(ctx, up.Bucket, key)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	if !exists {
		return notFound(), nil
	}

	// The body stream and the metadata are independent calls. errgroup.WithContext
	// is not used because its context ends when Wait returns, which would cut the
	// body off.
	var (
		g    errgroup.Group
		body io.ReadCloser
		info storage.ObjectInfo
	)
	g.Go(func() error {
		var err error
		body, err = store.Open(ctx, up.Bucket, key)
		return err
	})
	g.Go(func() error {
		var err error
		info, err = store.Stat(ctx, up.Bucket, key)
		return err
	})
	if err := g.Wait(); err != nil {
		if body != nil {
			_ = body.Close()
		}
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(), nil
		}
		return nil, &UpstreamError{Err: err}
	}

	return &model.ProxyResponse{
		StatusCode: http.StatusOK,
		Header:     objectHeaders(info),
		Body:       body,
	}, nil
}

func objectHeaders(info storage.ObjectInfo) http.Header {
	h := make(http.Header)
	if info.Size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if info.ContentType != "" {
		h.Set("Content-Type", info.ContentType)
	}
	if info.ETag != "" {
		h.Set("Etag", info.ETag)
	}
	if !info.LastModified.IsZero() {
		h.Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	}
	return h
}

func notFound() *model.ProxyResponse {
	text := http.StatusText(http.StatusNotFound)
	return &model.ProxyResponse{
		StatusCode: http.StatusNotFound,
		Header: http.Header{
			"Content-Type":   {"text/plain; charset=UTF-8"},
			"Content-Length": {strconv.Itoa(len(text))},
		},
		Body: io.NopCloser(strings.NewReader(text)),
	}
}

func filterRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	dst.Set("User-Agent", userAgent)
	return dst
}

func filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[key] = vals
		}
	}
	return dst
}
