// Package route resolves decoded download targets to configured upstreams by
// longest-prefix match on host+path.
package route

import (
	"cmp"
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"downloads-gateway/internal/config"
)

// Kind identifies the backend type of an Upstream.
type Kind int

const (
	// KindHTTPOrigin fetches from an HTTP(S) origin.
	KindHTTPOrigin Kind = iota + 1
	// KindObjectStore reads from an S3 bucket.
	KindObjectStore
)

func (k Kind) String() string {
	switch k {
	case KindHTTPOrigin:
		return "http"
	case KindObjectStore:
		return "s3"
	default:
		return "unknown"
	}
}

// Upstream describes where the bytes for a target are fetched from.
type Upstream struct {
	Kind Kind

	// Object store.
	Bucket    string
	KeyPrefix string

	// HTTP origin.
	BaseURL *url.URL
}

// ParseUpstream parses "s3://bucket[/prefix]" or an absolute http(s) URL.
func ParseUpstream(raw string) (Upstream, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Upstream{}, fmt.Errorf("parse upstream %q: %w", raw, err)
	}
	if u.Host == "" {
		return Upstream{}, fmt.Errorf("upstream %q has no host", raw)
	}

	switch u.Scheme {
	case "s3":
		return Upstream{
			Kind:      KindObjectStore,
			Bucket:    u.Host,
			KeyPrefix: strings.Trim(u.Path, "/"),
		}, nil
	case "http", "https":
		return Upstream{Kind: KindHTTPOrigin, BaseURL: u}, nil
	default:
		return Upstream{}, fmt.Errorf("upstream %q: unsupported scheme %q", raw, u.Scheme)
	}
}

// DirectOrigin returns the upstream used when no route matches: the target's
// own scheme and host.
func DirectOrigin(target *url.URL) Upstream {
	return Upstream{
		Kind:    KindHTTPOrigin,
		BaseURL: &url.URL{Scheme: target.Scheme, Host: target.Host},
	}
}

// ObjectKey returns the storage key for a target path.
func (u Upstream) ObjectKey(path string) string {
	key := strings.TrimPrefix(path, "/")
	if u.KeyPrefix == "" {
		return key
	}
	return u.KeyPrefix + "/" + key
}

// OriginURL re-resolves target against the upstream base URL, replacing scheme
// and host and keeping path and query.
func (u Upstream) OriginURL(target *url.URL, query string) *url.URL {
	out := *u.BaseURL
	out.Path = target.Path
	out.RawPath = target.RawPath
	out.RawQuery = query
	out.Fragment = ""
	out.RawFragment = ""
	return &out
}

func (u Upstream) String() string {
	switch u.Kind {
	case KindObjectStore:
		if u.KeyPrefix != "" {
			return "s3://" + u.Bucket + "/" + u.KeyPrefix
		}
		return "s3://" + u.Bucket
	case KindHTTPOrigin:
		return u.BaseURL.String()
	default:
		return ""
	}
}

// Route is a single prefix → upstream mapping.
type Route struct {
	Prefix   string
	Upstream Upstream
}

// Table is an immutable route table. Routes are kept longest prefix first;
// prefixes of equal length are ordered lexically.
type Table struct {
	routes []Route
}

// NewTable builds a Table from config routes.
func NewTable(cfg *config.Config) (*Table, error) {
	routes := make([]Route, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		up, err := ParseUpstream(rc.Upstream)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", rc.Prefix, err)
		}
		routes = append(routes, Route{Prefix: rc.Prefix, Upstream: up})
	}
	return New(routes)
}

// New builds a Table from routes. Prefixes must be non-empty and unique.
func New(routes []Route) (*Table, error) {
	if len(routes) == 0 {
		return nil, errors.New("route table is empty")
	}

	sorted := make([]Route, len(routes))
	for i, r := range routes {
		r.Prefix = normalizePrefix(r.Prefix)
		sorted[i] = r
	}
	slices.SortFunc(sorted, func(a, b Route) int {
		if c := cmp.Compare(len(b.Prefix), len(a.Prefix)); c != 0 {
			return c
		}
		return strings.Compare(a.Prefix, b.Prefix)
	})

	for i, r := range sorted {
		if r.Prefix == "" {
			return nil, errors.New("route prefix must not be empty")
		}
		if i > 0 && sorted[i-1].Prefix == r.Prefix {
			return nil, fmt.Errorf("duplicate route prefix %q", r.Prefix)
		}
	}

	return &Table{routes: sorted}, nil
}

// Resolve returns the most specific route whose prefix is a string prefix of
// target host+path. It reports false when nothing matches.
func (t *Table) Resolve(target *url.URL) (Route, bool) {
	key := NormalizeHost(target.Scheme, target.Host) + target.Path
	for _, r := range t.routes {
		if strings.HasPrefix(key, r.Prefix) {
			return r, true
		}
	}
	return Route{}, false
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return len(t.routes)
}

// NormalizeHost lowercases host and drops the port when it is the default for
// scheme, so that equivalent authorities compare equal.
func NormalizeHost(scheme, host string) string {
	host = strings.ToLower(host)
	name, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		if strings.Contains(name, ":") {
			return "[" + name + "]"
		}
		return name
	}
	return host
}

// normalizePrefix lowercases the host part of a route prefix. The path part is
// case sensitive and kept as is.
func normalizePrefix(prefix string) string {
	host, path, found := strings.Cut(prefix, "/")
	if !found {
		return strings.ToLower(host)
	}
	return strings.ToLower(host) + "/" + path
}
