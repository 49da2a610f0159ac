// Package model defines shared types for the gateway.
package model

import (
	"io"
	"net/http"
	"net/url"
)

// FetchRequest describes an object to retrieve from an upstream.
type FetchRequest struct {
	// Target is the decoded download target.
	Target *url.URL
	// Header holds the inbound client request headers.
	Header http.Header
}

// ProxyResponse represents the upstream outcome to be streamed back.
// Body is never nil; the caller must close it.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
