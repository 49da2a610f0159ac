package signer

import (
	"net"
	"net/url"
	"slices"
	"strings"

	"downloads-gateway/internal/urlquery"
)

// SignatureParam is the query parameter carrying the URL signature.
const SignatureParam = "_hash"

// OverrideHost returns the host to substitute into the request URL, taken from a
// comma-separated X-Forwarded-Host value. Only the last entry is considered, since
// it is the one appended by the closest (trusted) proxy, and it is honoured only
// when present in trusted.
func OverrideHost(forwardedHost string, trusted []string) (string, bool) {
	if forwardedHost == "" {
		return "", false
	}
	parts := strings.Split(forwardedHost, ",")
	last := strings.TrimSpace(parts[len(parts)-1])
	if last == "" || !slices.Contains(trusted, last) {
		return "", false
	}
	return last, true
}

// ApplyHostOverride rewrites u to https on the default port of host, lowercased.
// It returns a copy; u is not modified.
func ApplyHostOverride(u *url.URL, host string) *url.URL {
	out := *u
	out.Scheme = "https"
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
		if strings.Contains(h, ":") {
			host = "[" + h + "]"
		}
	}
	out.Host = strings.ToLower(host)
	return &out
}

// StripSignature returns a copy of u without the signature parameter. Remaining
// parameters keep their original order and encoding.
func StripSignature(u *url.URL) *url.URL {
	out := *u
	out.RawQuery = urlquery.Without(out.RawQuery, SignatureParam)
	out.ForceQuery = false
	return &out
}

// Canonicalize produces the URL string a download link was signed over: the
// trusted host override is applied first, then the signature parameter is removed.
func Canonicalize(u *url.URL, forwardedHost string, trusted []string) string {
	if host, ok := OverrideHost(forwardedHost, trusted); ok {
		u = ApplyHostOverride(u, host)
	}
	return StripSignature(u).String()
}
