// Package identifier converts target URLs to and from the opaque path segment
// used in download links.
//
// The identifier is the standard base64 encoding of the target URL. Producers
// that need a path-safe token substitute '+', '/' and '=' with '.', '_' and '-'.
// Decoding always reverses the substitution, so both forms are accepted.
package identifier

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"downloads-gateway/internal/urlquery"
)

// ErrInvalid is returned when an identifier does not decode to an absolute URL.
var ErrInvalid = errors.New("invalid identifier")

var (
	escaper   = strings.NewReplacer("+", ".", "/", "_", "=", "-")
	unescaper = strings.NewReplacer(".", "+", "_", "/", "-", "=")
)

// Encode returns the raw base64 identifier for target.
func Encode(target string) string {
	return base64.StdEncoding.EncodeToString([]byte(target))
}

// EncodeSafe returns the path-safe identifier for target.
func EncodeSafe(target string) string {
	return escaper.Replace(Encode(target))
}

// Decode reverses the character substitution, base64-decodes id and parses the
// result as an absolute URL. Padding is optional.
func Decode(id string) (*url.URL, error) {
	raw := strings.TrimRight(unescaper.Replace(id), "=")
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalid)
	}

	decoded, err := base64.RawStdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	u, err := url.Parse(string(decoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute URL", ErrInvalid, decoded)
	}
	return u, nil
}

// CanonicalURIParam is the target query parameter naming the canonical page of
// a download. It is response metadata only.
const CanonicalURIParam = "canonicalUri"

// CanonicalURI returns the canonicalUri parameter of target, or "".
func CanonicalURI(target *url.URL) string {
	return target.Query().Get(CanonicalURIParam)
}

// UpstreamQuery returns the raw query of target without canonicalUri.
func UpstreamQuery(target *url.URL) string {
	return urlquery.Without(target.RawQuery, CanonicalURIParam)
}
