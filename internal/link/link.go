// Package link builds signed download links.
package link

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"downloads-gateway/internal/identifier"
	"downloads-gateway/internal/route"
	"downloads-gateway/internal/signer"
)

// Build returns a link on gateway host that downloads target as filename.
// host is the scheme and authority the gateway is reached at, e.g.
// "https://elifesciences.org"; its host is normalized the way the gateway
// normalizes request hosts. The signature covers the link without its query.
func Build(secret, host, target, filename string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required")
	}
	if filename == "" {
		return "", errors.New("filename is required")
	}

	base, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("parse host: %w", err)
	}
	if !base.IsAbs() || base.Host == "" {
		return "", fmt.Errorf("host %q must be an absolute URL", host)
	}

	t, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse target: %w", err)
	}
	if !t.IsAbs() || t.Host == "" {
		return "", fmt.Errorf("target %q must be an absolute URL", target)
	}

	base.Host = route.NormalizeHost(base.Scheme, base.Host)
	unsigned := strings.TrimRight(base.String(), "/") +
		"/download/" + identifier.EncodeSafe(target) +
		"/" + url.PathEscape(filename)

	signature := signer.Sign(secret, unsigned)
	return unsigned + "?" + signer.SignatureParam + "=" + url.QueryEscape(signature), nil
}
