// Package urlquery edits raw query strings without re-encoding them.
package urlquery

import (
	"net/url"
	"slices"
	"strings"
)

// Without returns rawQuery minus every parameter whose decoded name is in
// names. The order and encoding of the remaining parameters are untouched,
// which url.Values.Encode does not guarantee.
func Without(rawQuery string, names ...string) string {
	if rawQuery == "" {
		return ""
	}

	pairs := strings.Split(rawQuery, "&")
	kept := pairs[:0]
	for _, pair := range pairs {
		key, _, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil && slices.Contains(names, k) {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}
