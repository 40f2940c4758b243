package feed

import (
	"net/url"
	"strings"
)

// Canonicalize turns a link into a deduplication key. Query and fragment are
// dropped entirely, so articles identified only by a query parameter collapse
// onto the same key.
func Canonicalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(rawURL)
	}

	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	return strings.ToLower(u.String())
}
