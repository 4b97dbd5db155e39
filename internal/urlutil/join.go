// Package urlutil builds provider endpoint URLs from a configured base.
package urlutil

import (
	"fmt"
	"net/url"
)

// JoinPath appends path elements to base. A path prefix on base is kept, so
// providers mounted below the root resolve the same way.
func JoinPath(base string, elems ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base url %q is not absolute", base)
	}
	return u.JoinPath(elems...).String(), nil
}

// MustJoinPath is JoinPath for bases validated at config load.
func MustJoinPath(base string, elems ...string) string {
	joined, err := JoinPath(base, elems...)
	if err != nil {
		panic(err)
	}
	return joined
}
