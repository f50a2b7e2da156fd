package models

import (
	"net/url"
	"strings"
)

const keyPrefix = "rl"

// escapeSegment percent-encodes a caller-supplied value (an IPv6 address, an
// id carrying ':') so it can neither contain the key delimiter nor collide
// with another value after escaping.
func escapeSegment(s string) string {
	return url.QueryEscape(s)
}

// BucketKey names the counter that tracks key on resource, e.g.
// "rl:otp_send:203.0.113.9".
func BucketKey(resource Resource, key string) string {
	return strings.Join([]string{keyPrefix, escapeSegment(resource.String()), escapeSegment(key)}, ":")
}
