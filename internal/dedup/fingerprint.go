// Package dedup provides item identity and content deduplication.
//
// Two independent layers coexist: identity dedup keyed by canonical URL
// (crawl-local, cheap) and content dedup keyed by a fingerprint of the
// normalized payload text (shared with the ingestion side).
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Tracking parameters stripped during URL canonicalization.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"fbclid":       true,
	"gclid":        true,
}

// CanonicalURL normalizes a URL into the stable identity key used for
// cross-run item deduplication. Unparsable input is returned trimmed, so
// that an odd href still dedupes against itself.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	// Strip default ports.
	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	// Fragments never change the addressed item.
	u.Fragment = ""

	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	if u.RawQuery != "" {
		u.RawQuery = normalizeQuery(u.Query())
	}

	return u.String()
}

// normalizeQuery drops tracking parameters and sorts the rest for a
// stable serialization.
func normalizeQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if trackingParams[strings.ToLower(k)] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Fingerprint computes the content-level duplicate detection key: the
// text is lowercased, whitespace-collapsed, and hashed to a fixed-length
// digest. Identical content under different URLs produces the same
// fingerprint.
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
