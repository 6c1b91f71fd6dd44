package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
)

// ErrNoIdentity is returned when an entry has neither a link nor a native id.
var ErrNoIdentity = errors.New("entry has neither link nor id")

// NewID derives the stable job identifier: sha256 of the canonical link, or of
// the feed-native id when the link is empty. The result is lowercase hex.
func NewID(link, nativeID string) (string, error) {
	key := CanonicalURL(link)
	if key == "" {
		key = strings.TrimSpace(nativeID)
	}
	if key == "" {
		return "", ErrNoIdentity
	}

	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]), nil
}

// CanonicalURL normalises a posting link so that tracking noise does not
// produce distinct identifiers for the same posting.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		if isTrackingParam(k) {
			q.Del(k)
		}
	}

	for k := range q {
		vals := q[k]
		sort.Strings(vals)
		q[k] = vals
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func isTrackingParam(key string) bool {
	k := strings.ToLower(key)
	if strings.HasPrefix(k, "utm_") {
		return true
	}
	switch k {
	case "gclid", "fbclid", "msclkid", "mc_cid", "mc_eid", "mkt_tok":
		return true
	}
	return false
}
