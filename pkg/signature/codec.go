// Package signature signs and verifies payment-gateway parameter sets.
//
// Both directions work on the canonical form of a parameter set: blank values
// dropped, keys sorted by their raw bytes, pairs joined as key=value with '&'
// and no percent-encoding. EncodeQuery produces the transport form of the same
// set; the remote side decodes it and signs the canonical form again, so the
// two encodings must stay independent.
package signature

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
)

var ErrMissingSecret = errors.New("signature: hash secret is not configured")

type Codec struct {
	secret []byte
}

// New returns a codec keyed by secret. A blank secret is a configuration error.
func New(secret string) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	return &Codec{secret: []byte(secret)}, nil
}

// Sign returns the uppercase hex HMAC-SHA512 of Canonical(params).
func (c *Codec) Sign(params map[string]string) string {
	mac := hmac.New(sha512.New, c.secret)
	mac.Write([]byte(Canonical(params)))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// Verify reports whether params carries a valid tag in tagField. The tag field
// and every field listed in exclude are left out of the signed data.
func (c *Codec) Verify(params map[string]string, tagField string, exclude ...string) bool {
	provided := strings.TrimSpace(params[tagField])
	if provided == "" {
		return false
	}

	rest := make(map[string]string, len(params))
	for k, v := range params {
		rest[k] = v
	}
	delete(rest, tagField)
	for _, k := range exclude {
		delete(rest, k)
	}

	expected := c.Sign(rest)
	return hmac.Equal([]byte(expected), []byte(strings.ToUpper(provided)))
}

// Canonical renders the signing input for params.
func Canonical(params map[string]string) string {
	keys := sortedKeys(params)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// EncodeQuery renders params as a query string in canonical order. Spaces are
// encoded as %20.
func EncodeQuery(params map[string]string) string {
	keys := sortedKeys(params)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escape(k))
		b.WriteByte('=')
		b.WriteString(escape(params[k]))
	}
	return b.String()
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func sortedKeys(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if strings.TrimSpace(v) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
