// Package otpauth encodes and decodes the single-secret otpauth:// URL
// scheme used by authenticator apps and QR provisioning pages.
//
// The wire form is
//
//	otpauth://totp/<service>[%3A<user>]?secret=<key>;digits=<n>
//
// with the label colon percent-encoded and the query joined by semicolons.
// Decoding is deliberately lax: it accepts "&" as well as ";", a bare colon
// in the label, and unknown parameters, because URLs arrive from QR
// decoders and hand-edited files in every variation.
package otpauth

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/benaskins/tessera/internal/secret"
)

// Scheme is the URL scheme for a single exported secret.
const Scheme = "otpauth"

// ErrScheme indicates a URL whose scheme is not otpauth.
var ErrScheme = errors.New("not an otpauth URL")

// Wrap encodes a record as an otpauth://totp/ URL. The digit parameter is
// narrowed to {6, 8, 10} so the emitted URL always carries a width other
// tools accept.
func Wrap(rec secret.Record) string {
	var sb strings.Builder
	sb.WriteString(Scheme)
	sb.WriteString("://totp/")
	sb.WriteString(escape(rec.Service))
	if rec.User != "" {
		sb.WriteString("%3A")
		sb.WriteString(escape(rec.User))
	}
	sb.WriteString("?secret=")
	sb.WriteString(escape(rec.Secret))
	sb.WriteString(";digits=")
	sb.WriteString(strconv.Itoa(secret.ClampDigits(rec.Digits)))
	return sb.String()
}

// Unwrap decodes an otpauth URL into a record. The label splits at its
// first colon into service and user; a label without a colon is a bare
// service. Digits outside [6, 10] are pulled to the nearest bound and a
// missing or malformed digits parameter defaults to 6.
func Unwrap(rawURL string) (secret.Record, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return secret.Record{}, fmt.Errorf("parsing otpauth URL: %w", err)
	}
	if u.Scheme != Scheme {
		return secret.Record{}, fmt.Errorf("%w: scheme %q", ErrScheme, u.Scheme)
	}

	var rec secret.Record
	// url.Parse has already percent-decoded the path, so an encoded %3A
	// and a literal colon land here the same way.
	label := strings.TrimPrefix(u.Path, "/")
	if service, user, ok := strings.Cut(label, ":"); ok {
		rec.Service, rec.User = service, user
	} else {
		rec.Service = label
	}

	params := parseQuery(u.RawQuery)
	rec.Secret = params["secret"]
	rec.Digits = clampRange(params["digits"])
	return rec, nil
}

// parseQuery splits a query on both "&" and ";". net/url rejects
// semicolon-separated queries outright and this scheme uses them, so the
// split is done by hand. Malformed percent escapes keep their raw text.
func parseQuery(rawQuery string) map[string]string {
	params := make(map[string]string)
	pairs := strings.FieldsFunc(rawQuery, func(r rune) bool {
		return r == '&' || r == ';'
	})
	for _, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		if key == "" {
			continue
		}
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		params[key] = value
	}
	return params
}

// clampRange parses a digits parameter and pulls it into [6, 10].
func clampRange(text string) int {
	d, err := strconv.Atoi(text)
	if err != nil {
		return 6
	}
	if d < 6 {
		return 6
	}
	if d > 10 {
		return 10
	}
	return d
}

// escape percent-encodes everything outside the RFC 3986 unreserved set,
// keeping "@" readable since user parts are usually email addresses.
// url.PathEscape is unsuitable here: it leaves ":" bare, and the label
// colon must be encoded.
func escape(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			sb.WriteByte(c)
		case c == '-' || c == '.' || c == '_' || c == '~' || c == '@':
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, "%%%02X", c)
		}
	}
	return sb.String()
}
