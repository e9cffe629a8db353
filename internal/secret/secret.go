// Package secret defines the account record shared by the codecs, the token
// engine, and the vault. A record pairs a base32-encoded TOTP key with the
// service and user it belongs to; the key stays encoded at rest and is only
// decoded at the moment of HMAC computation or wire encoding.
package secret

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
)

// UnknownLabel is the display label for a record carrying neither service
// nor user.
const UnknownLabel = "unknown"

// ErrBadBase32 indicates key text that does not decode as base32.
var ErrBadBase32 = errors.New("secret is not valid base32")

// Record is one stored TOTP secret. Digits zero means unset; token
// generation and the codecs each apply their own default of six.
type Record struct {
	Service string
	User    string
	Secret  string // base32-encoded shared key
	Digits  int
}

// Label returns the record's display and lookup key: "user@service" when
// both parts are present, the surviving part when only one is, and
// UnknownLabel when neither is.
func (r Record) Label() string {
	switch {
	case r.Service != "" && r.User != "":
		return r.User + "@" + r.Service
	case r.Service != "":
		return r.Service
	case r.User != "":
		return r.User
	}
	return UnknownLabel
}

// SameAccount reports whether two records name the same logical account.
// Only service and user participate; key material and digit width do not,
// so a re-imported secret with a rotated key still matches its old slot.
func SameAccount(a, b Record) bool {
	return a.Service == b.Service && a.User == b.User
}

// ClampDigits narrows a requested token width to one of the supported
// values. Anything outside {6, 8, 10} becomes 6.
func ClampDigits(d int) int {
	switch d {
	case 6, 8, 10:
		return d
	}
	return 6
}

// ParseLabel splits a display label produced by Record.Label back into its
// parts. The split is at the last "@" so user parts that are themselves
// email addresses survive. A label without "@" is treated as a bare
// service, and UnknownLabel maps back to the empty record parts.
func ParseLabel(label string) (user, service string) {
	if label == UnknownLabel {
		return "", ""
	}
	if i := strings.LastIndex(label, "@"); i >= 0 {
		return label[:i], label[i+1:]
	}
	return "", label
}

// DecodeKey decodes base32 key text into raw bytes. Whitespace, padding and
// letter case are normalized first, so keys copied out of provisioning
// pages decode as-is.
func DecodeKey(text string) ([]byte, error) {
	normalized := strings.ToUpper(strings.Join(strings.Fields(text), ""))
	normalized = strings.TrimRight(normalized, "=")
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadBase32)
	}
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBase32, err)
	}
	return raw, nil
}

// EncodeKey encodes raw key bytes as unpadded upper-case base32, the form
// every other component stores and displays.
func EncodeKey(raw []byte) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
}
