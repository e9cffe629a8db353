// Package totp computes RFC 6238 time-based one-time passwords. The hash,
// period, clock offset and clock itself are all injectable so callers can
// pin every input in tests and correct for drifting device clocks in the
// field.
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash"
	"time"

	"github.com/benaskins/tessera/internal/secret"
)

const (
	// DefaultDigits is the token width when none is set.
	DefaultDigits = 6
	// DefaultPeriod is the RFC 6238 time step.
	DefaultPeriod = 30 * time.Second
)

// Config holds the inputs for token generation. The zero value of every
// field except Secret selects the RFC 6238 defaults: six digits, a thirty
// second period, no offset, HMAC-SHA1 and the system clock.
type Config struct {
	// Secret is the base32-encoded shared key.
	Secret string
	// Digits is the token width. It is passed through as given: the URL
	// and migration codecs own clamping, and a caller asking for an
	// unusual width gets the correspondingly truncated token.
	Digits int
	// Period is the time step. Sub-second precision is ignored.
	Period time.Duration
	// Offset shifts the clock backwards before the period count, for
	// tokens that must match a device whose clock lags.
	Offset time.Duration
	// Hash constructs the HMAC hash. Nil means sha1.New. Digests shorter
	// than 20 bytes cannot be truncated dynamically and are rejected.
	Hash func() hash.Hash
	// Now supplies the current time. Nil means time.Now.
	Now func() time.Time
}

// Code is one generated token together with its validity window.
type Code struct {
	// Token is the zero-padded decimal token text.
	Token string
	// TTL is how long the token remains valid.
	TTL time.Duration
	// ExpiresAt is one full period past the generation instant.
	ExpiresAt time.Time
}

// Code generates the token for the current period.
func (c Config) Code() (Code, error) {
	key, err := secret.DecodeKey(c.Secret)
	if err != nil {
		return Code{}, err
	}
	digits := c.Digits
	if digits <= 0 {
		digits = DefaultDigits
	}
	period := c.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	newHash := c.Hash
	if newHash == nil {
		newHash = sha1.New
	}
	nowFn := c.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	now := nowFn().Unix()
	step := int64(period / time.Second)
	counter := (now - int64(c.Offset/time.Second)) / step

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))
	mac := hmac.New(newHash, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// RFC 4226 dynamic truncation: the low nibble of the last byte picks
	// a 31-bit big-endian window into the digest.
	if len(sum) < 20 {
		return Code{}, fmt.Errorf("hash digest too short for truncation: %d bytes", len(sum))
	}
	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	token := fmt.Sprintf("%0*d", digits, uint64(value)%pow10(digits))

	return Code{
		Token:     token,
		TTL:       time.Duration(step-now%step) * time.Second,
		ExpiresAt: time.Unix(now+step, 0),
	}, nil
}

// pow10 computes 10^n, saturating near the uint64 limit. The truncated
// value is 31 bits, so saturation degrades to the identity modulus.
func pow10(n int) uint64 {
	p := uint64(1)
	for i := 0; i < n && p <= 1<<60; i++ {
		p *= 10
	}
	return p
}
