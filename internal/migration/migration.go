// Package migration implements the otpauth-migration bulk transfer format:
// a protobuf payload of secret records, base64-encoded into the data
// parameter of an otpauth-migration://offline URL. Large collections are
// split greedily across several URLs so each stays inside a QR-friendly
// length budget.
//
// Decoding is permissive where the payload allows it. Unknown fields are
// skipped, a corrupt record submessage is dropped without losing its
// siblings, and only damage to the outer framing (bad varints, group wire
// types, truncated lengths) aborts the walk.
package migration

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/benaskins/tessera/internal/pblite"
	"github.com/benaskins/tessera/internal/secret"
)

// Scheme is the URL scheme for a bulk export chunk.
const Scheme = "otpauth-migration"

// Stub is the fixed prefix of every exported URL.
const Stub = Scheme + "://offline?data="

// DefaultURLLength bounds the full URL string length of one exported chunk.
// It keeps the QR payload within comfortable scanning density.
const DefaultURLLength = 1536

// Payload field numbers.
const (
	fieldParams     = 1 // repeated record submessage
	fieldVersion    = 2
	fieldBatchSize  = 3
	fieldChunkIndex = 4
	fieldBatchID    = 5
)

// Record submessage field numbers.
const (
	paramSecret    = 1
	paramLabel     = 2
	paramIssuer    = 3
	paramAlgorithm = 4
	paramDigits    = 5
	paramType      = 6
)

const (
	exportVersion = 1
	totpType      = 2 // the TOTP marker in the authenticator app's schema
)

// ChunkTooLargeError reports a record whose encoded form cannot fit inside
// the URL length budget even as the sole occupant of a chunk.
type ChunkTooLargeError struct {
	Record int // index of the record in the export input
	Chunk  int // index of the chunk being assembled
}

func (e *ChunkTooLargeError) Error() string {
	return fmt.Sprintf("secret %d does not fit the url length budget (chunk %d)", e.Record, e.Chunk)
}

// EncodeOptions tunes an export. The zero value selects the defaults.
type EncodeOptions struct {
	// URLLength bounds the string length of each produced URL.
	// Zero means DefaultURLLength.
	URLLength int
	// BatchID tags every chunk of the export. Zero means a random ID.
	BatchID uint64
}

// Encode serializes records into one or more otpauth-migration URLs.
// Records are packed greedily in order: each chunk takes records until the
// next would push the URL past the length budget, then a new chunk starts.
// Concatenating the decoded chunks reproduces the input order.
func Encode(records []secret.Record, opts EncodeOptions) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	limit := opts.URLLength
	if limit <= 0 {
		limit = DefaultURLLength
	}
	batchID := opts.BatchID
	if batchID == 0 {
		batchID = uint64(uuid.New().ID())
	}

	framed := make([][]byte, len(records))
	for i, rec := range records {
		body, err := encodeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("secret %d (%s): %w", i, rec.Label(), err)
		}
		f := pblite.AppendTag(nil, fieldParams, pblite.WireBytes)
		framed[i] = pblite.AppendBytes(f, body)
	}

	var urls []string
	var chunk []byte
	for i := 0; i < len(records); {
		withNext := len(chunk) + len(framed[i])
		if urlLen(withNext, len(records), len(urls), batchID) <= limit {
			chunk = append(chunk, framed[i]...)
			i++
			continue
		}
		if len(chunk) == 0 {
			return nil, &ChunkTooLargeError{Record: i, Chunk: len(urls)}
		}
		urls = append(urls, finish(chunk, len(records), len(urls), batchID))
		chunk = nil
	}
	return append(urls, finish(chunk, len(records), len(urls), batchID)), nil
}

// Decode walks a raw payload and returns the records it carries. A record
// submessage that fails to decode is dropped; an error in the outer framing
// stops the walk and returns the records recovered so far alongside it.
func Decode(payload []byte) ([]secret.Record, error) {
	var records []secret.Record
	pos := 0
	for pos < len(payload) {
		field, wire, n, err := pblite.ReadTag(payload[pos:])
		if err != nil {
			return records, fmt.Errorf("payload byte %d: %w", pos, err)
		}
		pos += n

		if field == fieldParams && wire == pblite.WireBytes {
			body, n, err := pblite.ReadBytes(payload[pos:])
			if err != nil {
				return records, fmt.Errorf("payload byte %d: %w", pos, err)
			}
			pos += n
			rec, err := decodeRecord(body)
			if err != nil {
				continue
			}
			records = append(records, rec)
			continue
		}

		// Version, batch size, chunk index and batch ID are informational.
		n, err = pblite.Skip(payload[pos:], wire)
		if err != nil {
			return records, fmt.Errorf("payload byte %d: %w", pos, err)
		}
		pos += n
	}
	return records, nil
}

// DecodeURL decodes one otpauth-migration URL: it checks the scheme, pulls
// the data parameter out of the query and base64-decodes it into a payload
// for Decode.
func DecodeURL(rawURL string) ([]secret.Record, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parsing migration URL: %w", err)
	}
	if u.Scheme != Scheme {
		return nil, fmt.Errorf("not an otpauth-migration URL: scheme %q", u.Scheme)
	}
	data := dataParam(u.RawQuery)
	if data == "" {
		return nil, fmt.Errorf("migration URL has no data parameter")
	}
	payload, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decoding migration data: %w", err)
	}
	return Decode(payload)
}

// dataParam extracts the base64 data value from a raw query string. The
// value may arrive percent-encoded; after unescaping, any "+" flattened to
// a space by the query decoding is restored.
func dataParam(rawQuery string) string {
	for _, pair := range strings.Split(rawQuery, "&") {
		key, value, _ := strings.Cut(pair, "=")
		if key != "data" {
			continue
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		return strings.ReplaceAll(value, " ", "+")
	}
	return ""
}

func encodeRecord(rec secret.Record) ([]byte, error) {
	raw, err := secret.DecodeKey(rec.Secret)
	if err != nil {
		return nil, err
	}

	var b []byte
	b = pblite.AppendTag(b, paramSecret, pblite.WireBytes)
	b = pblite.AppendBytes(b, raw)

	// The label carries "service:user" when both exist. A bare service
	// travels in the issuer field alone, a bare user in the label alone.
	var label string
	switch {
	case rec.Service != "" && rec.User != "":
		label = rec.Service + ":" + rec.User
	case rec.User != "":
		label = rec.User
	}
	if label != "" {
		b = pblite.AppendTag(b, paramLabel, pblite.WireBytes)
		b = pblite.AppendBytes(b, []byte(label))
	}
	if rec.Service != "" {
		b = pblite.AppendTag(b, paramIssuer, pblite.WireBytes)
		b = pblite.AppendBytes(b, []byte(rec.Service))
	}

	b = pblite.AppendTag(b, paramDigits, pblite.WireVarint)
	b = pblite.AppendVarint(b, digitsCode(rec.Digits))
	b = pblite.AppendTag(b, paramType, pblite.WireVarint)
	b = pblite.AppendVarint(b, totpType)
	return b, nil
}

func decodeRecord(body []byte) (secret.Record, error) {
	var rec secret.Record
	pos := 0
	for pos < len(body) {
		field, wire, n, err := pblite.ReadTag(body[pos:])
		if err != nil {
			return rec, err
		}
		pos += n

		if wire == pblite.WireBytes {
			value, n, err := pblite.ReadBytes(body[pos:])
			if err != nil {
				return rec, err
			}
			pos += n
			switch field {
			case paramSecret:
				rec.Secret = secret.EncodeKey(value)
			case paramLabel:
				if service, user, ok := strings.Cut(string(value), ":"); ok {
					rec.Service, rec.User = service, user
				} else {
					rec.Service = string(value)
				}
			case paramIssuer:
				rec.Service = string(value)
			}
			continue
		}

		if field == paramDigits && wire == pblite.WireVarint {
			v, n, err := pblite.ReadVarint(body[pos:])
			if err != nil {
				return rec, err
			}
			pos += n
			rec.Digits = digitsFromCode(v)
			continue
		}

		// Algorithm and type are fixed for this scheme; skip them and
		// anything unknown.
		n, err = pblite.Skip(body[pos:], wire)
		if err != nil {
			return rec, err
		}
		pos += n
	}
	if rec.Digits == 0 {
		rec.Digits = 6
	}
	return rec, nil
}

// digitsFromCode maps the payload's digit code to a width: the value
// decodes as code*2+4 and anything other than 6 or 8 falls back to 6.
func digitsFromCode(code uint64) int {
	if d := int(code)*2 + 4; d == 6 || d == 8 {
		return d
	}
	return 6
}

// digitsCode is the inverse mapping for encoding. Widths other than 8
// travel as the 6-digit code.
func digitsCode(digits int) uint64 {
	if digits == 8 {
		return 2
	}
	return 1
}

// trailer builds the metadata fields appended to every chunk.
func trailer(batchSize, chunkIndex int, batchID uint64) []byte {
	var b []byte
	b = pblite.AppendTag(b, fieldVersion, pblite.WireVarint)
	b = pblite.AppendVarint(b, exportVersion)
	b = pblite.AppendTag(b, fieldBatchSize, pblite.WireVarint)
	b = pblite.AppendVarint(b, uint64(batchSize))
	b = pblite.AppendTag(b, fieldChunkIndex, pblite.WireVarint)
	b = pblite.AppendVarint(b, uint64(chunkIndex))
	b = pblite.AppendTag(b, fieldBatchID, pblite.WireVarint)
	b = pblite.AppendVarint(b, batchID)
	return b
}

// urlLen is the full URL length of a chunk holding bodyLen record bytes.
func urlLen(bodyLen, batchSize, chunkIndex int, batchID uint64) int {
	payload := bodyLen + len(trailer(batchSize, chunkIndex, batchID))
	return len(Stub) + base64.StdEncoding.EncodedLen(payload)
}

// finish seals a chunk: record bytes, then the trailer, base64-encoded
// onto the stub.
func finish(chunk []byte, batchSize, chunkIndex int, batchID uint64) string {
	payload := make([]byte, 0, len(chunk)+16)
	payload = append(payload, chunk...)
	payload = append(payload, trailer(batchSize, chunkIndex, batchID)...)
	return Stub + base64.StdEncoding.EncodeToString(payload)
}
