package migration

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/benaskins/tessera/internal/pblite"
	"github.com/benaskins/tessera/internal/secret"
)

const testKey = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestRoundTripSingle(t *testing.T) {
	rec := secret.Record{Service: "GitHub", User: "bob", Secret: testKey, Digits: 8}
	urls, err := Encode([]secret.Record{rec}, EncodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 1 {
		t.Fatalf("got %d urls, want 1", len(urls))
	}
	if !strings.HasPrefix(urls[0], Stub) {
		t.Fatalf("url %q lacks stub prefix", urls[0])
	}

	records, err := DecodeURL(urls[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0] != rec {
		t.Errorf("decoded %+v, want %+v", records, rec)
	}
}

func TestRoundTripChunked(t *testing.T) {
	var input []secret.Record
	for i := 0; i < 10; i++ {
		digits := 6
		if i%2 == 1 {
			digits = 8
		}
		input = append(input, secret.Record{
			Service: fmt.Sprintf("service-%02d", i),
			User:    "bob",
			Secret:  testKey,
			Digits:  digits,
		})
	}

	const limit = 400
	urls, err := Encode(input, EncodeOptions{URLLength: limit})
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) < 2 {
		t.Fatalf("limit %d produced %d urls, want several", limit, len(urls))
	}

	var decoded []secret.Record
	for i, u := range urls {
		if len(u) > limit {
			t.Errorf("url %d is %d chars, over the %d budget", i, len(u), limit)
		}
		records, err := DecodeURL(u)
		if err != nil {
			t.Fatalf("url %d: %v", i, err)
		}
		decoded = append(decoded, records...)
	}

	if len(decoded) != len(input) {
		t.Fatalf("decoded %d records, want %d", len(decoded), len(input))
	}
	for i := range input {
		if decoded[i] != input[i] {
			t.Errorf("record %d = %+v, want %+v", i, decoded[i], input[i])
		}
	}
}

func TestChunkMetadata(t *testing.T) {
	var input []secret.Record
	for i := 0; i < 8; i++ {
		input = append(input, secret.Record{
			Service: fmt.Sprintf("service-%02d", i),
			User:    "bob",
			Secret:  testKey,
			Digits:  6,
		})
	}

	urls, err := Encode(input, EncodeOptions{URLLength: 400, BatchID: 424242})
	if err != nil {
		t.Fatal(err)
	}
	for i, u := range urls {
		meta := readTrailer(t, u)
		if meta[fieldVersion] != exportVersion {
			t.Errorf("url %d: version = %d, want %d", i, meta[fieldVersion], exportVersion)
		}
		if meta[fieldBatchSize] != uint64(len(input)) {
			t.Errorf("url %d: batch size = %d, want %d", i, meta[fieldBatchSize], len(input))
		}
		if meta[fieldChunkIndex] != uint64(i) {
			t.Errorf("url %d: chunk index = %d, want %d", i, meta[fieldChunkIndex], i)
		}
		if meta[fieldBatchID] != 424242 {
			t.Errorf("url %d: batch id = %d, want 424242", i, meta[fieldBatchID])
		}
	}
}

// readTrailer walks a chunk payload and collects its scalar metadata fields.
func readTrailer(t *testing.T, chunkURL string) map[int]uint64 {
	t.Helper()
	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(chunkURL, Stub))
	if err != nil {
		t.Fatal(err)
	}
	meta := make(map[int]uint64)
	pos := 0
	for pos < len(payload) {
		field, wire, n, err := pblite.ReadTag(payload[pos:])
		if err != nil {
			t.Fatalf("payload byte %d: %v", pos, err)
		}
		pos += n
		if wire == pblite.WireVarint {
			v, n, err := pblite.ReadVarint(payload[pos:])
			if err != nil {
				t.Fatal(err)
			}
			pos += n
			meta[field] = v
			continue
		}
		n, err = pblite.Skip(payload[pos:], wire)
		if err != nil {
			t.Fatal(err)
		}
		pos += n
	}
	return meta
}

func TestChunkTooLarge(t *testing.T) {
	big := secret.Record{Service: strings.Repeat("x", 500), Secret: testKey}
	_, err := Encode([]secret.Record{big}, EncodeOptions{URLLength: 100})
	var tooLarge *ChunkTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("err = %v, want ChunkTooLargeError", err)
	}
	if tooLarge.Record != 0 || tooLarge.Chunk != 0 {
		t.Errorf("got record %d chunk %d, want 0 and 0", tooLarge.Record, tooLarge.Chunk)
	}
}

func TestChunkTooLargeMidStream(t *testing.T) {
	records := []secret.Record{
		{Service: "small-1", User: "bob", Secret: testKey},
		{Service: "small-2", User: "bob", Secret: testKey},
		{Service: strings.Repeat("x", 500), Secret: testKey},
	}
	_, err := Encode(records, EncodeOptions{URLLength: 350})
	var tooLarge *ChunkTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("err = %v, want ChunkTooLargeError", err)
	}
	if tooLarge.Record != 2 {
		t.Errorf("record = %d, want 2", tooLarge.Record)
	}
	if tooLarge.Chunk != 1 {
		t.Errorf("chunk = %d, want 1", tooLarge.Chunk)
	}
}

func TestEncodeEmpty(t *testing.T) {
	urls, err := Encode(nil, EncodeOptions{})
	if err != nil || urls != nil {
		t.Errorf("Encode(nil) = (%v, %v), want (nil, nil)", urls, err)
	}
}

func TestEncodeRejectsBadSecret(t *testing.T) {
	_, err := Encode([]secret.Record{{Service: "x", Secret: "not!base32"}}, EncodeOptions{})
	if !errors.Is(err, secret.ErrBadBase32) {
		t.Errorf("err = %v, want ErrBadBase32", err)
	}
}

func TestEncodeNarrowsDigits(t *testing.T) {
	// Ten-digit tokens have no code in this scheme and come back as six.
	urls, err := Encode([]secret.Record{{Service: "x", Secret: testKey, Digits: 10}}, EncodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	records, err := DecodeURL(urls[0])
	if err != nil {
		t.Fatal(err)
	}
	if records[0].Digits != 6 {
		t.Errorf("digits = %d, want 6", records[0].Digits)
	}
}

func TestDigitCodeMapping(t *testing.T) {
	tests := []struct {
		code uint64
		want int
	}{
		{0, 6}, {1, 6}, {2, 8}, {3, 6}, {99, 6},
	}
	for _, tt := range tests {
		body := pblite.AppendTag(nil, paramDigits, pblite.WireVarint)
		body = pblite.AppendVarint(body, tt.code)
		payload := pblite.AppendTag(nil, fieldParams, pblite.WireBytes)
		payload = pblite.AppendBytes(payload, body)

		records, err := Decode(payload)
		if err != nil {
			t.Fatalf("code %d: %v", tt.code, err)
		}
		if len(records) != 1 || records[0].Digits != tt.want {
			t.Errorf("code %d: digits = %d, want %d", tt.code, records[0].Digits, tt.want)
		}
	}
}

func TestDecodeLabelForms(t *testing.T) {
	tests := []struct {
		name            string
		label, issuer   string
		service, user   string
		wantLabelField  bool
		wantIssuerField bool
	}{
		{"combined label and issuer", "GitHub:bob", "GitHub", "GitHub", "bob", true, true},
		{"issuer only", "", "GitHub", "GitHub", "", false, true},
		{"bare label maps to service", "example.com", "", "example.com", "", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body []byte
			if tt.wantLabelField {
				body = pblite.AppendTag(body, paramLabel, pblite.WireBytes)
				body = pblite.AppendBytes(body, []byte(tt.label))
			}
			if tt.wantIssuerField {
				body = pblite.AppendTag(body, paramIssuer, pblite.WireBytes)
				body = pblite.AppendBytes(body, []byte(tt.issuer))
			}
			payload := pblite.AppendTag(nil, fieldParams, pblite.WireBytes)
			payload = pblite.AppendBytes(payload, body)

			records, err := Decode(payload)
			if err != nil {
				t.Fatal(err)
			}
			if len(records) != 1 {
				t.Fatalf("got %d records, want 1", len(records))
			}
			if records[0].Service != tt.service || records[0].User != tt.user {
				t.Errorf("got (%q, %q), want (%q, %q)",
					records[0].Service, records[0].User, tt.service, tt.user)
			}
		})
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	body := pblite.AppendTag(nil, paramSecret, pblite.WireBytes)
	body = pblite.AppendBytes(body, []byte("12345678901234567890"))
	body = pblite.AppendTag(body, 9, pblite.WireVarint)
	body = pblite.AppendVarint(body, 77)
	body = pblite.AppendTag(body, 11, pblite.WireBytes)
	body = pblite.AppendBytes(body, []byte("future extension"))

	payload := pblite.AppendTag(nil, fieldParams, pblite.WireBytes)
	payload = pblite.AppendBytes(payload, body)
	payload = pblite.AppendTag(payload, 14, pblite.WireFixed32)
	payload = append(payload, 0xde, 0xad, 0xbe, 0xef)

	records, err := Decode(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Secret != testKey {
		t.Errorf("got %+v, want one record with the test key", records)
	}
}

func TestDecodeDropsCorruptRecord(t *testing.T) {
	good := pblite.AppendTag(nil, paramIssuer, pblite.WireBytes)
	good = pblite.AppendBytes(good, []byte("GitHub"))

	var payload []byte
	payload = pblite.AppendTag(payload, fieldParams, pblite.WireBytes)
	payload = pblite.AppendBytes(payload, good)
	// A record body that is not a valid message: framing around it is intact.
	payload = pblite.AppendTag(payload, fieldParams, pblite.WireBytes)
	payload = pblite.AppendBytes(payload, []byte{0xff})
	payload = pblite.AppendTag(payload, fieldParams, pblite.WireBytes)
	payload = pblite.AppendBytes(payload, good)

	records, err := Decode(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want the 2 intact ones", len(records))
	}
}

func TestDecodeStopsOnGroupField(t *testing.T) {
	good := pblite.AppendTag(nil, paramIssuer, pblite.WireBytes)
	good = pblite.AppendBytes(good, []byte("GitHub"))

	var payload []byte
	payload = pblite.AppendTag(payload, fieldParams, pblite.WireBytes)
	payload = pblite.AppendBytes(payload, good)
	payload = pblite.AppendTag(payload, 7, pblite.WireStartGroup)

	records, err := Decode(payload)
	if !errors.Is(err, pblite.ErrWireType) {
		t.Fatalf("err = %v, want ErrWireType", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records before the stop, want 1", len(records))
	}
}

func TestDecodeURLPercentEncodedData(t *testing.T) {
	rec := secret.Record{Service: "GitHub", User: "bob", Secret: testKey, Digits: 6}
	urls, err := Encode([]secret.Record{rec}, EncodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	data := strings.TrimPrefix(urls[0], Stub)
	escaped := Stub + url.QueryEscape(data)

	records, err := DecodeURL(escaped)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0] != rec {
		t.Errorf("decoded %+v, want %+v", records, rec)
	}
}

func TestDecodeURLErrors(t *testing.T) {
	cases := []string{
		"otpauth://totp/GitHub?secret=" + testKey,
		"otpauth-migration://offline",
		"otpauth-migration://offline?data=!!!not-base64!!!",
	}
	for _, u := range cases {
		if _, err := DecodeURL(u); err == nil {
			t.Errorf("DecodeURL(%q) succeeded, want error", u)
		}
	}
}
