// Package qr renders otpauth URLs as PNG QR codes for scanning into
// phone authenticator apps.
package qr

import (
	"os"

	"github.com/skip2/go-qrcode"
)

// DefaultSize is the image edge length in pixels.
const DefaultSize = 256

// Generate renders content as a size x size PNG. A size of zero or less
// uses DefaultSize.
func Generate(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}

// WriteFile renders content into a PNG file. The file is created with
// mode 0600 since exported URLs carry live secrets.
func WriteFile(content string, size int, path string) error {
	png, err := Generate(content, size)
	if err != nil {
		return err
	}
	return os.WriteFile(path, png, 0600)
}
