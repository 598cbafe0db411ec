package storage

import (
	"bytes"
	"fmt"

	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
)

// Image detection reads magic bytes, never the client-supplied content type
// or file extension.

const sniffLen = 16

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
	gif87a    = []byte("GIF87a")
	gif89a    = []byte("GIF89a")
)

// DetectImageType returns the MIME type for a supported image header, or
// ok=false when the bytes match none of the accepted formats.
func DetectImageType(head []byte) (string, bool) {
	switch {
	case bytes.HasPrefix(head, pngMagic):
		return "image/png", true
	case bytes.HasPrefix(head, jpegMagic):
		return "image/jpeg", true
	case bytes.HasPrefix(head, riffMagic) && len(head) >= 12 && bytes.Equal(head[8:12], webpMagic):
		return "image/webp", true
	case bytes.HasPrefix(head, gif87a) || bytes.HasPrefix(head, gif89a):
		return "image/gif", true
	default:
		return "", false
	}
}

// ValidateImage checks the payload size and magic bytes and returns the
// detected content type.
func ValidateImage(data []byte, maxBytes int64) (string, error) {
	if len(data) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "empty upload")
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("upload exceeds %d byte limit", maxBytes))
	}

	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	contentType, ok := DetectImageType(head)
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported image format")
	}
	return contentType, nil
}

// MaxBytes converts a config megabyte limit to bytes.
func MaxBytes(mb int) int64 {
	return int64(mb) << 20
}
