package storage

import (
	"context"
	"strings"
	"testing"
)

func TestDetectImageType(t *testing.T) {
	cases := []struct {
		name string
		head []byte
		want string
		ok   bool
	}{
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, "image/png", true},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg", true},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp", true},
		{"gif87a", []byte("GIF87a\x00"), "image/gif", true},
		{"gif89a", []byte("GIF89a\x00"), "image/gif", true},
		{"riff without webp", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), "", false},
		{"pdf", []byte("%PDF-1.7"), "", false},
		{"empty", nil, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DetectImageType(tc.head)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("DetectImageType(%q) = (%q, %v), want (%q, %v)", tc.head, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestValidateImage(t *testing.T) {
	png := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)

	contentType, err := ValidateImage(png, MaxBytes(10))
	if err != nil {
		t.Fatalf("ValidateImage: %v", err)
	}
	if contentType != "image/png" {
		t.Fatalf("expected image/png, got %s", contentType)
	}

	if _, err := ValidateImage(png, 16); err == nil {
		t.Fatalf("expected oversized payload to fail")
	}
	if _, err := ValidateImage(nil, MaxBytes(10)); err == nil {
		t.Fatalf("expected empty payload to fail")
	}
	if _, err := ValidateImage([]byte("not an image"), MaxBytes(10)); err == nil {
		t.Fatalf("expected unsupported format to fail")
	}
}

func TestMemoryUploader(t *testing.T) {
	up := NewMemoryUploader()
	png := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, []byte("body")...)

	url, err := up.Upload(context.Background(), "products", "image/png", png)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.Contains(url, "/products/") {
		t.Fatalf("expected prefix in url, got %s", url)
	}
	if !strings.HasSuffix(url, ".png") {
		t.Fatalf("expected .png suffix, got %s", url)
	}
	if up.Len() != 1 {
		t.Fatalf("expected 1 stored object, got %d", up.Len())
	}
}
