package security

import (
	"regexp"
	"testing"
	"time"
)

var orderNumberRe = regexp.MustCompile(`^ORD\d{8}[0-9A-Z]{6}$`)

func TestGenerateOrderNumberFormat(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)

	num, err := GenerateOrderNumber(now)
	if err != nil {
		t.Fatalf("GenerateOrderNumber: %v", err)
	}
	if !orderNumberRe.MatchString(num) {
		t.Fatalf("unexpected order number format %q", num)
	}
	if num[3:11] != "20260801" {
		t.Fatalf("expected date segment 20260801, got %s", num[3:11])
	}
}

func TestGenerateOrderNumberVaries(t *testing.T) {
	now := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		num, err := GenerateOrderNumber(now)
		if err != nil {
			t.Fatalf("GenerateOrderNumber: %v", err)
		}
		if seen[num] {
			t.Fatalf("duplicate order number %q in 50 draws", num)
		}
		seen[num] = true
	}
}

func TestGenerateDeliveryOTP(t *testing.T) {
	otp, err := GenerateDeliveryOTP()
	if err != nil {
		t.Fatalf("GenerateDeliveryOTP: %v", err)
	}
	if len(otp) != 6 {
		t.Fatalf("expected 6 digits, got %q", otp)
	}
	for _, r := range otp {
		if r < '0' || r > '9' {
			t.Fatalf("expected numeric otp, got %q", otp)
		}
	}
}

func TestVerifyOTP(t *testing.T) {
	if !VerifyOTP("123456", "123456") {
		t.Fatalf("expected matching otp to verify")
	}
	if VerifyOTP("123456", "654321") {
		t.Fatalf("expected mismatched otp to fail")
	}
	if VerifyOTP("", "123456") || VerifyOTP("123456", "") {
		t.Fatalf("expected empty otp to fail")
	}
}
