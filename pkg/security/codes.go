package security

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const (
	orderNumberPrefix = "ORD"
	orderNumberRandom = 6
	otpDigits         = 6
)

var base36Charset = []rune("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ")

// GenerateOrderNumber returns "ORD" + YYYYMMDD + 6 random base36 characters.
// Uniqueness is enforced by the orders table; callers retry on collision.
func GenerateOrderNumber(now time.Time) (string, error) {
	suffix := make([]rune, orderNumberRandom)
	for i := range suffix {
		idx, err := randInt(len(base36Charset))
		if err != nil {
			return "", err
		}
		suffix[i] = base36Charset[idx]
	}
	return orderNumberPrefix + now.UTC().Format("20060102") + string(suffix), nil
}

// GenerateDeliveryOTP returns a 6-digit numeric one-time code.
func GenerateDeliveryOTP() (string, error) {
	var b strings.Builder
	b.Grow(otpDigits)
	for i := 0; i < otpDigits; i++ {
		idx, err := randInt(10)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + idx))
	}
	return b.String(), nil
}

// VerifyOTP compares codes in constant time.
func VerifyOTP(expected, provided string) bool {
	if expected == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

func randInt(max int) (int, error) {
	if max <= 0 {
		return 0, fmt.Errorf("invalid max %d", max)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
