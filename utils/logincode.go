package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// DefaultLoginCodeBytes gives 40 bits of entropy, 10 hex characters.
const DefaultLoginCodeBytes = 5

// codeKeyInfo separates the derived login-code key from other uses of the JWT secret.
const codeKeyInfo = "kcbuddy login codes"

// ErrNoCodeSecret is returned when neither a login-code secret nor a JWT secret is configured.
var ErrNoCodeSecret = errors.New("login code secret is not configured")

// GenerateLoginCode returns "<PREFIX>-<HEX>" built from n random bytes.
// Codes are not checked for uniqueness; collisions are left to the unique index.
func GenerateLoginCode(prefix string, n int) (string, error) {
	if n <= 0 {
		n = DefaultLoginCodeBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return prefix + "-" + strings.ToUpper(hex.EncodeToString(buf)), nil
}

// NormalizeLoginCode trims and upper-cases a code. Anything that is not a string
// normalizes to "".
func NormalizeLoginCode(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// CodeHasher turns normalized login codes into the stored comparison value.
// Rotating the key invalidates every outstanding code.
type CodeHasher struct {
	key []byte
}

// NewCodeHasher uses codeSecret directly when set, otherwise derives a dedicated key
// from jwtSecret with HKDF-SHA256.
func NewCodeHasher(codeSecret, jwtSecret string) (*CodeHasher, error) {
	if codeSecret != "" {
		return &CodeHasher{key: []byte(codeSecret)}, nil
	}
	if jwtSecret == "" {
		return nil, ErrNoCodeSecret
	}
	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, []byte(jwtSecret), nil, []byte(codeKeyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive login code key: %w", err)
	}
	return &CodeHasher{key: key}, nil
}

// Hash returns the hex HMAC-SHA256 digest of code.
func (h *CodeHasher) Hash(code string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}
