// Package credential signs and verifies card tokens.
//
// A token has the form
//
//	UMA25|<card id>|<YYYY-MM-DD>|<signature>
//
// where signature is the unpadded URL-safe base64 encoding of
// HMAC-SHA256(key, "<card id>|<YYYY-MM-DD>") and key is the hex-decoded
// secret. Tokens are not single-use: replay is stopped by the redemption
// uniqueness constraint, not here.
package credential

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "tessera/internal/errors"
)

const (
	// Prefix is the fixed first field of every token.
	Prefix = "UMA25"

	// MinSecretBytes is the shortest accepted signing key.
	MinSecretBytes = 16

	// DefaultSecretBytes is the key size NewSecret uses when asked for 0.
	DefaultSecretBytes = 32

	dateLayout = "2006-01-02"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Claims are the verified contents of a token.
type Claims struct {
	CardID     string
	ExpiryDate string
}

// SecretProvider supplies the current signing secret as a hex string.
type SecretProvider interface {
	CurrentSecret() (string, bool)
}

// StaticSecret is a SecretProvider backed by a fixed value, usually config.
type StaticSecret string

func (s StaticSecret) CurrentSecret() (string, bool) {
	return string(s), s != ""
}

// Signer generates and verifies tokens. The zero value uses the wall clock.
type Signer struct {
	now func() time.Time
}

// NewSigner returns a Signer that reads today's date from now.
func NewSigner(now func() time.Time) *Signer {
	return &Signer{now: now}
}

func (s *Signer) today() string {
	if s == nil || s.now == nil {
		return time.Now().UTC().Format(dateLayout)
	}
	return s.now().UTC().Format(dateLayout)
}

// Generate builds a signed token for cardID valid through expiryDate.
func (s *Signer) Generate(cardID, expiryDate, secretHex string) (string, error) {
	if strings.TrimSpace(cardID) == "" || strings.Contains(cardID, "|") {
		return "", apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("card id is required and must not contain '|'"))
	}
	if !datePattern.MatchString(expiryDate) {
		return "", apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("expiry date %q is not YYYY-MM-DD", expiryDate))
	}
	if secretHex == "" {
		return "", apperrors.ErrSecretMissing
	}
	key, err := hex.DecodeString(secretHex)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("secret is not hex: %w", err))
	}

	return strings.Join([]string{Prefix, cardID, expiryDate, sign(key, cardID, expiryDate)}, "|"), nil
}

// Verify checks token against secretHex and today's date.
func (s *Signer) Verify(token, secretHex string) (Claims, error) {
	if secretHex == "" {
		return Claims{}, apperrors.ErrSecretMissing
	}

	parts := strings.Split(strings.TrimSpace(token), "|")
	if len(parts) != 4 {
		return Claims{}, apperrors.ErrFormatInvalid
	}
	prefix, cardID, expiryDate, signature := parts[0], parts[1], parts[2], parts[3]

	if prefix != Prefix {
		return Claims{}, apperrors.ErrPrefixInvalid
	}
	if cardID == "" || !datePattern.MatchString(expiryDate) {
		return Claims{}, apperrors.ErrFormatInvalid
	}

	key, err := hex.DecodeString(secretHex)
	if err != nil {
		return Claims{}, apperrors.Wrap(apperrors.ErrInternal, fmt.Errorf("secret is not hex: %w", err))
	}

	expected := sign(key, cardID, expiryDate)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return Claims{}, apperrors.ErrSignatureInvalid
	}

	// YYYY-MM-DD sorts lexically in date order.
	if expiryDate < s.today() {
		return Claims{}, apperrors.ErrExpired
	}

	return Claims{CardID: cardID, ExpiryDate: expiryDate}, nil
}

func sign(key []byte, cardID, expiryDate string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(cardID + "|" + expiryDate))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateSecret reports whether secretHex is an even-length hex string of
// at least MinSecretBytes bytes.
func ValidateSecret(secretHex string) error {
	if len(secretHex)%2 != 0 {
		return fmt.Errorf("secret must have an even number of hex digits")
	}
	key, err := hex.DecodeString(secretHex)
	if err != nil {
		return fmt.Errorf("secret is not hex: %w", err)
	}
	if len(key) < MinSecretBytes {
		return fmt.Errorf("secret must be at least %d bytes, got %d", MinSecretBytes, len(key))
	}
	return nil
}

// NewSecret returns a random hex-encoded key of n bytes.
func NewSecret(n int) (string, error) {
	if n == 0 {
		n = DefaultSecretBytes
	}
	if n < MinSecretBytes {
		return "", fmt.Errorf("secret must be at least %d bytes", MinSecretBytes)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ExpiryFrom returns the YYYY-MM-DD date validityDays after t.
func ExpiryFrom(t time.Time, validityDays int) string {
	return t.UTC().AddDate(0, 0, validityDays).Format(dateLayout)
}

// ValidDate reports whether d is a real calendar date in YYYY-MM-DD form.
func ValidDate(d string) bool {
	if !datePattern.MatchString(d) {
		return false
	}
	_, err := time.Parse(dateLayout, d)
	return err == nil
}
