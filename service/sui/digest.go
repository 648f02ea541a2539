package sui

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	// DigestLength is the decoded size of a transaction digest in bytes.
	DigestLength = 32

	minDigestChars = 32
	maxDigestChars = 44
)

// ErrInvalidDigest is returned by ValidateDigest for malformed digests.
var ErrInvalidDigest = errors.New("invalid transaction digest")

// ValidateDigest checks that s looks like a transaction digest: a base58
// string that decodes to exactly 32 bytes.
func ValidateDigest(s string) error {
	if s == "" {
		return fmt.Errorf("%w: digest is required", ErrInvalidDigest)
	}
	if len(s) < minDigestChars || len(s) > maxDigestChars {
		return fmt.Errorf("%w: expected %d-%d characters, got %d", ErrInvalidDigest, minDigestChars, maxDigestChars, len(s))
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: not valid base58", ErrInvalidDigest)
	}
	if len(decoded) != DigestLength {
		return fmt.Errorf("%w: decodes to %d bytes, want %d", ErrInvalidDigest, len(decoded), DigestLength)
	}
	return nil
}
