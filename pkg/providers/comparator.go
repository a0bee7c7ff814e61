package providers

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// BcryptComparator verifies passwords against bcrypt hashes. This is the
// comparator production deployments should use.
type BcryptComparator struct{}

// NewBcryptComparator creates a bcrypt-backed comparator.
func NewBcryptComparator() *BcryptComparator {
	return &BcryptComparator{}
}

// Compare reports whether password matches the stored bcrypt hash.
func (*BcryptComparator) Compare(password, stored string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		// Malformed hash or unsupported cost.
		return false, err
	}
}

// HashPassword produces a bcrypt verifier for seeding user records.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// PlaintextComparator compares passwords against cleartext verifiers in
// constant time. Test use only.
type PlaintextComparator struct{}

// NewPlaintextComparator creates a plaintext comparator for tests.
func NewPlaintextComparator() *PlaintextComparator {
	return &PlaintextComparator{}
}

// Compare reports whether password equals the stored cleartext value.
func (*PlaintextComparator) Compare(password, stored string) (bool, error) {
	return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1, nil
}

// Compile-time interface compliance checks
var (
	_ PasswordComparator = (*BcryptComparator)(nil)
	_ PasswordComparator = (*PlaintextComparator)(nil)
)
