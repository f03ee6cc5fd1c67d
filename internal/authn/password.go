package authn

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher is the one-way credential hash collaborator. The algorithm is
// opaque to the rest of the system.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher uses the library default cost when cost is zero.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash hashes a plaintext password.
func (h *BcryptHasher) Hash(plain string) (string, error) {
	if len(plain) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify compares a plaintext password with the stored hash.
func (h *BcryptHasher) Verify(hash, plain string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
