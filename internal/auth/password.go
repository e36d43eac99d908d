package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinBcryptCost is the lowest cost accepted for stored credentials.
const MinBcryptCost = bcrypt.DefaultCost

// Hasher hashes and verifies secrets with bcrypt.
type Hasher struct {
	cost int
}

// NewHasher creates a Hasher. Costs below MinBcryptCost are raised to it.
func NewHasher(cost int) *Hasher {
	if cost < MinBcryptCost {
		cost = MinBcryptCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Cost reports the bcrypt cost in use.
func (h *Hasher) Cost() int { return h.cost }

// Hash returns the salted bcrypt hash of secret.
func (h *Hasher) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether secret matches hash. The comparison is constant
// time.
func (h *Hasher) Verify(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
