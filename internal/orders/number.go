package orders

import (
	"crypto/rand"
	"math/big"
)

const (
	orderNumberAlphabet    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderNumberLength      = 12
	maxOrderNumberAttempts = 5
)

// generateOrderNumber returns a random 12 character alphanumeric token.
func generateOrderNumber() (string, error) {
	alphabetLen := big.NewInt(int64(len(orderNumberAlphabet)))
	buf := make([]byte, orderNumberLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		buf[i] = orderNumberAlphabet[n.Int64()]
	}
	return string(buf), nil
}
