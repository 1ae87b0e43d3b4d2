// Package passgen generates random passwords and scores user-chosen ones.
package passgen

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/Picocrypt/zxcvbn-go"

	"kv-go/internal/kv"
)

const (
	upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lower   = "abcdefghijklmnopqrstuvwxyz"
	digits  = "1234567890"
	symbols = "-=_+!@#$^&()?<>"

	// MinLength is the shortest password Generate will produce.
	MinLength = 8
)

// Generator produces passwords drawn uniformly from its alphabet with crypto/rand.
type Generator struct {
	length  int
	charset string
}

var _ kv.PasswordPolicy = (*Generator)(nil)

// New returns a Generator for passwords of the given length.
func New(length int, withSymbols bool) (*Generator, error) {
	if length < MinLength {
		return nil, fmt.Errorf("password length %d is below the minimum of %d", length, MinLength)
	}
	charset := upper + lower + digits
	if withSymbols {
		charset += symbols
	}
	return &Generator{length: length, charset: charset}, nil
}

func (g *Generator) Generate() (string, error) {
	max := big.NewInt(int64(len(g.charset)))
	out := make([]byte, g.length)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		out[i] = g.charset[idx.Int64()]
	}
	return string(out), nil
}

// Score rates password strength from 0 to 4 using zxcvbn.
func (g *Generator) Score(password string) int {
	return zxcvbn.PasswordStrength(password, nil).Score
}
