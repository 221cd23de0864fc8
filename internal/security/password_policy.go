package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"unicode"
	"unicode/utf8"
)

const (
	RuleMinLength        = "min_length"
	RuleMaxLength        = "max_length"
	RuleSpecialCharacter = "special_character"
)

// bcrypt ignores input past 72 bytes.
const maxPasswordBytes = 72

var ErrWeakPassword = errors.New("password does not satisfy policy")

// PolicyError names the first rule a candidate password violated.
type PolicyError struct {
	Rule    string
	Message string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrWeakPassword.Error(), e.Message)
}

func (e *PolicyError) Unwrap() error { return ErrWeakPassword }

type PasswordPolicy struct {
	MinLength      int
	RequireSpecial bool
}

func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8, RequireSpecial: true}
}

// Validate counts runes, not bytes, for the minimum length.
func (p PasswordPolicy) Validate(password string) error {
	if n := utf8.RuneCountInString(password); n < p.MinLength {
		return &PolicyError{Rule: RuleMinLength, Message: fmt.Sprintf("must be at least %d characters", p.MinLength)}
	}
	if len(password) > maxPasswordBytes {
		return &PolicyError{Rule: RuleMaxLength, Message: fmt.Sprintf("must be at most %d bytes", maxPasswordBytes)}
	}
	if p.RequireSpecial && !hasSpecialCharacter(password) {
		return &PolicyError{Rule: RuleSpecialCharacter, Message: "must contain at least one non-alphanumeric character"}
	}
	return nil
}

func hasSpecialCharacter(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

const (
	generatedAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	generatedSpecials = "!@#$%*-_+?"
)

// GeneratePassword returns a random password that satisfies p.
func (p PasswordPolicy) GeneratePassword() (string, error) {
	length := min(max(p.MinLength, 16), maxPasswordBytes)
	out := make([]byte, 0, length)
	for len(out) < length-1 {
		c, err := randomByte(generatedAlphabet)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	special, err := randomByte(generatedSpecials)
	if err != nil {
		return "", err
	}
	pos, err := rand.Int(rand.Reader, big.NewInt(int64(len(out)+1)))
	if err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	i := int(pos.Int64())
	out = append(out[:i], append([]byte{special}, out[i:]...)...)
	return string(out), nil
}

func randomByte(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, fmt.Errorf("generate password: %w", err)
	}
	return alphabet[n.Int64()], nil
}
