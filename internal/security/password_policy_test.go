package security

import (
	"errors"
	"strings"
	"testing"
)

func TestPasswordPolicyValidate(t *testing.T) {
	p := DefaultPasswordPolicy()
	cases := []struct {
		name     string
		password string
		rule     string
	}{
		{name: "too short", password: "short1", rule: RuleMinLength},
		{name: "no special", password: "longenough1", rule: RuleSpecialCharacter},
		{name: "too long", password: strings.Repeat("a", 72) + "!", rule: RuleMaxLength},
		{name: "valid", password: "longenough!"},
		{name: "multibyte counts runes", password: "pässwörd!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := p.Validate(tc.password)
			if tc.rule == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrWeakPassword) {
				t.Fatalf("expected ErrWeakPassword, got %v", err)
			}
			var pe *PolicyError
			if !errors.As(err, &pe) || pe.Rule != tc.rule {
				t.Fatalf("expected rule %q, got %v", tc.rule, err)
			}
		})
	}
}

func TestPasswordPolicyWithoutSpecial(t *testing.T) {
	p := PasswordPolicy{MinLength: 4}
	if err := p.Validate("abcd"); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestGeneratePasswordSatisfiesPolicy(t *testing.T) {
	for _, p := range []PasswordPolicy{DefaultPasswordPolicy(), {MinLength: 40, RequireSpecial: true}, {MinLength: 100}} {
		for i := 0; i < 20; i++ {
			pw, err := p.GeneratePassword()
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if p.MinLength <= maxPasswordBytes {
				if err := p.Validate(pw); err != nil {
					t.Fatalf("generated password %q violates policy %+v: %v", pw, p, err)
				}
			}
			if len(pw) > maxPasswordBytes {
				t.Fatalf("generated password exceeds bcrypt limit: %d", len(pw))
			}
		}
	}
}
