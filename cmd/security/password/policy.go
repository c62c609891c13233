package password

import (
	"strings"
	"unicode/utf8"
)

// Validate checks the length policy, counting runes.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)

	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	case c.Policy.RejectVeryWeak && looksVeryWeak(password):
		return ErrWeakPassword
	}
	return nil
}

var trivialPasswords = map[string]struct{}{
	"password": {}, "123456": {}, "1234567": {}, "12345678": {},
	"qwerty": {}, "111111": {}, "abc123": {}, "letmein": {},
}

func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}
	if _, ok := trivialPasswords[strings.ToLower(s)]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	return strings.Count(s, string(first)) == utf8.RuneCountInString(s)
}
