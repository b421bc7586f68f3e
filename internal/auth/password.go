package auth

import (
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 255
)

// ValidatePassword enforces B3: 8-255 characters, at least one lowercase,
// one uppercase, one digit, and one symbol.
func ValidatePassword(pw string) []string {
	var violations []string

	if len(pw) < minPasswordLength || len(pw) > maxPasswordLength {
		violations = append(violations, "must be between 8 and 255 characters")
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	if !hasLower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if !hasUpper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if !hasDigit {
		violations = append(violations, "must contain a digit")
	}
	if !hasSymbol {
		violations = append(violations, "must contain a symbol")
	}
	return violations
}

// HashPassword bcrypt-hashes pw at the default cost.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

// ComparePassword reports whether pw matches hash.
func ComparePassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
