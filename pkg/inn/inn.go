// Package inn validates Russian tax identifiers (ИНН) using the official
// check-digit algorithm: 10 digits for legal entities, 12 for individuals.
package inn

import (
	"errors"
	"fmt"
)

var (
	// ErrLength indicates the INN is not 10 or 12 digits long.
	ErrLength = errors.New("inn must be 10 or 12 digits")

	// ErrNotDigits indicates the INN contains non-digit characters.
	ErrNotDigits = errors.New("inn must contain only digits")

	// ErrChecksum indicates a check digit does not match.
	ErrChecksum = errors.New("inn checksum mismatch")
)

// Check-digit weight tables.
var (
	w10 = []int{2, 4, 10, 3, 5, 9, 4, 6, 8}
	w11 = []int{7, 2, 4, 10, 3, 5, 9, 4, 6, 8}
	w12 = []int{3, 7, 2, 4, 10, 3, 5, 9, 4, 6, 8}
)

// Validate checks an INN. The empty string is rejected; callers treat a
// missing INN as absent, not invalid.
func Validate(inn string) error {
	if len(inn) != 10 && len(inn) != 12 {
		return fmt.Errorf("%w: got %d characters", ErrLength, len(inn))
	}

	digits := make([]int, len(inn))
	for i, r := range inn {
		if r < '0' || r > '9' {
			return ErrNotDigits
		}
		digits[i] = int(r - '0')
	}

	if len(inn) == 10 {
		if checkDigit(digits, w10) != digits[9] {
			return ErrChecksum
		}
		return nil
	}

	if checkDigit(digits, w11) != digits[10] || checkDigit(digits, w12) != digits[11] {
		return ErrChecksum
	}
	return nil
}

// IsValid reports whether the INN passes validation.
func IsValid(inn string) bool {
	return Validate(inn) == nil
}

// checkDigit computes Σ digits[i]·weights[i] mod 11 mod 10.
func checkDigit(digits, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += digits[i] * w
	}
	return sum % 11 % 10
}
