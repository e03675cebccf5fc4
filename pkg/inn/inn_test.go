package inn

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_Valid10Digit(t *testing.T) {
	for _, inn := range []string{"7736050003", "7707083893", "5009053292"} {
		assert.NoError(t, Validate(inn), inn)
	}
}

func TestValidate_Valid12Digit(t *testing.T) {
	assert.NoError(t, Validate("500100732259"))
}

func TestValidate_BadChecksum(t *testing.T) {
	assert.ErrorIs(t, Validate("7736050004"), ErrChecksum)
	assert.ErrorIs(t, Validate("7707083894"), ErrChecksum)
}

func TestValidate_BadLength(t *testing.T) {
	for _, inn := range []string{"", "123", "12345678901", "1234567890123"} {
		assert.ErrorIs(t, Validate(inn), ErrLength, inn)
	}
}

func TestValidate_NonDigits(t *testing.T) {
	assert.ErrorIs(t, Validate("77360500a3"), ErrNotDigits)
	assert.ErrorIs(t, Validate("7736 50003"), ErrNotDigits)
}

// Perturbing any single non-check digit must flip validity: the check digit
// is a weighted sum over the body, so a one-digit change breaks it.
func TestValidate_SingleDigitPerturbation(t *testing.T) {
	const valid = "7736050003"
	for pos := 0; pos < 9; pos++ {
		for d := byte('0'); d <= '9'; d++ {
			if valid[pos] == d {
				continue
			}
			mutated := valid[:pos] + string(d) + valid[pos+1:]
			t.Run(fmt.Sprintf("pos%d_to_%c", pos, d), func(t *testing.T) {
				assert.Error(t, Validate(mutated))
			})
		}
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("7736050003"))
	assert.False(t, IsValid("7736050004"))
	assert.False(t, IsValid(""))
}
