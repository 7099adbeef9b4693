package expiry

import (
	"fmt"
	"strings"
)

// InvalidFormatError reports an expiration string that cannot be split into
// month and year.
type InvalidFormatError struct {
	Input string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid expiration date format: %q", e.Input)
}

// Parse splits a card-face expiration date into month and year strings.
// Separators ("/" and spaces) are stripped first; what remains must be MYY
// or MMYY. The month comes back exactly as written (no zero padding and no
// range check, so "13" passes); the year is always two digits.
func Parse(raw string) (month, year string, err error) {
	cleaned := strings.ReplaceAll(raw, "/", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")

	switch len(cleaned) {
	case 3:
		return cleaned[:1], cleaned[1:], nil
	case 4:
		return cleaned[:2], cleaned[2:], nil
	default:
		return "", "", &InvalidFormatError{Input: raw}
	}
}
