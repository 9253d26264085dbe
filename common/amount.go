package common

import (
	"errors"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ErrInvalidAmount = errors.New("amount must be a whole number")

var amountPrinter = message.NewPrinter(language.AmericanEnglish)

// SanitizeDigits keeps only ASCII digits, the way amount inputs are typed.
func SanitizeDigits(raw string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
}

// ParseAmount sanitizes raw and parses it as an unsigned amount.
func ParseAmount(raw string) (uint64, error) {
	digits := SanitizeDigits(raw)
	if digits == "" {
		return 0, ErrInvalidAmount
	}
	v, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatAmount renders raw with en-US digit grouping ("1234567" ->
// "1,234,567"). Empty input stays empty; input that does not fit in a
// uint64 is returned as bare digits.
func FormatAmount(raw string) string {
	digits := SanitizeDigits(raw)
	if digits == "" {
		return ""
	}
	v, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return digits
	}
	return amountPrinter.Sprintf("%d", v)
}

// FormatUint is FormatAmount for an already parsed value.
func FormatUint(v uint64) string {
	return amountPrinter.Sprintf("%d", v)
}
