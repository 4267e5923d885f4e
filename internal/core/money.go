// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between cents and their decimal representations.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// MaxAmountCents bounds a single amount or limit (100 billion). Sums of many
// such values stay far from the int64 range.
const MaxAmountCents int64 = 10_000_000_000_000

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns an error for invalid formats, negative or zero amounts and amounts
// above MaxAmountCents.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil (rounds up)
//	ParseDecimalToCents("abc") -> 0, ErrInvalidAmount
func ParseDecimalToCents(s string) (int64, error) {
	intPart, fracPart, err := splitDecimal(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if iv > MaxAmountCents/100 {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if cents <= 0 || cents > MaxAmountCents {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseAmount is ParseDecimalToCents returning Money.
func ParseAmount(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

// ParseLimit parses a category limit. Empty input clears the limit (nil).
// At most two decimals are accepted and the value must be positive.
func ParseLimit(s string) (*Money, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	_, fracPart, err := splitDecimal(s)
	if err != nil || len(fracPart) > 2 {
		return nil, ErrInvalidLimit
	}
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return nil, ErrInvalidLimit
	}
	return &Money{Cents: cents}, nil
}

func splitDecimal(s string) (string, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return "", "", ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return "", "", ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return "", "", ErrInvalidAmount
		}
	}
	return intPart, fracPart, nil
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// Float returns the decimal value for display purposes.
// Use cents for calculations.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

// String formats the amount with two decimals, e.g. "12.30".
func (m Money) String() string {
	sign := ""
	c := m.Cents
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
