// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// JSON bodies, month filters and the decimal amount fields clients send
// either as numbers or as strings.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"expensa/internal/core"
)

const maxBodyBytes = 64 << 10

var (
	errMalformedBody = errors.New("malformed request body")
	errInvalidQuery  = errors.New("invalid query parameter")
)

// MonthParams holds a parsed month filter. Month is 0-based.
type MonthParams struct {
	Month    int
	Year     int
	Location *time.Location
	// Set is false when no month was requested.
	Set bool
}

// Range returns the inclusive month range, or nil when no month was set.
func (p MonthParams) Range() (*core.TimeRange, error) {
	if !p.Set {
		return nil, nil
	}
	r, err := core.MonthRange(p.Month, p.Year, p.Location)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ParseLocation reads the tz query parameter, falling back to def.
func ParseLocation(query url.Values, def *time.Location) (*time.Location, error) {
	tz := strings.TrimSpace(query.Get("tz"))
	if tz == "" {
		return def, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: tz %q", errInvalidQuery, tz)
	}
	return loc, nil
}

// ParseMonthParams extracts month, year and tz from the query. When
// defaultToCurrent is set an absent month means the current month in the
// chosen location. Year defaults to the current year there.
func ParseMonthParams(query url.Values, def *time.Location, now time.Time, defaultToCurrent bool) (MonthParams, error) {
	loc, err := ParseLocation(query, def)
	if err != nil {
		return MonthParams{}, err
	}
	local := now.In(loc)
	params := MonthParams{
		Month:    int(local.Month()) - 1,
		Year:     local.Year(),
		Location: loc,
		Set:      defaultToCurrent,
	}

	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, fmt.Errorf("%w: month %q", errInvalidQuery, v)
		}
		if m < 0 || m > 11 {
			return MonthParams{}, core.ErrInvalidMonth
		}
		params.Month = m
		params.Set = true
	}
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return MonthParams{}, fmt.Errorf("%w: year %q", errInvalidQuery, v)
		}
		params.Year = y
	}

	return params, nil
}

// decodeJSON reads a single JSON object into dst. Unknown fields are
// rejected so typos surface instead of being silently dropped.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errMalformedBody)
		}
		return fmt.Errorf("%w: %w", errMalformedBody, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", errMalformedBody)
	}
	return nil
}

// decimalText accepts a JSON number, a JSON string or null and returns the
// decimal text ("" for null).
func decimalText(b []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	case json.Number:
		return t.String(), nil
	default:
		return "", errors.New("expected a number or a string")
	}
}

// amountField is a decimal amount sent as a number or a string.
type amountField string

func (a *amountField) UnmarshalJSON(b []byte) error {
	s, err := decimalText(b)
	if err != nil {
		return err
	}
	*a = amountField(s)
	return nil
}

// Money parses the amount. An absent or empty amount is invalid.
func (a amountField) Money() (core.Money, error) {
	return core.ParseAmount(string(a))
}

// limitField tracks whether the limit key was present at all, so null can
// clear the limit while an omitted key is reported.
type limitField struct {
	Set  bool
	Text string
}

func (l *limitField) UnmarshalJSON(b []byte) error {
	s, err := decimalText(b)
	if err != nil {
		return err
	}
	l.Set = true
	l.Text = s
	return nil
}

// Limit parses the limit; null and "" clear it.
func (l limitField) Limit() (*core.Money, error) {
	return core.ParseLimit(l.Text)
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// bearerToken returns the token of an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
