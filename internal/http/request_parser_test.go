package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"expensa/internal/core"
)

func TestParseMonthParams(t *testing.T) {
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name             string
		query            url.Values
		defaultToCurrent bool
		wantMonth        int
		wantYear         int
		wantSet          bool
		wantErr          error
	}{
		{"absent month without default", url.Values{}, false, 2, 2024, false, nil},
		{"absent month defaults to current", url.Values{}, true, 2, 2024, true, nil},
		{"january is zero", url.Values{"month": {"0"}, "year": {"2023"}}, false, 0, 2023, true, nil},
		{"december", url.Values{"month": {"11"}}, false, 11, 2024, true, nil},
		{"month out of range", url.Values{"month": {"12"}}, false, 0, 0, false, core.ErrInvalidMonth},
		{"negative month", url.Values{"month": {"-1"}}, false, 0, 0, false, core.ErrInvalidMonth},
		{"month not a number", url.Values{"month": {"abc"}}, false, 0, 0, false, errInvalidQuery},
		{"year not a number", url.Values{"year": {"twenty"}}, false, 0, 0, false, errInvalidQuery},
		{"unknown tz", url.Values{"tz": {"Mars/Olympus"}}, false, 0, 0, false, errInvalidQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMonthParams(tt.query, time.UTC, now, tt.defaultToCurrent)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Month != tt.wantMonth || got.Year != tt.wantYear || got.Set != tt.wantSet {
				t.Errorf("got month=%d year=%d set=%v, want month=%d year=%d set=%v",
					got.Month, got.Year, got.Set, tt.wantMonth, tt.wantYear, tt.wantSet)
			}
		})
	}
}

func TestParseMonthParamsUsesLocationForDefaults(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// Still December 31st in UTC, already January in Tokyo.
	now := time.Date(2023, time.December, 31, 20, 0, 0, 0, time.UTC)

	got, err := ParseMonthParams(url.Values{"tz": {"Asia/Tokyo"}}, time.UTC, now, true)
	if err != nil {
		t.Fatal(err)
	}
	if got.Month != 0 || got.Year != 2024 || got.Location.String() != tokyo.String() {
		t.Errorf("got %d/%d in %s, want 0/2024 in Asia/Tokyo", got.Month, got.Year, got.Location)
	}

	r, err := got.Range()
	if err != nil {
		t.Fatal(err)
	}
	if !r.Start.Equal(time.Date(2024, time.January, 1, 0, 0, 0, 0, tokyo)) {
		t.Errorf("range start = %v", r.Start)
	}
}

func TestMonthParamsRangeUnset(t *testing.T) {
	r, err := MonthParams{}.Range()
	if err != nil || r != nil {
		t.Errorf("Range() = %v, %v; want nil, nil", r, err)
	}
}

func TestAmountField(t *testing.T) {
	tests := []struct {
		body    string
		want    int64
		wantErr bool
	}{
		{`{"amount": 12.5}`, 1250, false},
		{`{"amount": "12,34"}`, 1234, false},
		{`{"amount": 12.345}`, 1235, false},
		{`{"amount": "0"}`, 0, true},
		{`{"amount": -3}`, 0, true},
		{`{"amount": null}`, 0, true},
		{`{}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			var req struct {
				Amount amountField `json:"amount"`
			}
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			m, err := req.Amount.Money()
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidAmount) {
					t.Errorf("err = %v, want ErrInvalidAmount", err)
				}
				return
			}
			if err != nil || m.Cents != tt.want {
				t.Errorf("Money() = %d, %v; want %d", m.Cents, err, tt.want)
			}
		})
	}

	var bad struct {
		Amount amountField `json:"amount"`
	}
	if err := json.Unmarshal([]byte(`{"amount": true}`), &bad); err == nil {
		t.Error("boolean amount should not decode")
	}
}

func TestLimitField(t *testing.T) {
	tests := []struct {
		body    string
		wantSet bool
		want    *int64
		wantErr bool
	}{
		{`{}`, false, nil, false},
		{`{"limit": null}`, true, nil, false},
		{`{"limit": ""}`, true, nil, false},
		{`{"limit": 500}`, true, ptr(int64(50000)), false},
		{`{"limit": "12.50"}`, true, ptr(int64(1250)), false},
		{`{"limit": "12.505"}`, true, nil, true},
		{`{"limit": "abc"}`, true, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			var req struct {
				Limit limitField `json:"limit"`
			}
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if req.Limit.Set != tt.wantSet {
				t.Errorf("Set = %v, want %v", req.Limit.Set, tt.wantSet)
			}
			limit, err := req.Limit.Limit()
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidLimit) {
					t.Errorf("err = %v, want ErrInvalidLimit", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			switch {
			case tt.want == nil && limit != nil:
				t.Errorf("limit = %v, want nil", limit.Cents)
			case tt.want != nil && (limit == nil || limit.Cents != *tt.want):
				t.Errorf("limit = %v, want %d", limit, *tt.want)
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"x"}`, false},
		{"empty", ``, true},
		{"unknown field", `{"name":"x","extra":1}`, true},
		{"trailing data", `{"name":"x"}{"name":"y"}`, true},
		{"not json", `name=x`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := decodeJSON(httptest.NewRecorder(), r, &p)
			if tt.wantErr {
				if !errors.Is(err, errMalformedBody) {
					t.Errorf("err = %v, want errMalformedBody", err)
				}
				return
			}
			if err != nil || p.Name != "x" {
				t.Errorf("decode = %+v, %v", p, err)
			}
		})
	}
}

func TestDecodeJSONTooLarge(t *testing.T) {
	body := `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var p struct {
		Name string `json:"name"`
	}
	err := decodeJSON(httptest.NewRecorder(), r, &p)
	var tooLarge *http.MaxBytesError
	if !errors.As(err, &tooLarge) {
		t.Errorf("err = %v, want MaxBytesError", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  lunch  ", "lunch"},
		{"a\x00b\x07c", "abc"},
		{"line1\nline2\ttab", "line1\nline2\ttab"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header, want string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer   abc123 ", "abc123"},
		{"Basic dXNlcjpwYXNz", ""},
		{"abc123", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		if got := bearerToken(r); got != tt.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
