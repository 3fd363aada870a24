package repositories

import (
	"testing"
	"time"
)

func TestCursor_RoundTrip(t *testing.T) {
	original := &Cursor{
		CreatedAt: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
		ID:        "44444444-4444-4444-8444-444444444444",
	}

	decoded, err := DecodeCursor(original.Encode())
	if err != nil {
		t.Fatalf("DecodeCursor() error = %v", err)
	}
	if !decoded.CreatedAt.Equal(original.CreatedAt) || decoded.ID != original.ID {
		t.Errorf("round trip = %+v, want %+v", decoded, original)
	}
}

func TestDecodeCursor_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"not base64", "!!not-base64!!"},
		{"base64 but not json", "bm90LWpzb24"},
		{"json but missing id", "eyJjcmVhdGVkQXQiOiIyMDI1LTAzLTE0VDA5OjI2OjUzWiJ9"},
		{"empty token", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeCursor(tt.token); err == nil {
				t.Errorf("DecodeCursor(%q) accepted a malformed token", tt.token)
			}
		})
	}
}
