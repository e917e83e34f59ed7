package store

import (
	"errors"
	"testing"
	"time"
)

func TestValidateStoredCode(t *testing.T) {
	code := "123456"
	future := time.Now().Add(30 * time.Minute)
	past := time.Now().Add(-time.Minute)

	tests := []struct {
		name       string
		stored     *string
		expiresAt  *time.Time
		isVerified bool
		submitted  string
		want       error
	}{
		{
			name:      "valid code within its window is accepted",
			stored:    &code,
			expiresAt: &future,
			submitted: "123456",
			want:      nil,
		},
		{
			name:      "surrounding whitespace on the submission is ignored",
			stored:    &code,
			expiresAt: &future,
			submitted: "  123456  ",
			want:      nil,
		},
		{
			name:       "already verified rejects even a correct unexpired code",
			stored:     &code,
			expiresAt:  &future,
			isVerified: true,
			submitted:  "123456",
			want:       ErrAlreadyVerified,
		},
		{
			name:      "mismatched code is invalid",
			stored:    &code,
			expiresAt: &future,
			submitted: "654321",
			want:      ErrCodeInvalid,
		},
		{
			name:      "no stored code is invalid",
			stored:    nil,
			expiresAt: &future,
			submitted: "123456",
			want:      ErrCodeInvalid,
		},
		{
			name:      "correct code past its expiry is expired",
			stored:    &code,
			expiresAt: &past,
			submitted: "123456",
			want:      ErrCodeExpired,
		},
		{
			name:      "missing expiry is expired",
			stored:    &code,
			expiresAt: nil,
			submitted: "123456",
			want:      ErrCodeExpired,
		},
		{
			name:      "wrong and expired reports invalid, not expired",
			stored:    &code,
			expiresAt: &past,
			submitted: "654321",
			want:      ErrCodeInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validateStoredCode(tt.stored, tt.expiresAt, tt.isVerified, tt.submitted)
			if !errors.Is(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
