/**
 * @description
 * Verification gate for pending transfers: issues single-use, time-boxed numeric
 * codes and dispatches them for delivery. Consumption lives in the store so the
 * check-and-clear happens under a row lock; this file owns generation and
 * delivery.
 */

package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/transfa/transfer-service/internal/domain"
	"github.com/transfa/transfer-service/pkg/rabbitmq"
)

// verificationCodeDigits is the fixed length of issued codes.
const verificationCodeDigits = 6

// issueVerificationCode generates and stores a fresh code on the transfer and
// publishes a delivery event. A delivery failure is logged but does not fail
// issuance; the caller can always request a resend.
func (s *Service) issueVerificationCode(ctx context.Context, transfer *domain.Transfer) error {
	code, err := generateNumericCode(verificationCodeDigits)
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}
	expiresAt := time.Now().UTC().Add(s.codeTTL)

	if err := s.repo.SetVerificationCode(ctx, transfer.ID, code, expiresAt); err != nil {
		return fmt.Errorf("failed to store verification code: %w", err)
	}

	if s.events != nil {
		event := rabbitmq.VerificationCodeEvent{
			UserID:     transfer.UserID,
			TransferID: transfer.ID,
			Code:       code,
			ExpiresAt:  expiresAt,
		}
		if err := s.events.Publish(ctx, EventsExchange, "transfer.verification.code", event); err != nil {
			log.Printf("level=warn component=app msg=\"verification code delivery publish failed\" transfer_id=%s err=%v", transfer.ID, err)
		}
	}
	return nil
}

// generateNumericCode returns a fixed-length numeric code with leading zeros
// preserved, drawn from crypto/rand.
func generateNumericCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
