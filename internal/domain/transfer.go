/**
 * @description
 * This file defines the transfer domain models for the transfer-service: the
 * Transfer entity itself, its embedded beneficiaries for bulk fan-outs, and the
 * request/option types used by the API and store layers.
 *
 * @notes
 * - The verification code fields are write-once and excluded from JSON so a code
 *   can never leak through a list or detail response.
 * - A transfer is never deleted; the status field carries its lifecycle
 *   (pending -> completed/failed/cancelled, with `active` as the long-lived state
 *   of a scheduled recurring transfer between cycles).
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transfer kinds.
const (
	TransferKindSimple    = "simple"
	TransferKindBulk      = "bulk"
	TransferKindRecurring = "recurring"
)

// Transfer statuses. Completed, failed and cancelled are terminal.
const (
	TransferStatusPending   = "pending"
	TransferStatusActive    = "active"
	TransferStatusCompleted = "completed"
	TransferStatusFailed    = "failed"
	TransferStatusCancelled = "cancelled"
)

// Beneficiary statuses within a bulk transfer.
const (
	BeneficiaryStatusPending   = "pending"
	BeneficiaryStatusCompleted = "completed"
	BeneficiaryStatusFailed    = "failed"
)

// Transfer represents a requested movement of funds from one account, possibly to
// one or many destinations, possibly on a recurring schedule.
type Transfer struct {
	ID                       uuid.UUID       `json:"id"`
	UserID                   uuid.UUID       `json:"user_id"`
	SourceAccountID          uuid.UUID       `json:"source_account_id"`
	DestinationAccountNumber string          `json:"destination_account_number,omitempty"`
	Amount                   decimal.Decimal `json:"amount"`
	Currency                 string          `json:"currency"`
	Description              string          `json:"description"`
	Kind                     string          `json:"kind"`
	Status                   string          `json:"status"`
	FailureReason            *string         `json:"failure_reason,omitempty"`

	// Verification gate fields. The code is write-once and never serialized.
	VerificationCode *string    `json:"-"`
	CodeExpiresAt    *time.Time `json:"-"`
	IsVerified       bool       `json:"is_verified"`

	// Bulk transfers only.
	Beneficiaries []Beneficiary `json:"beneficiaries,omitempty"`

	// Recurring transfers only.
	Frequency     *string    `json:"frequency,omitempty"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	LastExecuted  *time.Time `json:"last_executed,omitempty"`
	NextExecution *time.Time `json:"next_execution,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the transfer has reached a final status.
func (t *Transfer) IsTerminal() bool {
	switch t.Status {
	case TransferStatusCompleted, TransferStatusFailed, TransferStatusCancelled:
		return true
	}
	return false
}

// Beneficiary is one destination within a bulk transfer. The sum of beneficiary
// amounts always equals the owning transfer's total amount.
type Beneficiary struct {
	ID            uuid.UUID       `json:"id"`
	TransferID    uuid.UUID       `json:"transfer_id"`
	Name          string          `json:"name"`
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Position      int             `json:"position"`
}

// BeneficiaryInput is the caller-supplied instruction for one destination in a
// bulk transfer request.
type BeneficiaryInput struct {
	Name          string          `json:"name"`
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
}

// TransferListOptions controls filtering and pagination for transfer history.
type TransferListOptions struct {
	Kind   string
	Status string
	Limit  int
	Offset int
}
