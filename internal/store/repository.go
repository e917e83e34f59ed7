/**
 * @description
 * This file defines the `Repository` interface, the contract for all data access
 * used by the transfer-service. The settlement methods are coarse by design: a
 * settlement (balance re-check, debit, credit, ledger appends, status change) is
 * one atomic database transaction, so a reader can never observe a balance change
 * without its ledger entry or vice versa.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For entity identifiers.
 * - github.com/shopspring/decimal: For money amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/transfer-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account and ledger methods
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	ListLedgerEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error)

	// Transfer lifecycle methods
	CreateTransfer(ctx context.Context, transfer *domain.Transfer) error
	FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, userID uuid.UUID, opts domain.TransferListOptions) ([]domain.Transfer, error)
	UpdateTransferStatus(ctx context.Context, transferID uuid.UUID, status string, failureReason *string) error

	// Verification gate methods
	SetVerificationCode(ctx context.Context, transferID uuid.UUID, code string, expiresAt time.Time) error
	ConsumeVerificationCode(ctx context.Context, transferID uuid.UUID, code string) error

	// Settlement methods (each runs as a single database transaction)
	SettleSimpleTransfer(ctx context.Context, transfer *domain.Transfer) (*SettlementOutcome, error)
	SettleBulkTransfer(ctx context.Context, transfer *domain.Transfer) (*BulkSettlementOutcome, error)

	// Recurrence scheduler methods
	ActivateRecurringTransfer(ctx context.Context, transferID uuid.UUID, nextExecution time.Time) error
	FindDueRecurringTransfers(ctx context.Context, now time.Time) ([]domain.Transfer, error)
	ClaimRecurringCycle(ctx context.Context, transferID uuid.UUID, expectedNext, newNext time.Time) error
	ExecuteRecurringCycle(ctx context.Context, transfer *domain.Transfer, executedAt time.Time) (*SettlementOutcome, error)
}

// SettlementOutcome reports how a simple (or recurring-cycle) settlement landed.
// When the destination account number did not resolve internally, the funds left
// the system and only the debit entry exists.
type SettlementOutcome struct {
	DestinationInternal  bool
	DestinationAccountID uuid.UUID
	DestinationUserID    uuid.UUID
}

// BeneficiarySettlement reports the result for one destination of a bulk
// settlement. External resolution is not a failure; the beneficiary is completed
// either way.
type BeneficiarySettlement struct {
	BeneficiaryID     uuid.UUID
	Name              string
	AccountNumber     string
	Amount            decimal.Decimal
	Internal          bool
	DestinationUserID uuid.UUID
}

// BulkSettlementOutcome reports the per-beneficiary results of a bulk settlement.
type BulkSettlementOutcome struct {
	Beneficiaries []BeneficiarySettlement
}
