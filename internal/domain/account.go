/**
 * @description
 * This file defines the account and ledger domain models for the transfer-service.
 * An account holds a balance and an append-only list of ledger entries; the balance
 * is only ever mutated together with a matching entry, inside the store's settlement
 * transactions.
 *
 * @notes
 * - Amounts are `decimal.Decimal` throughout to avoid floating-point drift when
 *   balances and bulk beneficiary totals are re-summed. The database columns are
 *   NUMERIC and scanned directly into decimals.
 * - Ledger entries are immutable once appended; corrections are new offsetting
 *   entries, never edits.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger entry kinds. The signed amount carries the direction (credit > 0,
// debit < 0); the kind records what the movement was.
const (
	EntryKindDeposit    = "deposit"
	EntryKindWithdrawal = "withdrawal"
	EntryKindTransfer   = "transfer"
)

// Account represents a user's balance-holding account. The account number is the
// externally addressable identifier used as a transfer destination.
type Account struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	AccountNumber string          `json:"account_number"`
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// LedgerEntry is one immutable balance change on an account. TransferID links the
// entry back to the transfer that caused it so account history can be reconciled
// against transfer records.
type LedgerEntry struct {
	ID                 uuid.UUID       `json:"id"`
	AccountID          uuid.UUID       `json:"account_id"`
	OccurredAt         time.Time       `json:"occurred_at"`
	Description        string          `json:"description"`
	Category           string          `json:"category"`
	Amount             decimal.Decimal `json:"amount"` // signed: positive = credit, negative = debit
	Kind               string          `json:"kind"`
	CounterpartyNumber *string         `json:"counterparty_account_number,omitempty"`
	TransferID         *uuid.UUID      `json:"transfer_id,omitempty"`
}
