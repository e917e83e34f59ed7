/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL needed for accounts, ledger entries, transfers and bulk
 * beneficiaries, and the transactional settlement paths.
 *
 * Account balances are the only shared mutable state in the system. Every
 * settlement locks the involved account rows with FOR UPDATE, re-checks the
 * balance under the lock, and applies the balance change together with its
 * ledger entry inside one transaction.
 *
 * @dependencies
 * - context, errors, fmt, strings, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Money amounts.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/transfa/transfer-service/internal/domain"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransferNotFound    = errors.New("transfer not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrCodeInvalid         = errors.New("verification code invalid")
	ErrCodeExpired         = errors.New("verification code expired")
	ErrAlreadyVerified     = errors.New("transfer already verified")
	ErrCycleAlreadyClaimed = errors.New("recurring cycle already claimed")
)

// Ledger entry categories written by the settlement paths.
const (
	LedgerCategoryTransfer  = "transfer"
	LedgerCategoryBulk      = "bulk_transfer"
	LedgerCategoryRecurring = "recurring_transfer"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindAccountByID retrieves an account by its internal id.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	query := `SELECT id, user_id, account_number, currency, balance, created_at, updated_at FROM accounts WHERE id = $1`
	return r.scanAccount(r.db.QueryRow(ctx, query, accountID))
}

// FindAccountByNumber resolves an externally addressable account number to an
// internal account, if one exists.
func (r *PostgresRepository) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	query := `SELECT id, user_id, account_number, currency, balance, created_at, updated_at FROM accounts WHERE account_number = $1`
	return r.scanAccount(r.db.QueryRow(ctx, query, strings.TrimSpace(accountNumber)))
}

func (r *PostgresRepository) scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.AccountNumber,
		&account.Currency,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ListLedgerEntries returns an account's ledger, newest first.
func (r *PostgresRepository) ListLedgerEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `
		SELECT id, account_id, occurred_at, description, category, amount, kind, counterparty_account_number, transfer_id
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.OccurredAt, &e.Description, &e.Category, &e.Amount, &e.Kind, &e.CounterpartyNumber, &e.TransferID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreateTransfer inserts a transfer and, for bulk transfers, its beneficiary rows
// in one transaction.
func (r *PostgresRepository) CreateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO transfers (
			id, user_id, source_account_id, destination_account_number, amount, currency,
			description, kind, status, is_verified, frequency, start_date, end_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10, $11, $12)
	`
	_, err = tx.Exec(ctx, query,
		transfer.ID,
		transfer.UserID,
		transfer.SourceAccountID,
		transfer.DestinationAccountNumber,
		transfer.Amount,
		transfer.Currency,
		transfer.Description,
		transfer.Kind,
		transfer.Status,
		transfer.Frequency,
		transfer.StartDate,
		transfer.EndDate,
	)
	if err != nil {
		return err
	}

	for i := range transfer.Beneficiaries {
		b := &transfer.Beneficiaries[i]
		_, err = tx.Exec(ctx,
			`INSERT INTO transfer_beneficiaries (id, transfer_id, name, account_number, amount, status, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			b.ID, transfer.ID, b.Name, b.AccountNumber, b.Amount, b.Status, b.Position,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

const transferColumns = `
	id, user_id, source_account_id, destination_account_number, amount, currency,
	description, kind, status, failure_reason, is_verified,
	frequency, start_date, end_date, last_executed, next_execution,
	created_at, updated_at
`

func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	var t domain.Transfer
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.SourceAccountID,
		&t.DestinationAccountNumber,
		&t.Amount,
		&t.Currency,
		&t.Description,
		&t.Kind,
		&t.Status,
		&t.FailureReason,
		&t.IsVerified,
		&t.Frequency,
		&t.StartDate,
		&t.EndDate,
		&t.LastExecuted,
		&t.NextExecution,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return &t, nil
}

// FindTransferByID retrieves a transfer and, for bulk transfers, its
// beneficiaries. The verification code is never selected here.
func (r *PostgresRepository) FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`
	transfer, err := scanTransfer(r.db.QueryRow(ctx, query, transferID))
	if err != nil {
		return nil, err
	}
	if transfer.Kind == domain.TransferKindBulk {
		if transfer.Beneficiaries, err = r.findBeneficiaries(ctx, transfer.ID); err != nil {
			return nil, err
		}
	}
	return transfer, nil
}

func (r *PostgresRepository) findBeneficiaries(ctx context.Context, transferID uuid.UUID) ([]domain.Beneficiary, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, transfer_id, name, account_number, amount, status, position
		 FROM transfer_beneficiaries WHERE transfer_id = $1 ORDER BY position`,
		transferID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var beneficiaries []domain.Beneficiary
	for rows.Next() {
		var b domain.Beneficiary
		if err := rows.Scan(&b.ID, &b.TransferID, &b.Name, &b.AccountNumber, &b.Amount, &b.Status, &b.Position); err != nil {
			return nil, err
		}
		beneficiaries = append(beneficiaries, b)
	}
	return beneficiaries, rows.Err()
}

// ListTransfers returns a user's transfers, newest first, with optional kind and
// status filters.
func (r *PostgresRepository) ListTransfers(ctx context.Context, userID uuid.UUID, opts domain.TransferListOptions) ([]domain.Transfer, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + transferColumns + ` FROM transfers WHERE user_id = $1`
	args := []interface{}{userID}
	if opts.Kind != "" {
		args = append(args, opts.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if opts.Status != "" {
		args = append(args, opts.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range transfers {
		if transfers[i].Kind == domain.TransferKindBulk {
			if transfers[i].Beneficiaries, err = r.findBeneficiaries(ctx, transfers[i].ID); err != nil {
				return nil, err
			}
		}
	}
	return transfers, nil
}

// UpdateTransferStatus sets a transfer's status and optional failure reason.
func (r *PostgresRepository) UpdateTransferStatus(ctx context.Context, transferID uuid.UUID, status string, failureReason *string) error {
	query := `UPDATE transfers SET status = $2, failure_reason = COALESCE($3, failure_reason), updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, transferID, status, failureReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

// SetVerificationCode stores a freshly issued code and its expiry on a pending,
// unverified transfer. Issuing again replaces the previous code.
func (r *PostgresRepository) SetVerificationCode(ctx context.Context, transferID uuid.UUID, code string, expiresAt time.Time) error {
	query := `
		UPDATE transfers
		SET verification_code = $2, code_expires_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4 AND is_verified = false
	`
	tag, err := r.db.Exec(ctx, query, transferID, code, expiresAt, domain.TransferStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

// ConsumeVerificationCode checks a submitted code against the stored one under a
// row lock and, on success, clears the code and flips is_verified exactly once.
// A second call after success returns ErrAlreadyVerified regardless of the code
// submitted, which is the idempotency guard that keeps settlement single-shot.
func (r *PostgresRepository) ConsumeVerificationCode(ctx context.Context, transferID uuid.UUID, code string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var (
		stored     *string
		expiresAt  *time.Time
		isVerified bool
	)
	err = tx.QueryRow(ctx,
		`SELECT verification_code, code_expires_at, is_verified FROM transfers WHERE id = $1 FOR UPDATE`,
		transferID,
	).Scan(&stored, &expiresAt, &isVerified)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrTransferNotFound
		}
		return err
	}

	if err := validateStoredCode(stored, expiresAt, isVerified, code); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE transfers SET verification_code = NULL, code_expires_at = NULL, is_verified = true, updated_at = NOW() WHERE id = $1`,
		transferID,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// validateStoredCode applies the verification gate's decision order: an
// already-verified transfer rejects first regardless of the submitted code,
// then a missing or mismatched code, then expiry. Rejections never mutate the
// transfer; the caller commits nothing on a non-nil return.
func validateStoredCode(stored *string, expiresAt *time.Time, isVerified bool, submitted string) error {
	if isVerified {
		return ErrAlreadyVerified
	}
	if stored == nil || *stored != strings.TrimSpace(submitted) {
		return ErrCodeInvalid
	}
	if expiresAt == nil || time.Now().After(*expiresAt) {
		return ErrCodeExpired
	}
	return nil
}

// lockAccountTx locks an account row for the duration of the transaction.
func (r *PostgresRepository) lockAccountTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, user_id, account_number, currency, balance, created_at, updated_at FROM accounts WHERE id = $1 FOR UPDATE`,
		accountID,
	)
	return r.scanAccount(row)
}

// lockAccountByNumberTx resolves and locks a destination account. ErrAccountNotFound
// means the destination is external to the system.
func (r *PostgresRepository) lockAccountByNumberTx(ctx context.Context, tx pgx.Tx, accountNumber string) (*domain.Account, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, user_id, account_number, currency, balance, created_at, updated_at FROM accounts WHERE account_number = $1 FOR UPDATE`,
		strings.TrimSpace(accountNumber),
	)
	return r.scanAccount(row)
}

// debitAccountTx re-checks the balance under the row lock and applies the
// balance change together with its ledger entry. The re-check is deliberate:
// time passes between a transfer's creation-time check and its settlement.
func (r *PostgresRepository) debitAccountTx(ctx context.Context, tx pgx.Tx, account *domain.Account, amount decimal.Decimal, transfer *domain.Transfer, category string, counterparty *string) error {
	if account.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance - $1, updated_at = NOW() WHERE id = $2`,
		amount, account.ID,
	); err != nil {
		return err
	}
	return r.appendLedgerEntryTx(ctx, tx, account.ID, amount.Neg(), transfer, category, counterparty)
}

// creditAccountTx applies a credit and its ledger entry.
func (r *PostgresRepository) creditAccountTx(ctx context.Context, tx pgx.Tx, account *domain.Account, amount decimal.Decimal, transfer *domain.Transfer, category string, counterparty *string) error {
	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2`,
		amount, account.ID,
	); err != nil {
		return err
	}
	return r.appendLedgerEntryTx(ctx, tx, account.ID, amount, transfer, category, counterparty)
}

func (r *PostgresRepository) appendLedgerEntryTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, signedAmount decimal.Decimal, transfer *domain.Transfer, category string, counterparty *string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, account_id, occurred_at, description, category, amount, kind, counterparty_account_number, transfer_id)
		 VALUES ($1, $2, NOW(), $3, $4, $5, $6, $7, $8)`,
		uuid.New(), accountID, transfer.Description, category, signedAmount, domain.EntryKindTransfer, counterparty, transfer.ID,
	)
	return err
}

// moveFundsTx performs the shared simple-settlement movement: lock source,
// re-check, debit, resolve destination, credit when internal.
func (r *PostgresRepository) moveFundsTx(ctx context.Context, tx pgx.Tx, transfer *domain.Transfer, category string) (*SettlementOutcome, error) {
	source, err := r.lockAccountTx(ctx, tx, transfer.SourceAccountID)
	if err != nil {
		return nil, err
	}

	destNumber := strings.TrimSpace(transfer.DestinationAccountNumber)
	if err := r.debitAccountTx(ctx, tx, source, transfer.Amount, transfer, category, &destNumber); err != nil {
		return nil, err
	}

	dest, err := r.lockAccountByNumberTx(ctx, tx, destNumber)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// External destination: the funds leave the system and only the
			// debit entry exists.
			return &SettlementOutcome{DestinationInternal: false}, nil
		}
		return nil, err
	}

	// Conversion is out of scope: an internal destination in another currency
	// rejects the whole settlement, it never receives a transmuted amount.
	if dest.Currency != source.Currency {
		return nil, ErrCurrencyMismatch
	}

	if err := r.creditAccountTx(ctx, tx, dest, transfer.Amount, transfer, category, &source.AccountNumber); err != nil {
		return nil, err
	}
	return &SettlementOutcome{
		DestinationInternal:  true,
		DestinationAccountID: dest.ID,
		DestinationUserID:    dest.UserID,
	}, nil
}

// SettleSimpleTransfer executes the money movement for a verified simple
// transfer and marks it completed, all in one transaction. On insufficient
// funds nothing is committed; the caller records the failed status.
func (r *PostgresRepository) SettleSimpleTransfer(ctx context.Context, transfer *domain.Transfer) (*SettlementOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	outcome, err := r.moveFundsTx(ctx, tx, transfer, LedgerCategoryTransfer)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE transfers SET status = $2, updated_at = NOW() WHERE id = $1`,
		transfer.ID, domain.TransferStatusCompleted,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return outcome, nil
}

// SettleBulkTransfer executes a verified bulk transfer: the source is debited
// exactly once for the total, then each beneficiary is resolved and credited
// when internal. Beneficiaries whose account numbers do not resolve are
// external, not failed; an insufficient total or a cross-currency internal
// beneficiary fails the batch atomically (nothing is committed).
func (r *PostgresRepository) SettleBulkTransfer(ctx context.Context, transfer *domain.Transfer) (*BulkSettlementOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	source, err := r.lockAccountTx(ctx, tx, transfer.SourceAccountID)
	if err != nil {
		return nil, err
	}
	if err := r.debitAccountTx(ctx, tx, source, transfer.Amount, transfer, LedgerCategoryBulk, nil); err != nil {
		return nil, err
	}

	outcome := &BulkSettlementOutcome{}
	for i := range transfer.Beneficiaries {
		b := &transfer.Beneficiaries[i]
		result := BeneficiarySettlement{
			BeneficiaryID: b.ID,
			Name:          b.Name,
			AccountNumber: b.AccountNumber,
			Amount:        b.Amount,
		}

		dest, err := r.lockAccountByNumberTx(ctx, tx, b.AccountNumber)
		switch {
		case err == nil:
			if dest.Currency != source.Currency {
				return nil, ErrCurrencyMismatch
			}
			if err := r.creditAccountTx(ctx, tx, dest, b.Amount, transfer, LedgerCategoryBulk, &source.AccountNumber); err != nil {
				return nil, err
			}
			result.Internal = true
			result.DestinationUserID = dest.UserID
		case errors.Is(err, ErrAccountNotFound):
			// External beneficiary: funds left the system with the single
			// source debit above.
		default:
			return nil, err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE transfer_beneficiaries SET status = $2 WHERE id = $1`,
			b.ID, domain.BeneficiaryStatusCompleted,
		); err != nil {
			return nil, err
		}
		outcome.Beneficiaries = append(outcome.Beneficiaries, result)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE transfers SET status = $2, updated_at = NOW() WHERE id = $1`,
		transfer.ID, domain.TransferStatusCompleted,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return outcome, nil
}

// ActivateRecurringTransfer moves a verified recurring transfer from pending to
// active and initializes its schedule.
func (r *PostgresRepository) ActivateRecurringTransfer(ctx context.Context, transferID uuid.UUID, nextExecution time.Time) error {
	query := `
		UPDATE transfers
		SET status = $2, next_execution = COALESCE(next_execution, $3), updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, transferID, domain.TransferStatusActive, nextExecution, domain.TransferStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

// FindDueRecurringTransfers selects active, verified recurring transfers whose
// next execution date has been reached. The comparison is on dates, not
// instants, so a transfer scheduled for 23:00 is due from the morning tick.
func (r *PostgresRepository) FindDueRecurringTransfers(ctx context.Context, now time.Time) ([]domain.Transfer, error) {
	query := `SELECT ` + transferColumns + `
		FROM transfers
		WHERE kind = $1 AND status = $2 AND is_verified = true
		  AND next_execution IS NOT NULL AND next_execution::date <= $3::date
		ORDER BY next_execution ASC
	`
	rows, err := r.db.Query(ctx, query, domain.TransferKindRecurring, domain.TransferStatusActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, *t)
	}
	return due, rows.Err()
}

// ClaimRecurringCycle advances next_execution with a compare-and-swap. A
// scheduler run that lost the race gets ErrCycleAlreadyClaimed and must not
// execute the cycle; this is the guard against double execution when two ticks
// overlap.
func (r *PostgresRepository) ClaimRecurringCycle(ctx context.Context, transferID uuid.UUID, expectedNext, newNext time.Time) error {
	query := `
		UPDATE transfers
		SET next_execution = $3, updated_at = NOW()
		WHERE id = $1 AND next_execution = $2 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, transferID, expectedNext, newNext, domain.TransferStatusActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCycleAlreadyClaimed
	}
	return nil
}

// ExecuteRecurringCycle performs one scheduled execution of an active recurring
// transfer: the same movement as a simple settlement plus the last_executed
// stamp, with the transfer staying active.
func (r *PostgresRepository) ExecuteRecurringCycle(ctx context.Context, transfer *domain.Transfer, executedAt time.Time) (*SettlementOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	outcome, err := r.moveFundsTx(ctx, tx, transfer, LedgerCategoryRecurring)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE transfers SET last_executed = $2, updated_at = NOW() WHERE id = $1`,
		transfer.ID, executedAt,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return outcome, nil
}
