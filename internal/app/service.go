/**
 * @description
 * This file contains the core business logic for the transfer-service. The
 * `Service` struct owns the transfer lifecycle: creation with pre-checks,
 * verification, hand-off to settlement, cancellation and operator overrides.
 *
 * Key features:
 * - Creation-time validation rejects bad amounts, destinations and schedules
 *   before any state exists; insufficient funds at creation persists nothing.
 * - Every transfer is created pending with a verification code already issued.
 * - Settlement and scheduling are driven off the verified transfer, never off
 *   caller input.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - github.com/shopspring/decimal: Money amounts.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/transfer-service/internal/domain"
	"github.com/transfa/transfer-service/internal/store"
	"github.com/transfa/transfer-service/pkg/rabbitmq"
)

// EventsExchange is the topic exchange all transfer events are published to.
const EventsExchange = "transfa.events"

var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidDestination = errors.New("destination account number is required")
	ErrNoBeneficiaries    = errors.New("bulk transfer requires at least one beneficiary")
	ErrInvalidBeneficiary = errors.New("beneficiary is invalid")
	ErrInvalidFrequency   = errors.New("invalid frequency")
	ErrInvalidSchedule    = errors.New("invalid schedule")
	ErrInvalidStatus      = errors.New("invalid transfer status")
	ErrNotRecurring       = errors.New("transfer is not recurring")
	ErrNotPending         = errors.New("transfer is not pending verification")
	ErrTransferTerminal   = errors.New("transfer is in a terminal status")
	ErrVerifyRateLimited  = errors.New("too many verification attempts")
)

// Service provides the core business logic for transfers.
type Service struct {
	repo    store.Repository
	events  rabbitmq.Publisher
	codeTTL time.Duration

	limiter           VerifyRateLimiter
	verifyLimitPerMin int
}

// NewService creates a new transfer service instance.
func NewService(repo store.Repository, events rabbitmq.Publisher, codeTTL time.Duration) *Service {
	if codeTTL <= 0 {
		codeTTL = 30 * time.Minute
	}
	return &Service{
		repo:    repo,
		events:  events,
		codeTTL: codeTTL,
	}
}

// SetVerifyRateLimiter enables rate limiting of verification attempts. A nil
// limiter or non-positive limit disables the guard.
func (s *Service) SetVerifyRateLimiter(limiter VerifyRateLimiter, perMinute int) {
	s.limiter = limiter
	s.verifyLimitPerMin = perMinute
}

// loadOwnedAccount fetches an account and scopes it to the calling user.
// Accounts belonging to other users are reported as not found.
func (s *Service) loadOwnedAccount(ctx context.Context, userID, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, store.ErrAccountNotFound
	}
	return account, nil
}

// checkDestinationCurrency rejects a destination that resolves internally in a
// different currency. External destinations pass; settlement re-checks, since
// the destination account can change between creation and verification.
func (s *Service) checkDestinationCurrency(ctx context.Context, source *domain.Account, destinationNumber string) error {
	dest, err := s.repo.FindAccountByNumber(ctx, destinationNumber)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil
		}
		return err
	}
	if dest.Currency != source.Currency {
		return store.ErrCurrencyMismatch
	}
	return nil
}

// loadOwnedTransfer fetches a transfer and scopes it to the calling user.
func (s *Service) loadOwnedTransfer(ctx context.Context, userID, transferID uuid.UUID) (*domain.Transfer, error) {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.UserID != userID {
		return nil, store.ErrTransferNotFound
	}
	return transfer, nil
}

// CreateSimpleTransfer creates a pending 1:1 transfer and issues its
// verification code. The balance is pre-checked here and re-checked at
// settlement time, since time passes between the two.
func (s *Service) CreateSimpleTransfer(ctx context.Context, userID, sourceAccountID uuid.UUID, destinationAccountNumber string, amount decimal.Decimal, description string) (*domain.Transfer, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	destinationAccountNumber = strings.TrimSpace(destinationAccountNumber)
	if destinationAccountNumber == "" {
		return nil, ErrInvalidDestination
	}

	account, err := s.loadOwnedAccount(ctx, userID, sourceAccountID)
	if err != nil {
		return nil, err
	}
	if account.Balance.LessThan(amount) {
		return nil, store.ErrInsufficientFunds
	}
	if err := s.checkDestinationCurrency(ctx, account, destinationAccountNumber); err != nil {
		return nil, err
	}

	transfer := &domain.Transfer{
		ID:                       uuid.New(),
		UserID:                   userID,
		SourceAccountID:          account.ID,
		DestinationAccountNumber: destinationAccountNumber,
		Amount:                   amount,
		Currency:                 account.Currency,
		Description:              description,
		Kind:                     domain.TransferKindSimple,
		Status:                   domain.TransferStatusPending,
	}
	if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
		return nil, fmt.Errorf("failed to create transfer record: %w", err)
	}
	if err := s.issueVerificationCode(ctx, transfer); err != nil {
		return nil, err
	}
	return transfer, nil
}

// CreateBulkTransfer creates a pending 1:N fan-out transfer. The transfer's
// total amount is the decimal sum of its beneficiaries; the sum and the
// per-beneficiary validation happen before anything is persisted.
func (s *Service) CreateBulkTransfer(ctx context.Context, userID, sourceAccountID uuid.UUID, inputs []domain.BeneficiaryInput, description string) (*domain.Transfer, error) {
	if len(inputs) == 0 {
		return nil, ErrNoBeneficiaries
	}

	total := decimal.Zero
	beneficiaries := make([]domain.Beneficiary, 0, len(inputs))
	for i, in := range inputs {
		name := strings.TrimSpace(in.Name)
		number := strings.TrimSpace(in.AccountNumber)
		if name == "" || number == "" || !in.Amount.IsPositive() {
			return nil, fmt.Errorf("beneficiary %d: %w", i+1, ErrInvalidBeneficiary)
		}
		total = total.Add(in.Amount)
		beneficiaries = append(beneficiaries, domain.Beneficiary{
			ID:            uuid.New(),
			Name:          name,
			AccountNumber: number,
			Amount:        in.Amount,
			Status:        domain.BeneficiaryStatusPending,
			Position:      i,
		})
	}

	account, err := s.loadOwnedAccount(ctx, userID, sourceAccountID)
	if err != nil {
		return nil, err
	}
	if account.Balance.LessThan(total) {
		return nil, store.ErrInsufficientFunds
	}

	transfer := &domain.Transfer{
		ID:              uuid.New(),
		UserID:          userID,
		SourceAccountID: account.ID,
		Amount:          total,
		Currency:        account.Currency,
		Description:     description,
		Kind:            domain.TransferKindBulk,
		Status:          domain.TransferStatusPending,
		Beneficiaries:   beneficiaries,
	}
	for i := range transfer.Beneficiaries {
		transfer.Beneficiaries[i].TransferID = transfer.ID
	}
	if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
		return nil, fmt.Errorf("failed to create transfer record: %w", err)
	}
	if err := s.issueVerificationCode(ctx, transfer); err != nil {
		return nil, err
	}
	return transfer, nil
}

// CreateRecurringTransfer creates a pending recurring transfer. The schedule is
// activated only after verification; until then next_execution stays unset.
func (s *Service) CreateRecurringTransfer(ctx context.Context, userID, sourceAccountID uuid.UUID, destinationAccountNumber string, amount decimal.Decimal, frequency string, startDate time.Time, endDate *time.Time, description string) (*domain.Transfer, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	destinationAccountNumber = strings.TrimSpace(destinationAccountNumber)
	if destinationAccountNumber == "" {
		return nil, ErrInvalidDestination
	}
	parsedFrequency, err := domain.ParseFrequency(frequency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrequency, err)
	}
	if startDate.IsZero() {
		return nil, fmt.Errorf("%w: start date is required", ErrInvalidSchedule)
	}
	if endDate != nil && endDate.Before(startDate) {
		return nil, fmt.Errorf("%w: end date precedes start date", ErrInvalidSchedule)
	}

	account, err := s.loadOwnedAccount(ctx, userID, sourceAccountID)
	if err != nil {
		return nil, err
	}
	if account.Balance.LessThan(amount) {
		return nil, store.ErrInsufficientFunds
	}
	if err := s.checkDestinationCurrency(ctx, account, destinationAccountNumber); err != nil {
		return nil, err
	}

	transfer := &domain.Transfer{
		ID:                       uuid.New(),
		UserID:                   userID,
		SourceAccountID:          account.ID,
		DestinationAccountNumber: destinationAccountNumber,
		Amount:                   amount,
		Currency:                 account.Currency,
		Description:              description,
		Kind:                     domain.TransferKindRecurring,
		Status:                   domain.TransferStatusPending,
		Frequency:                &parsedFrequency,
		StartDate:                &startDate,
		EndDate:                  endDate,
	}
	if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
		return nil, fmt.Errorf("failed to create transfer record: %w", err)
	}
	if err := s.issueVerificationCode(ctx, transfer); err != nil {
		return nil, err
	}
	return transfer, nil
}

// VerifyTransfer consumes a verification code and, on success, hands the
// transfer to settlement (simple/bulk) or activates its schedule (recurring).
// Consumption is single-use: a second call after success gets
// store.ErrAlreadyVerified and no funds move again.
func (s *Service) VerifyTransfer(ctx context.Context, userID, transferID uuid.UUID, code string) error {
	if s.limiter != nil && s.verifyLimitPerMin > 0 {
		count, _, err := s.limiter.ConsumeRateLimit(ctx, "transfer_verify", userID.String(), s.verifyLimitPerMin, time.Minute)
		if err != nil {
			// Fail open: a limiter outage must not block verification.
			log.Printf("level=warn component=app msg=\"verify rate limiter unavailable\" user_id=%s err=%v", userID, err)
		} else if count > s.verifyLimitPerMin {
			return ErrVerifyRateLimited
		}
	}

	transfer, err := s.loadOwnedTransfer(ctx, userID, transferID)
	if err != nil {
		return err
	}
	if transfer.IsTerminal() {
		return ErrTransferTerminal
	}

	if err := s.repo.ConsumeVerificationCode(ctx, transfer.ID, code); err != nil {
		return err
	}
	transfer.IsVerified = true

	switch transfer.Kind {
	case domain.TransferKindSimple:
		return s.settleSimple(ctx, transfer)
	case domain.TransferKindBulk:
		return s.settleBulk(ctx, transfer)
	case domain.TransferKindRecurring:
		return s.activateRecurring(ctx, transfer)
	default:
		return fmt.Errorf("unknown transfer kind %q", transfer.Kind)
	}
}

// activateRecurring moves a verified recurring transfer into its long-lived
// active state, with the schedule starting at startDate.
func (s *Service) activateRecurring(ctx context.Context, transfer *domain.Transfer) error {
	next := transfer.NextExecution
	if next == nil {
		next = transfer.StartDate
	}
	if next == nil {
		return fmt.Errorf("%w: recurring transfer has no start date", ErrInvalidSchedule)
	}
	if err := s.repo.ActivateRecurringTransfer(ctx, transfer.ID, *next); err != nil {
		return fmt.Errorf("failed to activate recurring transfer: %w", err)
	}
	transfer.Status = domain.TransferStatusActive
	s.notify(ctx, transfer.UserID, "Recurring transfer activated",
		fmt.Sprintf("Your %s transfer of %s %s is scheduled starting %s.",
			*transfer.Frequency, transfer.Amount.StringFixed(2), transfer.Currency, next.Format("2006-01-02")),
		transfer.ID)
	return nil
}

// ResendVerificationCode issues a fresh code for a pending transfer, replacing
// the previous one. Used when a code expired before the caller submitted it.
func (s *Service) ResendVerificationCode(ctx context.Context, userID, transferID uuid.UUID) error {
	transfer, err := s.loadOwnedTransfer(ctx, userID, transferID)
	if err != nil {
		return err
	}
	if transfer.Status != domain.TransferStatusPending || transfer.IsVerified {
		return ErrNotPending
	}
	return s.issueVerificationCode(ctx, transfer)
}

// CancelRecurringTransfer cancels a recurring transfer. Terminal transfers
// cannot be cancelled again; simple and bulk transfers settle immediately on
// verification and have nothing to cancel.
func (s *Service) CancelRecurringTransfer(ctx context.Context, userID, transferID uuid.UUID) error {
	transfer, err := s.loadOwnedTransfer(ctx, userID, transferID)
	if err != nil {
		return err
	}
	if transfer.Kind != domain.TransferKindRecurring {
		return ErrNotRecurring
	}
	if transfer.IsTerminal() {
		return ErrTransferTerminal
	}
	if err := s.repo.UpdateTransferStatus(ctx, transfer.ID, domain.TransferStatusCancelled, nil); err != nil {
		return err
	}
	s.notify(ctx, transfer.UserID, "Recurring transfer cancelled",
		fmt.Sprintf("Your recurring transfer of %s %s has been cancelled.", transfer.Amount.StringFixed(2), transfer.Currency),
		transfer.ID)
	return nil
}

// GetTransfer returns one of the caller's transfers.
func (s *Service) GetTransfer(ctx context.Context, userID, transferID uuid.UUID) (*domain.Transfer, error) {
	return s.loadOwnedTransfer(ctx, userID, transferID)
}

// ListTransfers returns the caller's transfer history.
func (s *Service) ListTransfers(ctx context.Context, userID uuid.UUID, opts domain.TransferListOptions) ([]domain.Transfer, error) {
	return s.repo.ListTransfers(ctx, userID, opts)
}

// GetAccountLedger returns the ledger entries of one of the caller's accounts,
// newest first.
func (s *Service) GetAccountLedger(ctx context.Context, userID, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	if _, err := s.loadOwnedAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListLedgerEntries(ctx, accountID, limit, offset)
}

// OverrideTransferStatus force-sets a transfer's status with a reason. This is
// the operator escape hatch: it bypasses the verify/settle path entirely and
// always notifies the initiating user.
func (s *Service) OverrideTransferStatus(ctx context.Context, transferID uuid.UUID, status, reason string) error {
	switch status {
	case domain.TransferStatusPending, domain.TransferStatusActive,
		domain.TransferStatusCompleted, domain.TransferStatusFailed, domain.TransferStatusCancelled:
	default:
		return ErrInvalidStatus
	}

	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return err
	}
	var failureReason *string
	if reason != "" {
		failureReason = &reason
	}
	if err := s.repo.UpdateTransferStatus(ctx, transfer.ID, status, failureReason); err != nil {
		return err
	}
	message := fmt.Sprintf("The status of your transfer of %s %s was changed to %s by support.",
		transfer.Amount.StringFixed(2), transfer.Currency, status)
	if reason != "" {
		message = fmt.Sprintf("%s Reason: %s", message, reason)
	}
	s.notify(ctx, transfer.UserID, "Transfer status updated", message, transfer.ID)
	return nil
}

// notify publishes a fire-and-forget user notification. Failure to notify never
// fails the operation that triggered it.
func (s *Service) notify(ctx context.Context, userID uuid.UUID, title, message string, transferID uuid.UUID) {
	if s.events == nil {
		return
	}
	event := rabbitmq.TransferNotificationEvent{
		UserID:     userID,
		Title:      title,
		Message:    message,
		TransferID: transferID,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, EventsExchange, "transfer.notification", event); err != nil {
		log.Printf("level=warn component=app msg=\"notification publish failed\" user_id=%s transfer_id=%s err=%v", userID, transferID, err)
	}
}
