package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/transfer-service/internal/domain"
	"github.com/transfa/transfer-service/internal/store"
)

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type publisherStub struct {
	published  []publishedEvent
	publishErr error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.published = append(p.published, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return p.publishErr
}

func (p *publisherStub) Close() {}

func (p *publisherStub) countByRoutingKey(key string) int {
	n := 0
	for _, e := range p.published {
		if e.routingKey == key {
			n++
		}
	}
	return n
}

type createRepoStub struct {
	store.Repository

	account     *domain.Account
	destAccount *domain.Account

	createdTransfer *domain.Transfer
	codeSet         string
	codeExpiresAt   time.Time
}

func (s *createRepoStub) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	if s.account == nil || s.account.ID != accountID {
		return nil, store.ErrAccountNotFound
	}
	return s.account, nil
}

func (s *createRepoStub) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	if s.destAccount != nil && s.destAccount.AccountNumber == accountNumber {
		return s.destAccount, nil
	}
	return nil, store.ErrAccountNotFound
}

func (s *createRepoStub) CreateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	s.createdTransfer = transfer
	return nil
}

func (s *createRepoStub) SetVerificationCode(ctx context.Context, transferID uuid.UUID, code string, expiresAt time.Time) error {
	s.codeSet = code
	s.codeExpiresAt = expiresAt
	return nil
}

func newTestAccount(userID uuid.UUID, balance string) *domain.Account {
	return &domain.Account{
		ID:            uuid.New(),
		UserID:        userID,
		AccountNumber: "1234567890",
		Currency:      "NGN",
		Balance:       decimal.RequireFromString(balance),
	}
}

func TestCreateSimpleTransfer_RejectsNonPositiveAmount(t *testing.T) {
	userID := uuid.New()
	repo := &createRepoStub{account: newTestAccount(userID, "1000")}
	svc := NewService(repo, &publisherStub{}, 0)

	for _, amount := range []string{"0", "-25.50"} {
		_, err := svc.CreateSimpleTransfer(context.Background(), userID, repo.account.ID, "9876543210", decimal.RequireFromString(amount), "rent")
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %s: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if repo.createdTransfer != nil {
		t.Fatal("expected no transfer to be persisted")
	}
}

func TestCreateSimpleTransfer_RejectsMissingDestination(t *testing.T) {
	userID := uuid.New()
	repo := &createRepoStub{account: newTestAccount(userID, "1000")}
	svc := NewService(repo, &publisherStub{}, 0)

	_, err := svc.CreateSimpleTransfer(context.Background(), userID, repo.account.ID, "   ", decimal.RequireFromString("10"), "")
	if !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("expected ErrInvalidDestination, got %v", err)
	}
}

func TestCreateSimpleTransfer_InsufficientFundsPersistsNothing(t *testing.T) {
	userID := uuid.New()
	repo := &createRepoStub{account: newTestAccount(userID, "10.00")}
	svc := NewService(repo, &publisherStub{}, 0)

	_, err := svc.CreateSimpleTransfer(context.Background(), userID, repo.account.ID, "9876543210", decimal.RequireFromString("25.00"), "")
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if repo.createdTransfer != nil {
		t.Fatal("expected no transfer to be persisted on insufficient funds")
	}
	if repo.codeSet != "" {
		t.Fatal("expected no verification code to be issued")
	}
}

func TestCreateSimpleTransfer_CreatesPendingWithCode(t *testing.T) {
	userID := uuid.New()
	repo := &createRepoStub{account: newTestAccount(userID, "1000")}
	events := &publisherStub{}
	svc := NewService(repo, events, 0)

	transfer, err := svc.CreateSimpleTransfer(context.Background(), userID, repo.account.ID, "9876543210", decimal.RequireFromString("250.75"), "rent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transfer.Status != domain.TransferStatusPending {
		t.Fatalf("expected pending status, got %s", transfer.Status)
	}
	if transfer.Kind != domain.TransferKindSimple {
		t.Fatalf("expected simple kind, got %s", transfer.Kind)
	}
	if transfer.Currency != "NGN" {
		t.Fatalf("expected currency from source account, got %s", transfer.Currency)
	}
	if len(repo.codeSet) != 6 || strings.Trim(repo.codeSet, "0123456789") != "" {
		t.Fatalf("expected a 6-digit numeric code, got %q", repo.codeSet)
	}
	ttl := time.Until(repo.codeExpiresAt)
	if ttl < 29*time.Minute || ttl > 31*time.Minute {
		t.Fatalf("expected default 30 minute code ttl, got %s", ttl)
	}
	if events.countByRoutingKey("transfer.verification.code") != 1 {
		t.Fatalf("expected one verification code event, got %d", events.countByRoutingKey("transfer.verification.code"))
	}
}

func TestCreateSimpleTransfer_RejectsInternalCurrencyMismatch(t *testing.T) {
	userID := uuid.New()
	repo := &createRepoStub{account: newTestAccount(userID, "1000")}
	repo.destAccount = &domain.Account{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		AccountNumber: "9876543210",
		Currency:      "USD",
		Balance:       decimal.Zero,
	}
	svc := NewService(repo, &publisherStub{}, 0)

	_, err := svc.CreateSimpleTransfer(context.Background(), userID, repo.account.ID, "9876543210", decimal.RequireFromString("100"), "")
	if !errors.Is(err, store.ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
	if repo.createdTransfer != nil {
		t.Fatal("expected no transfer to be persisted on a currency mismatch")
	}
}

func TestCreateSimpleTransfer_OtherUsersAccountIsNotFound(t *testing.T) {
	owner := uuid.New()
	repo := &createRepoStub{account: newTestAccount(owner, "1000")}
	svc := NewService(repo, &publisherStub{}, 0)

	_, err := svc.CreateSimpleTransfer(context.Background(), uuid.New(), repo.account.ID, "9876543210", decimal.RequireFromString("10"), "")
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound for another user's account, got %v", err)
	}
}

func TestCreateBulkTransfer_SumsBeneficiaries(t *testing.T) {
	userID := uuid.New()
	repo := &createRepoStub{account: newTestAccount(userID, "1000")}
	svc := NewService(repo, &publisherStub{}, 0)

	inputs := []domain.BeneficiaryInput{
		{Name: "Ada", AccountNumber: "1111111111", Amount: decimal.RequireFromString("100.10")},
		{Name: "Bayo", AccountNumber: "2222222222", Amount: decimal.RequireFromString("200.20")},
		{Name: "Chidi", AccountNumber: "3333333333", Amount: decimal.RequireFromString("0.03")},
	}
	transfer, err := svc.CreateBulkTransfer(context.Background(), userID, repo.account.ID, inputs, "salaries")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !transfer.Amount.Equal(decimal.RequireFromString("300.33")) {
		t.Fatalf("expected total 300.33, got %s", transfer.Amount)
	}
	if len(transfer.Beneficiaries) != 3 {
		t.Fatalf("expected 3 beneficiaries, got %d", len(transfer.Beneficiaries))
	}
	for i, b := range transfer.Beneficiaries {
		if b.TransferID != transfer.ID {
			t.Fatalf("beneficiary %d not linked to transfer", i)
		}
		if b.Position != i {
			t.Fatalf("beneficiary %d has position %d", i, b.Position)
		}
		if b.Status != domain.BeneficiaryStatusPending {
			t.Fatalf("beneficiary %d expected pending status, got %s", i, b.Status)
		}
	}
}

func TestCreateBulkTransfer_RejectsInvalidBeneficiary(t *testing.T) {
	userID := uuid.New()
	repo := &createRepoStub{account: newTestAccount(userID, "1000")}
	svc := NewService(repo, &publisherStub{}, 0)

	inputs := []domain.BeneficiaryInput{
		{Name: "Ada", AccountNumber: "1111111111", Amount: decimal.RequireFromString("100")},
		{Name: "", AccountNumber: "2222222222", Amount: decimal.RequireFromString("50")},
	}
	_, err := svc.CreateBulkTransfer(context.Background(), userID, repo.account.ID, inputs, "")
	if !errors.Is(err, ErrInvalidBeneficiary) {
		t.Fatalf("expected ErrInvalidBeneficiary, got %v", err)
	}
	if !strings.Contains(err.Error(), "beneficiary 2") {
		t.Fatalf("expected the error to name the offending beneficiary, got %q", err.Error())
	}
}

func TestCreateBulkTransfer_RejectsEmptyBeneficiaryList(t *testing.T) {
	svc := NewService(&createRepoStub{}, &publisherStub{}, 0)

	_, err := svc.CreateBulkTransfer(context.Background(), uuid.New(), uuid.New(), nil, "")
	if !errors.Is(err, ErrNoBeneficiaries) {
		t.Fatalf("expected ErrNoBeneficiaries, got %v", err)
	}
}

func TestCreateRecurringTransfer_RejectsBadSchedule(t *testing.T) {
	userID := uuid.New()
	repo := &createRepoStub{account: newTestAccount(userID, "1000")}
	svc := NewService(repo, &publisherStub{}, 0)
	amount := decimal.RequireFromString("50")
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.CreateRecurringTransfer(context.Background(), userID, repo.account.ID, "9876543210", amount, "fortnightly", start, nil, "")
	if !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}

	_, err = svc.CreateRecurringTransfer(context.Background(), userID, repo.account.ID, "9876543210", amount, domain.FrequencyMonthly, start, nil, "")
	if err != nil {
		t.Fatalf("unexpected error for valid schedule: %v", err)
	}

	end := start.AddDate(0, 0, -1)
	_, err = svc.CreateRecurringTransfer(context.Background(), userID, repo.account.ID, "9876543210", amount, domain.FrequencyMonthly, start, &end, "")
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for end before start, got %v", err)
	}

	_, err = svc.CreateRecurringTransfer(context.Background(), userID, repo.account.ID, "9876543210", amount, domain.FrequencyMonthly, time.Time{}, nil, "")
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for zero start date, got %v", err)
	}
}

func TestCreateRecurringTransfer_CreatesPendingSchedule(t *testing.T) {
	userID := uuid.New()
	repo := &createRepoStub{account: newTestAccount(userID, "1000")}
	svc := NewService(repo, &publisherStub{}, 0)
	start := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	transfer, err := svc.CreateRecurringTransfer(context.Background(), userID, repo.account.ID, "9876543210", decimal.RequireFromString("50"), domain.FrequencyWeekly, start, nil, "allowance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transfer.Status != domain.TransferStatusPending {
		t.Fatalf("expected pending status, got %s", transfer.Status)
	}
	if transfer.Frequency == nil || *transfer.Frequency != domain.FrequencyWeekly {
		t.Fatalf("expected weekly frequency, got %v", transfer.Frequency)
	}
	if transfer.NextExecution != nil {
		t.Fatal("expected next execution to stay unset until verification")
	}
}

type verifyRepoStub struct {
	store.Repository

	transfer   *domain.Transfer
	consumeErr error

	consumeCalled bool
	settleCalled  int
	activatedNext *time.Time
	updatedStatus string
	updatedReason *string
	codeSet       string
	settleOutcome *store.SettlementOutcome
	settleErr     error
	bulkOutcome   *store.BulkSettlementOutcome
	bulkSettleErr error
	bulkSettled   int
}

func (s *verifyRepoStub) FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error) {
	if s.transfer == nil || s.transfer.ID != transferID {
		return nil, store.ErrTransferNotFound
	}
	return s.transfer, nil
}

func (s *verifyRepoStub) ConsumeVerificationCode(ctx context.Context, transferID uuid.UUID, code string) error {
	s.consumeCalled = true
	return s.consumeErr
}

func (s *verifyRepoStub) SettleSimpleTransfer(ctx context.Context, transfer *domain.Transfer) (*store.SettlementOutcome, error) {
	s.settleCalled++
	if s.settleErr != nil {
		return nil, s.settleErr
	}
	if s.settleOutcome != nil {
		return s.settleOutcome, nil
	}
	return &store.SettlementOutcome{}, nil
}

func (s *verifyRepoStub) SettleBulkTransfer(ctx context.Context, transfer *domain.Transfer) (*store.BulkSettlementOutcome, error) {
	s.bulkSettled++
	if s.bulkSettleErr != nil {
		return nil, s.bulkSettleErr
	}
	if s.bulkOutcome != nil {
		return s.bulkOutcome, nil
	}
	return &store.BulkSettlementOutcome{}, nil
}

func (s *verifyRepoStub) ActivateRecurringTransfer(ctx context.Context, transferID uuid.UUID, nextExecution time.Time) error {
	s.activatedNext = &nextExecution
	return nil
}

func (s *verifyRepoStub) UpdateTransferStatus(ctx context.Context, transferID uuid.UUID, status string, failureReason *string) error {
	s.updatedStatus = status
	s.updatedReason = failureReason
	return nil
}

func (s *verifyRepoStub) SetVerificationCode(ctx context.Context, transferID uuid.UUID, code string, expiresAt time.Time) error {
	s.codeSet = code
	return nil
}

func pendingSimpleTransfer(userID uuid.UUID) *domain.Transfer {
	return &domain.Transfer{
		ID:                       uuid.New(),
		UserID:                   userID,
		SourceAccountID:          uuid.New(),
		DestinationAccountNumber: "9876543210",
		Amount:                   decimal.RequireFromString("100"),
		Currency:                 "NGN",
		Kind:                     domain.TransferKindSimple,
		Status:                   domain.TransferStatusPending,
	}
}

func TestVerifyTransfer_InvalidCodeDoesNotSettle(t *testing.T) {
	userID := uuid.New()
	repo := &verifyRepoStub{transfer: pendingSimpleTransfer(userID), consumeErr: store.ErrCodeInvalid}
	svc := NewService(repo, &publisherStub{}, 0)

	err := svc.VerifyTransfer(context.Background(), userID, repo.transfer.ID, "000000")
	if !errors.Is(err, store.ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
	if repo.settleCalled != 0 {
		t.Fatal("expected no settlement on invalid code")
	}
}

func TestVerifyTransfer_ExpiredCodeLeavesTransferPending(t *testing.T) {
	userID := uuid.New()
	repo := &verifyRepoStub{transfer: pendingSimpleTransfer(userID), consumeErr: store.ErrCodeExpired}
	svc := NewService(repo, &publisherStub{}, 0)

	err := svc.VerifyTransfer(context.Background(), userID, repo.transfer.ID, "123456")
	if !errors.Is(err, store.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
	if repo.settleCalled != 0 {
		t.Fatal("expected no settlement on an expired code")
	}
	if repo.transfer.Status != domain.TransferStatusPending {
		t.Fatalf("expected the transfer to stay pending, got %s", repo.transfer.Status)
	}
	if repo.transfer.IsVerified {
		t.Fatal("expected is_verified to stay false")
	}
}

func TestVerifyTransfer_SecondAttemptIsRejected(t *testing.T) {
	userID := uuid.New()
	repo := &verifyRepoStub{transfer: pendingSimpleTransfer(userID), consumeErr: store.ErrAlreadyVerified}
	svc := NewService(repo, &publisherStub{}, 0)

	err := svc.VerifyTransfer(context.Background(), userID, repo.transfer.ID, "123456")
	if !errors.Is(err, store.ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
	if repo.settleCalled != 0 {
		t.Fatal("expected no second settlement")
	}
}

func TestVerifyTransfer_TerminalTransferIsRejected(t *testing.T) {
	userID := uuid.New()
	transfer := pendingSimpleTransfer(userID)
	transfer.Status = domain.TransferStatusCompleted
	repo := &verifyRepoStub{transfer: transfer}
	svc := NewService(repo, &publisherStub{}, 0)

	err := svc.VerifyTransfer(context.Background(), userID, transfer.ID, "123456")
	if !errors.Is(err, ErrTransferTerminal) {
		t.Fatalf("expected ErrTransferTerminal, got %v", err)
	}
	if repo.consumeCalled {
		t.Fatal("expected the code not to be consumed for a terminal transfer")
	}
}

func TestVerifyTransfer_SimpleSettlesExactlyOnce(t *testing.T) {
	userID := uuid.New()
	repo := &verifyRepoStub{transfer: pendingSimpleTransfer(userID)}
	svc := NewService(repo, &publisherStub{}, 0)

	if err := svc.VerifyTransfer(context.Background(), userID, repo.transfer.ID, "123456"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.settleCalled != 1 {
		t.Fatalf("expected exactly one settlement, got %d", repo.settleCalled)
	}
	if repo.transfer.Status != domain.TransferStatusCompleted {
		t.Fatalf("expected completed status, got %s", repo.transfer.Status)
	}
}

func TestVerifyTransfer_RecurringActivatesSchedule(t *testing.T) {
	userID := uuid.New()
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	frequency := domain.FrequencyMonthly
	transfer := pendingSimpleTransfer(userID)
	transfer.Kind = domain.TransferKindRecurring
	transfer.Frequency = &frequency
	transfer.StartDate = &start

	repo := &verifyRepoStub{transfer: transfer}
	events := &publisherStub{}
	svc := NewService(repo, events, 0)

	if err := svc.VerifyTransfer(context.Background(), userID, transfer.ID, "123456"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.activatedNext == nil || !repo.activatedNext.Equal(start) {
		t.Fatalf("expected schedule activated at start date, got %v", repo.activatedNext)
	}
	if repo.settleCalled != 0 {
		t.Fatal("expected no immediate settlement for a recurring transfer")
	}
	if events.countByRoutingKey("transfer.notification") != 1 {
		t.Fatalf("expected one activation notification, got %d", events.countByRoutingKey("transfer.notification"))
	}
}

type fixedRateLimiter struct {
	count int
	err   error
}

func (l *fixedRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, 1, l.err
}

func TestVerifyTransfer_RateLimited(t *testing.T) {
	userID := uuid.New()
	repo := &verifyRepoStub{transfer: pendingSimpleTransfer(userID)}
	svc := NewService(repo, &publisherStub{}, 0)
	svc.SetVerifyRateLimiter(&fixedRateLimiter{count: 11}, 10)

	err := svc.VerifyTransfer(context.Background(), userID, repo.transfer.ID, "123456")
	if !errors.Is(err, ErrVerifyRateLimited) {
		t.Fatalf("expected ErrVerifyRateLimited, got %v", err)
	}
	if repo.consumeCalled {
		t.Fatal("expected the code not to be consumed when rate limited")
	}
}

func TestVerifyTransfer_LimiterOutageFailsOpen(t *testing.T) {
	userID := uuid.New()
	repo := &verifyRepoStub{transfer: pendingSimpleTransfer(userID)}
	svc := NewService(repo, &publisherStub{}, 0)
	svc.SetVerifyRateLimiter(&fixedRateLimiter{err: errors.New("redis down")}, 10)

	if err := svc.VerifyTransfer(context.Background(), userID, repo.transfer.ID, "123456"); err != nil {
		t.Fatalf("expected verification to proceed despite limiter outage, got %v", err)
	}
	if repo.settleCalled != 1 {
		t.Fatal("expected settlement to run")
	}
}

func TestResendVerificationCode_OnlyForPendingTransfers(t *testing.T) {
	userID := uuid.New()
	transfer := pendingSimpleTransfer(userID)
	transfer.IsVerified = true
	repo := &verifyRepoStub{transfer: transfer}
	svc := NewService(repo, &publisherStub{}, 0)

	err := svc.ResendVerificationCode(context.Background(), userID, transfer.ID)
	if !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending for a verified transfer, got %v", err)
	}

	transfer.IsVerified = false
	if err := svc.ResendVerificationCode(context.Background(), userID, transfer.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.codeSet) != 6 {
		t.Fatalf("expected a fresh 6-digit code, got %q", repo.codeSet)
	}
}

func TestCancelRecurringTransfer(t *testing.T) {
	userID := uuid.New()
	frequency := domain.FrequencyMonthly

	t.Run("simple transfers cannot be cancelled", func(t *testing.T) {
		repo := &verifyRepoStub{transfer: pendingSimpleTransfer(userID)}
		svc := NewService(repo, &publisherStub{}, 0)
		err := svc.CancelRecurringTransfer(context.Background(), userID, repo.transfer.ID)
		if !errors.Is(err, ErrNotRecurring) {
			t.Fatalf("expected ErrNotRecurring, got %v", err)
		}
	})

	t.Run("terminal transfers cannot be cancelled", func(t *testing.T) {
		transfer := pendingSimpleTransfer(userID)
		transfer.Kind = domain.TransferKindRecurring
		transfer.Frequency = &frequency
		transfer.Status = domain.TransferStatusCancelled
		repo := &verifyRepoStub{transfer: transfer}
		svc := NewService(repo, &publisherStub{}, 0)
		err := svc.CancelRecurringTransfer(context.Background(), userID, transfer.ID)
		if !errors.Is(err, ErrTransferTerminal) {
			t.Fatalf("expected ErrTransferTerminal, got %v", err)
		}
	})

	t.Run("active schedule is cancelled and the user notified", func(t *testing.T) {
		transfer := pendingSimpleTransfer(userID)
		transfer.Kind = domain.TransferKindRecurring
		transfer.Frequency = &frequency
		transfer.Status = domain.TransferStatusActive
		repo := &verifyRepoStub{transfer: transfer}
		events := &publisherStub{}
		svc := NewService(repo, events, 0)
		if err := svc.CancelRecurringTransfer(context.Background(), userID, transfer.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if repo.updatedStatus != domain.TransferStatusCancelled {
			t.Fatalf("expected cancelled status, got %q", repo.updatedStatus)
		}
		if events.countByRoutingKey("transfer.notification") != 1 {
			t.Fatalf("expected one cancellation notification, got %d", events.countByRoutingKey("transfer.notification"))
		}
	})
}

func TestOverrideTransferStatus(t *testing.T) {
	userID := uuid.New()

	t.Run("rejects unknown status", func(t *testing.T) {
		repo := &verifyRepoStub{transfer: pendingSimpleTransfer(userID)}
		svc := NewService(repo, &publisherStub{}, 0)
		err := svc.OverrideTransferStatus(context.Background(), repo.transfer.ID, "reversed", "")
		if !errors.Is(err, ErrInvalidStatus) {
			t.Fatalf("expected ErrInvalidStatus, got %v", err)
		}
	})

	t.Run("updates status with reason and notifies the initiator", func(t *testing.T) {
		repo := &verifyRepoStub{transfer: pendingSimpleTransfer(userID)}
		events := &publisherStub{}
		svc := NewService(repo, events, 0)
		if err := svc.OverrideTransferStatus(context.Background(), repo.transfer.ID, domain.TransferStatusFailed, "chargeback"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if repo.updatedStatus != domain.TransferStatusFailed {
			t.Fatalf("expected failed status, got %q", repo.updatedStatus)
		}
		if repo.updatedReason == nil || *repo.updatedReason != "chargeback" {
			t.Fatalf("expected reason to be recorded, got %v", repo.updatedReason)
		}
		if events.countByRoutingKey("transfer.notification") != 1 {
			t.Fatalf("expected one notification, got %d", events.countByRoutingKey("transfer.notification"))
		}
	})
}
