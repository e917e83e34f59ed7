package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/transfer-service/internal/domain"
	"github.com/transfa/transfer-service/internal/store"
)

func TestSettleSimple_InternalDestinationNotifiesBothParties(t *testing.T) {
	sender := uuid.New()
	recipient := uuid.New()
	repo := &verifyRepoStub{
		transfer: pendingSimpleTransfer(sender),
		settleOutcome: &store.SettlementOutcome{
			DestinationInternal:  true,
			DestinationAccountID: uuid.New(),
			DestinationUserID:    recipient,
		},
	}
	events := &publisherStub{}
	svc := NewService(repo, events, 0)

	if err := svc.VerifyTransfer(context.Background(), sender, repo.transfer.ID, "123456"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := events.countByRoutingKey("transfer.notification"); got != 2 {
		t.Fatalf("expected sender and recipient notifications, got %d", got)
	}
}

func TestSettleSimple_ExternalDestinationNotifiesOnlySender(t *testing.T) {
	sender := uuid.New()
	repo := &verifyRepoStub{
		transfer:      pendingSimpleTransfer(sender),
		settleOutcome: &store.SettlementOutcome{DestinationInternal: false},
	}
	events := &publisherStub{}
	svc := NewService(repo, events, 0)

	if err := svc.VerifyTransfer(context.Background(), sender, repo.transfer.ID, "123456"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := events.countByRoutingKey("transfer.notification"); got != 1 {
		t.Fatalf("expected only the sender notification, got %d", got)
	}
}

func TestSettleSimple_InsufficientFundsMarksFailed(t *testing.T) {
	sender := uuid.New()
	repo := &verifyRepoStub{
		transfer:  pendingSimpleTransfer(sender),
		settleErr: store.ErrInsufficientFunds,
	}
	events := &publisherStub{}
	svc := NewService(repo, events, 0)

	err := svc.VerifyTransfer(context.Background(), sender, repo.transfer.ID, "123456")
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if repo.updatedStatus != domain.TransferStatusFailed {
		t.Fatalf("expected failed status, got %q", repo.updatedStatus)
	}
	if repo.updatedReason == nil || *repo.updatedReason == "" {
		t.Fatal("expected a failure reason to be recorded")
	}
	if got := events.countByRoutingKey("transfer.notification"); got != 1 {
		t.Fatalf("expected a failure notification, got %d", got)
	}
}

func TestSettleSimple_CurrencyMismatchMarksFailed(t *testing.T) {
	sender := uuid.New()
	repo := &verifyRepoStub{
		transfer:  pendingSimpleTransfer(sender),
		settleErr: store.ErrCurrencyMismatch,
	}
	events := &publisherStub{}
	svc := NewService(repo, events, 0)

	err := svc.VerifyTransfer(context.Background(), sender, repo.transfer.ID, "123456")
	if !errors.Is(err, store.ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
	if repo.updatedStatus != domain.TransferStatusFailed {
		t.Fatalf("expected failed status, got %q", repo.updatedStatus)
	}
	if got := events.countByRoutingKey("transfer.notification"); got != 1 {
		t.Fatalf("expected a failure notification, got %d", got)
	}
}

func TestSettleBulk_CurrencyMismatchMarksFailed(t *testing.T) {
	sender := uuid.New()
	transfer := pendingSimpleTransfer(sender)
	transfer.Kind = domain.TransferKindBulk

	repo := &verifyRepoStub{transfer: transfer, bulkSettleErr: store.ErrCurrencyMismatch}
	svc := NewService(repo, &publisherStub{}, 0)

	err := svc.VerifyTransfer(context.Background(), sender, transfer.ID, "123456")
	if !errors.Is(err, store.ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
	if repo.updatedStatus != domain.TransferStatusFailed {
		t.Fatalf("expected failed status, got %q", repo.updatedStatus)
	}
}

func TestSettleSimple_InfrastructureErrorLeavesStatusUntouched(t *testing.T) {
	sender := uuid.New()
	repo := &verifyRepoStub{
		transfer:  pendingSimpleTransfer(sender),
		settleErr: errors.New("connection reset"),
	}
	svc := NewService(repo, &publisherStub{}, 0)

	err := svc.VerifyTransfer(context.Background(), sender, repo.transfer.ID, "123456")
	if err == nil {
		t.Fatal("expected the infrastructure error to propagate")
	}
	if repo.updatedStatus != "" {
		t.Fatalf("expected no status change on infrastructure error, got %q", repo.updatedStatus)
	}
}

func TestSettleBulk_NotifiesInternalBeneficiaries(t *testing.T) {
	sender := uuid.New()
	internalUser := uuid.New()
	transfer := pendingSimpleTransfer(sender)
	transfer.Kind = domain.TransferKindBulk
	transfer.Beneficiaries = []domain.Beneficiary{
		{ID: uuid.New(), TransferID: transfer.ID, Name: "Ada", AccountNumber: "1111111111", Amount: decimal.RequireFromString("60")},
		{ID: uuid.New(), TransferID: transfer.ID, Name: "Bayo", AccountNumber: "2222222222", Amount: decimal.RequireFromString("40")},
	}

	repo := &verifyRepoStub{
		transfer: transfer,
		bulkOutcome: &store.BulkSettlementOutcome{
			Beneficiaries: []store.BeneficiarySettlement{
				{BeneficiaryID: transfer.Beneficiaries[0].ID, AccountNumber: "1111111111", Amount: decimal.RequireFromString("60"), Internal: true, DestinationUserID: internalUser},
				{BeneficiaryID: transfer.Beneficiaries[1].ID, AccountNumber: "2222222222", Amount: decimal.RequireFromString("40"), Internal: false},
			},
		},
	}
	events := &publisherStub{}
	svc := NewService(repo, events, 0)

	if err := svc.VerifyTransfer(context.Background(), sender, transfer.ID, "123456"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.bulkSettled != 1 {
		t.Fatalf("expected exactly one bulk settlement, got %d", repo.bulkSettled)
	}
	// Sender summary plus the one internal beneficiary.
	if got := events.countByRoutingKey("transfer.notification"); got != 2 {
		t.Fatalf("expected 2 notifications, got %d", got)
	}
	if transfer.Status != domain.TransferStatusCompleted {
		t.Fatalf("expected completed status, got %s", transfer.Status)
	}
}

func TestSettleBulk_RejectedBatchFailsAtomically(t *testing.T) {
	sender := uuid.New()
	transfer := pendingSimpleTransfer(sender)
	transfer.Kind = domain.TransferKindBulk

	repo := &verifyRepoStub{transfer: transfer, bulkSettleErr: store.ErrInsufficientFunds}
	svc := NewService(repo, &publisherStub{}, 0)

	err := svc.VerifyTransfer(context.Background(), sender, transfer.ID, "123456")
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if repo.updatedStatus != domain.TransferStatusFailed {
		t.Fatalf("expected failed status, got %q", repo.updatedStatus)
	}
}
