/**
 * @description
 * Settlement engine glue: the store executes the money movement in one database
 * transaction; this file owns the surrounding lifecycle — marking a transfer
 * failed when the settlement-time balance re-check rejects it, and emitting the
 * notification requests for each party involved.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/transfa/transfer-service/internal/domain"
	"github.com/transfa/transfer-service/internal/store"
)

// settleSimple executes a verified simple transfer. On insufficient funds at
// settlement time the transfer is marked failed and nothing is debited; the
// sender is notified either way. The recipient is notified only when the
// destination resolved to an internal account.
func (s *Service) settleSimple(ctx context.Context, transfer *domain.Transfer) error {
	outcome, err := s.repo.SettleSimpleTransfer(ctx, transfer)
	if err != nil {
		return s.handleSettlementFailure(ctx, transfer, err)
	}
	transfer.Status = domain.TransferStatusCompleted

	s.notify(ctx, transfer.UserID, "Transfer completed",
		fmt.Sprintf("Your transfer of %s %s to %s has been completed.",
			transfer.Amount.StringFixed(2), transfer.Currency, transfer.DestinationAccountNumber),
		transfer.ID)
	if outcome.DestinationInternal {
		s.notify(ctx, outcome.DestinationUserID, "Transfer received",
			fmt.Sprintf("You received %s %s.", transfer.Amount.StringFixed(2), transfer.Currency),
			transfer.ID)
	}
	return nil
}

// settleBulk executes a verified bulk transfer. The batch is atomic: either the
// source is debited once for the total and every beneficiary settles, or
// nothing moves and the transfer is marked failed.
func (s *Service) settleBulk(ctx context.Context, transfer *domain.Transfer) error {
	outcome, err := s.repo.SettleBulkTransfer(ctx, transfer)
	if err != nil {
		return s.handleSettlementFailure(ctx, transfer, err)
	}
	transfer.Status = domain.TransferStatusCompleted

	s.notify(ctx, transfer.UserID, "Bulk transfer completed",
		fmt.Sprintf("Your bulk transfer of %s %s to %d beneficiaries has been completed.",
			transfer.Amount.StringFixed(2), transfer.Currency, len(transfer.Beneficiaries)),
		transfer.ID)
	for _, b := range outcome.Beneficiaries {
		if !b.Internal {
			log.Printf("level=info component=app msg=\"bulk beneficiary settled externally\" transfer_id=%s account_number=%s", transfer.ID, b.AccountNumber)
			continue
		}
		s.notify(ctx, b.DestinationUserID, "Transfer received",
			fmt.Sprintf("You received %s %s.", b.Amount.StringFixed(2), transfer.Currency),
			transfer.ID)
	}
	return nil
}

// handleSettlementFailure maps a rejected settlement to the failed terminal
// status. Only settlement rejections (insufficient funds, vanished source
// account, cross-currency destination) fail the transfer; infrastructure
// errors are propagated without a status change so the transfer stays
// verifiable state-wise consistent.
func (s *Service) handleSettlementFailure(ctx context.Context, transfer *domain.Transfer, err error) error {
	if !errors.Is(err, store.ErrInsufficientFunds) && !errors.Is(err, store.ErrAccountNotFound) && !errors.Is(err, store.ErrCurrencyMismatch) {
		return fmt.Errorf("settlement failed: %w", err)
	}

	reason := err.Error()
	if uErr := s.repo.UpdateTransferStatus(ctx, transfer.ID, domain.TransferStatusFailed, &reason); uErr != nil {
		log.Printf("level=error component=app msg=\"failed to mark transfer failed\" transfer_id=%s err=%v", transfer.ID, uErr)
	}
	transfer.Status = domain.TransferStatusFailed

	s.notify(ctx, transfer.UserID, "Transfer failed",
		fmt.Sprintf("Your transfer of %s %s could not be completed: %s.",
			transfer.Amount.StringFixed(2), transfer.Currency, reason),
		transfer.ID)
	return err
}
