/**
 * @description
 * Scheduled job implementations for the transfer-service. The recurring
 * transfer job drives periodic replay of active recurring transfers through
 * the settlement path.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/transfer-service/internal/domain"
	"github.com/transfa/transfer-service/internal/store"
	"github.com/transfa/transfer-service/pkg/rabbitmq"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo   store.Repository
	events rabbitmq.Publisher
	logger *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo store.Repository, events rabbitmq.Publisher, logger *slog.Logger) *Jobs {
	return &Jobs{
		repo:   repo,
		events: events,
		logger: logger,
	}
}

// ProcessRecurringTransfers is the daily tick of the recurrence scheduler. It
// selects every active, verified recurring transfer whose next execution date
// has been reached and processes each one independently: one transfer's
// missing account or empty balance never aborts the rest of the batch.
func (j *Jobs) ProcessRecurringTransfers() {
	j.logger.Info("starting recurring transfer job")
	ctx := context.Background()
	now := time.Now().UTC()

	due, err := j.repo.FindDueRecurringTransfers(ctx, now)
	if err != nil {
		j.logger.Error("failed to load due recurring transfers", "error", err)
		return
	}
	if len(due) == 0 {
		j.logger.Info("no recurring transfers due")
		return
	}
	j.logger.Info("found due recurring transfers", "count", len(due))

	for i := range due {
		j.processDueTransfer(ctx, &due[i], now)
	}

	j.logger.Info("recurring transfer job finished")
}

// processDueTransfer runs one cycle for one due transfer. The cycle is claimed
// (next_execution advanced with a compare-and-swap) before any money moves, so
// an overlapping scheduler run cannot execute the same cycle twice; a skipped
// cycle leaves the schedule advanced, which is exactly the catch-up semantics
// for a temporarily underfunded account.
func (j *Jobs) processDueTransfer(ctx context.Context, transfer *domain.Transfer, now time.Time) {
	logger := j.logger.With("transfer_id", transfer.ID, "user_id", transfer.UserID)

	if transfer.Frequency == nil || transfer.NextExecution == nil {
		logger.Error("recurring transfer missing schedule fields; skipping")
		return
	}

	// End of schedule: the transfer has run its course.
	if transfer.EndDate != nil && dateOnly(*transfer.EndDate).Before(dateOnly(now)) {
		if err := j.repo.UpdateTransferStatus(ctx, transfer.ID, domain.TransferStatusCompleted, nil); err != nil {
			logger.Error("failed to complete ended recurring transfer", "error", err)
			return
		}
		j.notify(ctx, transfer.UserID, "Recurring transfer completed",
			fmt.Sprintf("Your recurring transfer of %s %s has reached its end date.",
				transfer.Amount.StringFixed(2), transfer.Currency),
			transfer.ID)
		logger.Info("recurring transfer reached end date")
		return
	}

	// A vanished source account is skipped without touching the schedule; it
	// will be retried on the next tick.
	if _, err := j.repo.FindAccountByID(ctx, transfer.SourceAccountID); err != nil {
		logger.Error("source account unavailable; skipping cycle", "error", err)
		return
	}

	next := domain.NextExecution(*transfer.NextExecution, *transfer.Frequency)
	if err := j.repo.ClaimRecurringCycle(ctx, transfer.ID, *transfer.NextExecution, next); err != nil {
		if errors.Is(err, store.ErrCycleAlreadyClaimed) {
			logger.Info("cycle already claimed by another run")
		} else {
			logger.Error("failed to claim recurring cycle", "error", err)
		}
		return
	}

	outcome, err := j.repo.ExecuteRecurringCycle(ctx, transfer, now)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			// Per-cycle failure, not fatal: the claim above already advanced
			// the schedule, last_executed stays untouched and the transfer
			// remains active.
			logger.Warn("cycle skipped: insufficient funds", "next_execution", next)
			j.notify(ctx, transfer.UserID, "Recurring transfer skipped",
				fmt.Sprintf("Your recurring transfer of %s %s was skipped due to insufficient funds. The next attempt is on %s.",
					transfer.Amount.StringFixed(2), transfer.Currency, next.Format("2006-01-02")),
				transfer.ID)
			return
		}
		// The claim already advanced the schedule, so a failed execution is a
		// skipped cycle like the underfunded case and the user hears about it.
		logger.Error("cycle execution failed", "error", err)
		j.notify(ctx, transfer.UserID, "Recurring transfer skipped",
			fmt.Sprintf("Your recurring transfer of %s %s could not be executed this cycle. The next attempt is on %s.",
				transfer.Amount.StringFixed(2), transfer.Currency, next.Format("2006-01-02")),
			transfer.ID)
		return
	}

	logger.Info("recurring cycle executed", "next_execution", next)
	j.notify(ctx, transfer.UserID, "Recurring transfer executed",
		fmt.Sprintf("Your recurring transfer of %s %s to %s has been executed.",
			transfer.Amount.StringFixed(2), transfer.Currency, transfer.DestinationAccountNumber),
		transfer.ID)
	if outcome.DestinationInternal {
		j.notify(ctx, outcome.DestinationUserID, "Transfer received",
			fmt.Sprintf("You received %s %s.", transfer.Amount.StringFixed(2), transfer.Currency),
			transfer.ID)
	}
}

// notify publishes a fire-and-forget user notification from a scheduled job.
func (j *Jobs) notify(ctx context.Context, userID uuid.UUID, title, message string, transferID uuid.UUID) {
	if j.events == nil {
		return
	}
	event := rabbitmq.TransferNotificationEvent{
		UserID:     userID,
		Title:      title,
		Message:    message,
		TransferID: transferID,
		Timestamp:  time.Now().UTC(),
	}
	if err := j.events.Publish(ctx, EventsExchange, "transfer.notification", event); err != nil {
		j.logger.Warn("notification publish failed", "user_id", userID, "transfer_id", transferID, "error", err)
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
