/**
 * @description
 * This file contains the HTTP handlers for the transfer-service's API
 * endpoints. Handlers parse incoming requests, call the appropriate methods on
 * the application service, and write the HTTP response. They act as the bridge
 * between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - github.com/shopspring/decimal: Money amounts in request bodies.
 * - internal/app, internal/domain, internal/store: Service logic, models, errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/transfer-service/internal/app"
	"github.com/transfa/transfer-service/internal/domain"
	"github.com/transfa/transfer-service/internal/store"
)

// TransferHandlers holds the application service that handlers will use.
type TransferHandlers struct {
	service *app.Service
}

// NewTransferHandlers creates a new instance of TransferHandlers.
func NewTransferHandlers(service *app.Service) *TransferHandlers {
	return &TransferHandlers{service: service}
}

type simpleTransferRequest struct {
	SourceAccountID          uuid.UUID       `json:"source_account_id"`
	DestinationAccountNumber string          `json:"destination_account_number"`
	Amount                   decimal.Decimal `json:"amount"`
	Description              string          `json:"description"`
}

type bulkTransferRequest struct {
	SourceAccountID uuid.UUID                 `json:"source_account_id"`
	Beneficiaries   []domain.BeneficiaryInput `json:"beneficiaries"`
	Description     string                    `json:"description"`
}

type recurringTransferRequest struct {
	SourceAccountID          uuid.UUID       `json:"source_account_id"`
	DestinationAccountNumber string          `json:"destination_account_number"`
	Amount                   decimal.Decimal `json:"amount"`
	Frequency                string          `json:"frequency"`
	StartDate                time.Time       `json:"start_date"`
	EndDate                  *time.Time      `json:"end_date,omitempty"`
	Description              string          `json:"description"`
}

type verifyTransferRequest struct {
	Code string `json:"code"`
}

type statusOverrideRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// transferCreatedResponse is returned after a transfer request has been
// accepted. The transfer sits in pending until its verification code is
// confirmed, so the message tells the client what to do next.
type transferCreatedResponse struct {
	Transfer *domain.Transfer `json:"transfer"`
	Message  string           `json:"message"`
}

// authUserUUID pulls the authenticated subject out of the context and parses
// it as the internal user UUID. A failure here means the auth middleware did
// not run or the token subject is not one of ours.
func (h *TransferHandlers) authUserUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=invalid_user_id user_id=%s", userIDStr)
		h.writeError(w, http.StatusUnauthorized, "Invalid user identity")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *TransferHandlers) transferIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer ID")
		return uuid.Nil, false
	}
	return id, true
}

// SimpleTransferHandler handles requests for one-off transfers.
func (h *TransferHandlers) SimpleTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserUUID(w, r)
	if !ok {
		return
	}

	var req simpleTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	transfer, err := h.service.CreateSimpleTransfer(r.Context(), userID, req.SourceAccountID, req.DestinationAccountNumber, req.Amount, req.Description)
	if err != nil {
		h.writeServiceError(w, r, "simple_transfer", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, transferCreatedResponse{
		Transfer: transfer,
		Message:  "Transfer created. Confirm the verification code to proceed.",
	})
}

// BulkTransferHandler handles requests for one-to-many transfers.
func (h *TransferHandlers) BulkTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserUUID(w, r)
	if !ok {
		return
	}

	var req bulkTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	transfer, err := h.service.CreateBulkTransfer(r.Context(), userID, req.SourceAccountID, req.Beneficiaries, req.Description)
	if err != nil {
		h.writeServiceError(w, r, "bulk_transfer", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, transferCreatedResponse{
		Transfer: transfer,
		Message:  "Bulk transfer created. Confirm the verification code to proceed.",
	})
}

// RecurringTransferHandler handles requests to set up scheduled transfers.
func (h *TransferHandlers) RecurringTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserUUID(w, r)
	if !ok {
		return
	}

	var req recurringTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	transfer, err := h.service.CreateRecurringTransfer(r.Context(), userID, req.SourceAccountID, req.DestinationAccountNumber, req.Amount, req.Frequency, req.StartDate, req.EndDate, req.Description)
	if err != nil {
		h.writeServiceError(w, r, "recurring_transfer", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, transferCreatedResponse{
		Transfer: transfer,
		Message:  "Recurring transfer created. Confirm the verification code to activate the schedule.",
	})
}

// VerifyTransferHandler confirms the verification code for a pending transfer,
// which triggers settlement (or schedule activation for recurring transfers).
func (h *TransferHandlers) VerifyTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserUUID(w, r)
	if !ok {
		return
	}
	transferID, ok := h.transferIDParam(w, r)
	if !ok {
		return
	}

	var req verifyTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.VerifyTransfer(r.Context(), userID, transferID, req.Code); err != nil {
		h.writeServiceError(w, r, "verify_transfer", err)
		return
	}

	transfer, err := h.service.GetTransfer(r.Context(), userID, transferID)
	if err != nil {
		h.writeServiceError(w, r, "verify_transfer", err)
		return
	}
	h.writeJSON(w, http.StatusOK, transfer)
}

// ResendCodeHandler issues a fresh verification code for a pending transfer.
func (h *TransferHandlers) ResendCodeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserUUID(w, r)
	if !ok {
		return
	}
	transferID, ok := h.transferIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.ResendVerificationCode(r.Context(), userID, transferID); err != nil {
		h.writeServiceError(w, r, "resend_code", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "A new verification code has been sent."})
}

// CancelTransferHandler cancels a recurring transfer's schedule.
func (h *TransferHandlers) CancelTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserUUID(w, r)
	if !ok {
		return
	}
	transferID, ok := h.transferIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.CancelRecurringTransfer(r.Context(), userID, transferID); err != nil {
		h.writeServiceError(w, r, "cancel_transfer", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Recurring transfer cancelled."})
}

// GetTransferHandler returns a single transfer owned by the caller.
func (h *TransferHandlers) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserUUID(w, r)
	if !ok {
		return
	}
	transferID, ok := h.transferIDParam(w, r)
	if !ok {
		return
	}

	transfer, err := h.service.GetTransfer(r.Context(), userID, transferID)
	if err != nil {
		h.writeServiceError(w, r, "get_transfer", err)
		return
	}
	h.writeJSON(w, http.StatusOK, transfer)
}

// ListTransfersHandler returns the caller's transfer history, newest first.
func (h *TransferHandlers) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserUUID(w, r)
	if !ok {
		return
	}

	opts := domain.TransferListOptions{
		Kind:   r.URL.Query().Get("kind"),
		Status: r.URL.Query().Get("status"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	transfers, err := h.service.ListTransfers(r.Context(), userID, opts)
	if err != nil {
		h.writeServiceError(w, r, "list_transfers", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transfers": transfers})
}

// AccountLedgerHandler returns the ledger entries for one of the caller's
// accounts, newest first.
func (h *TransferHandlers) AccountLedgerHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authUserUUID(w, r)
	if !ok {
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	entries, err := h.service.GetAccountLedger(r.Context(), userID, accountID, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.writeServiceError(w, r, "account_ledger", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// OverrideStatusHandler lets trusted internal callers force a transfer's
// status, recording the reason. Guarded by the internal API key middleware.
func (h *TransferHandlers) OverrideStatusHandler(w http.ResponseWriter, r *http.Request) {
	transferID, ok := h.transferIDParam(w, r)
	if !ok {
		return
	}

	var req statusOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.OverrideTransferStatus(r.Context(), transferID, req.Status, req.Reason); err != nil {
		h.writeServiceError(w, r, "status_override", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Transfer status updated."})
}

// writeServiceError maps service and store errors to HTTP responses. Anything
// not covered by a sentinel logs at level=error and returns a 500.
func (h *TransferHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, store.ErrTransferNotFound):
		h.writeError(w, http.StatusNotFound, "Transfer not found")
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, "Insufficient funds to complete this transfer.")
	case errors.Is(err, store.ErrCurrencyMismatch):
		h.writeError(w, http.StatusUnprocessableEntity, "Destination account holds a different currency.")
	case errors.Is(err, store.ErrCodeInvalid):
		h.writeError(w, http.StatusBadRequest, "Invalid verification code.")
	case errors.Is(err, store.ErrCodeExpired):
		h.writeError(w, http.StatusGone, "Verification code has expired. Request a new one.")
	case errors.Is(err, store.ErrAlreadyVerified):
		h.writeError(w, http.StatusConflict, "Transfer has already been verified.")
	case errors.Is(err, app.ErrTransferTerminal):
		h.writeError(w, http.StatusConflict, "Transfer has already reached a final status.")
	case errors.Is(err, app.ErrNotPending):
		h.writeError(w, http.StatusConflict, "Transfer is not awaiting verification.")
	case errors.Is(err, app.ErrNotRecurring):
		h.writeError(w, http.StatusConflict, "Only recurring transfers can be cancelled.")
	case errors.Is(err, app.ErrVerifyRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many verification attempts. Please wait and try again.")
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrInvalidDestination),
		errors.Is(err, app.ErrNoBeneficiaries),
		errors.Is(err, app.ErrInvalidBeneficiary),
		errors.Is(err, app.ErrInvalidFrequency),
		errors.Is(err, app.ErrInvalidSchedule),
		errors.Is(err, app.ErrInvalidStatus):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"unexpected error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "An internal error occurred")
	}
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// writeJSON is a helper for writing JSON responses.
func (h *TransferHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *TransferHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
