package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/blackcoin/backend/internal/services"
)

type TransferHandler struct {
	ledger    *services.LedgerService
	users     *services.UserService
	validator *services.ValidationHelper
}

func NewTransferHandler(ledger *services.LedgerService, users *services.UserService) *TransferHandler {
	return &TransferHandler{
		ledger:    ledger,
		users:     users,
		validator: services.NewValidationHelper(),
	}
}

// SendPoints transfers points from the authenticated user to another account
// @Summary Send points
// @Description Atomically move points to another user, writing a paired ledger entry
// @Tags transfers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{recipient_id=int64,amount=int64,description=string} true "Transfer request"
// @Success 200 {object} models.TransferResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /points/send [post]
func (h *TransferHandler) SendPoints(w http.ResponseWriter, r *http.Request) {
	senderID, ok := r.Context().Value("userID").(int64)
	if !ok || senderID == 0 {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		RecipientID int64  `json:"recipient_id" validate:"required"`
		Amount      int64  `json:"amount" validate:"required"`
		Description string `json:"description" validate:"max=255"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	description := req.Description
	if description == "" {
		description = "points transfer"
	}

	result, err := h.ledger.Transfer(r.Context(), senderID, req.RecipientID, req.Amount, description)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAccountNotFound):
			services.SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		case errors.Is(err, services.ErrSameAccount):
			services.SendErrorResponse(w, "Cannot send points to yourself", http.StatusBadRequest, nil)
		case errors.Is(err, services.ErrInvalidAmount):
			services.SendErrorResponse(w, "Amount must be a positive integer", http.StatusBadRequest, nil)
		case errors.Is(err, services.ErrInsufficientBalance):
			services.SendErrorResponse(w, "Insufficient balance", http.StatusConflict, nil)
		default:
			log.Printf("[TRANSFER] Transfer failed for sender %d: %v", senderID, err)
			services.SendErrorResponse(w, "Transfer unavailable, try again", http.StatusServiceUnavailable, nil)
		}
		return
	}

	h.users.RecordActivity(senderID, "sent points")
	h.users.RecordActivity(req.RecipientID, "received points")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetBalance returns the authenticated user's balances
// @Summary Get balance
// @Tags transfers
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Account
// @Router /points/balance [get]
func (h *TransferHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int64)
	if !ok || userID == 0 {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			services.SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		services.SendErrorResponse(w, "Failed to read balance", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// ListEntries returns the authenticated user's ledger history
// @Summary List ledger entries
// @Tags transfers
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.LedgerEntry
// @Router /points/history [get]
func (h *TransferHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int64)
	if !ok || userID == 0 {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	entries, err := h.ledger.ListEntries(r.Context(), userID, 50, 0)
	if err != nil {
		services.SendErrorResponse(w, "Failed to list entries", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
