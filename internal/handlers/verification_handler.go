package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/blackcoin/backend/internal/services"
)

type VerificationHandler struct {
	service   *services.VerificationService
	validator *services.ValidationHelper
}

func NewVerificationHandler(service *services.VerificationService) *VerificationHandler {
	return &VerificationHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// SendCode issues a verification code for an identity
// @Summary Send verification code
// @Description Issue a 6-digit code and deliver it by email or Telegram, picked by identity shape
// @Tags verification
// @Accept json
// @Produce json
// @Param request body object{identity=string} true "Identity (email address or chat id)"
// @Success 200 {object} object{message=string,expiresIn=int,delivered=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Router /verification/send-code [post]
func (h *VerificationHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity" validate:"required,identity"`
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

	// The returned code never leaves the backend.
	delivered := true
	if _, err := h.service.Issue(r.Context(), req.Identity); err != nil {
		switch {
		case errors.Is(err, services.ErrRateLimited):
			services.SendErrorResponse(w, "Too many codes requested, try again later", http.StatusTooManyRequests, nil)
			return
		case errors.Is(err, services.ErrNotificationFailed):
			delivered = false
		default:
			log.Printf("[VERIFY] SendCode failed for %s: %v", req.Identity, err)
			services.SendErrorResponse(w, "Failed to issue code", http.StatusInternalServerError, nil)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":   "Verification code sent",
		"expiresIn": int(h.service.CodeTTL().Seconds()),
		"delivered": delivered,
	})
}

// CheckCode verifies and consumes a code
// @Summary Check verification code
// @Description Verify the code for an identity; a match consumes the code
// @Tags verification
// @Accept json
// @Produce json
// @Param request body object{identity=string,code=string} true "Identity and code"
// @Success 200 {object} object{verified=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 410 {object} services.ErrorResponse
// @Router /verification/check-code [post]
func (h *VerificationHandler) CheckCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity" validate:"required,identity"`
		Code     string `json:"code" validate:"required,numeric,len=6"`
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

	if err := h.service.Verify(r.Context(), req.Identity, req.Code); err != nil {
		switch {
		case errors.Is(err, services.ErrCodeExpired):
			services.SendErrorResponse(w, "Code expired", http.StatusGone, nil)
		case errors.Is(err, services.ErrCodeNotFound):
			services.SendErrorResponse(w, "No code issued for this identity", http.StatusBadRequest, nil)
		case errors.Is(err, services.ErrCodeMismatch):
			services.SendErrorResponse(w, "Incorrect code", http.StatusBadRequest, nil)
		default:
			log.Printf("[VERIFY] CheckCode failed for %s: %v", req.Identity, err)
			services.SendErrorResponse(w, "Verification unavailable, try again", http.StatusServiceUnavailable, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"verified": true})
}
