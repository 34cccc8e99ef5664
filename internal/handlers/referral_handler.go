package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blackcoin/backend/internal/services"
)

type ReferralHandler struct {
	service *services.ReferralService
}

func NewReferralHandler(service *services.ReferralService) *ReferralHandler {
	return &ReferralHandler{service: service}
}

// GetReferralQR returns the user's referral link and QR code image
// @Summary Get referral QR
// @Tags referrals
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{link=string,qrImage=string}
// @Router /referral/qr [get]
func (h *ReferralHandler) GetReferralQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(int64)
	if !ok || userID == 0 {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	link, qrImage, err := h.service.GenerateReferralQR(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			services.SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
			return
		}
		services.SendErrorResponse(w, "Failed to generate QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"link":    link,
		"qrImage": qrImage,
	})
}
