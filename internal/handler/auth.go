package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/men4u/cds/internal/auth"
	"github.com/men4u/cds/internal/upstream"
)

// AuthHandler exposes the OTP login lifecycle over HTTP.
type AuthHandler struct {
	flow      *auth.Flow
	jwtSecret string
}

func NewAuthHandler(flow *auth.Flow, jwtSecret string) *AuthHandler {
	return &AuthHandler{flow: flow, jwtSecret: jwtSecret}
}

// RegisterRoutes registers auth endpoints on the given Chi router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/otp", h.RequestOTP)
	r.Post("/auth/resend", h.ResendOTP)
	r.Post("/auth/verify", h.VerifyOTP)
	r.Post("/auth/logout", h.Logout)
	r.Get("/auth/state", h.State)
}

// --- Request / Response types ---

type otpRequest struct {
	Mobile string `json:"mobile"`
}

type verifyRequest struct {
	OTP string `json:"otp"`
}

type verifyResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	UserID   int64  `json:"user_id"`
	OutletID int64  `json:"outlet_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type stateResponse struct {
	State auth.State `json:"state"`
}

// --- Handlers ---

// RequestOTP starts a login: validates the mobile and asks the backend to
// send an OTP.
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	detail, err := h.flow.RequestOTP(r.Context(), req.Mobile)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"detail": detail})
}

// ResendOTP re-sends the code to the mobile awaiting verification. Inside
// the cooldown window it returns 429 without touching the backend.
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	detail, err := h.flow.ResendOTP(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"detail": detail})
}

// VerifyOTP completes the login and issues the display token.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	rec, err := h.flow.VerifyOTP(r.Context(), req.OTP)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	token, err := auth.GenerateToken(h.jwtSecret, rec.UserID, rec.OutletID, rec.Role)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Token: token,
		User: userResponse{
			UserID:   rec.UserID,
			OutletID: rec.OutletID,
			Name:     rec.Name,
			Role:     rec.Role,
		},
	})
}

// Logout ends the session. The upstream notification is best-effort; local
// state is always cleared, so this never fails.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	// Detach from the request context so a dropped connection cannot
	// abort the upstream notification mid-flight.
	h.flow.Logout(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"detail": "logged out"})
}

// State reports where the login lifecycle currently stands, so a reloading
// frontend knows which screen to show.
func (h *AuthHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{State: h.flow.State()})
}

// --- Helpers ---

// expireOn triggers the forced-logout teardown when an upstream call
// reports the session invalid. Any authenticated call can observe this,
// not just the poller.
func expireOn(err error, expirer SessionExpirer) {
	if errors.Is(err, upstream.ErrSessionExpired) && expirer != nil {
		expirer.Expire()
	}
}

// writeFlowError maps flow errors to HTTP statuses. Backend rejections
// surface their detail verbatim with the backend's own status.
func writeFlowError(w http.ResponseWriter, err error) {
	var apiErr *upstream.APIError
	switch {
	case errors.Is(err, auth.ErrInvalidMobile), errors.Is(err, auth.ErrInvalidOTP):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, auth.ErrNotAwaitingOTP):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, auth.ErrResendCooldown):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	case errors.Is(err, auth.ErrRoleNotAllowed):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.As(err, &apiErr):
		writeJSON(w, apiErr.Status, map[string]string{"error": apiErr.Detail})
	case errors.Is(err, upstream.ErrSessionExpired):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session expired"})
	default:
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream unavailable"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}
