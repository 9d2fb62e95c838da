package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"spothot/internal/signup"
	dErrors "spothot/pkg/domain-errors"
	"spothot/pkg/platform/httputil"
)

// Handler is a thin JSON adapter over the signup service. The product API
// proper lives elsewhere; this surface exists so the process is drivable
// end to end and carries no auth, pagination, or versioning.
type Handler struct {
	signup *signup.Service
	logger *slog.Logger
}

func NewHandler(svc *signup.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{signup: svc, logger: logger}
}

// Register mounts the signup routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/signup", h.handleRegister)
	r.Post("/signup/resend", h.handleResend)
	r.Post("/verify", h.handleVerify)
	r.Get("/waitlist/position", h.handlePosition)
}

type registerRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	ReferralCode string `json:"referral_code,omitempty"`
}

type registerResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	ReferralCode string `json:"referral_code"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, errorBody("malformed request body"))
		return
	}

	result, err := h.signup.Register(r.Context(), req.Name, req.Email, req.ReferralCode)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// The challenge code travels by email only.
	httputil.WriteJSON(w, http.StatusCreated, registerResponse{
		ID:           result.Identity.ID.String(),
		Email:        result.Identity.Email,
		ReferralCode: result.Identity.ReferralCode,
	})
}

type resendRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, errorBody("malformed request body"))
		return
	}

	if err := h.signup.ResendChallenge(r.Context(), req.Email); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

type verifyRequest struct {
	Code string `json:"code"`
}

type verifyResponse struct {
	Status string `json:"status"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, errorBody("malformed request body"))
		return
	}

	result, err := h.signup.HandleRedeem(r.Context(), req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verifyResponse{Status: string(result.Status)})
}

type positionResponse struct {
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
	Listed   bool   `json:"listed"`
	Position int    `json:"position,omitempty"`
}

func (h *Handler) handlePosition(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, errorBody("email query parameter is required"))
		return
	}

	status, err := h.signup.Lookup(r.Context(), email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, positionResponse{
		Email:    status.Identity.Email,
		Verified: status.Identity.Verified,
		Listed:   status.Listed,
		Position: status.Position,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func errorBody(msg string) errorResponse {
	return errorResponse{Error: msg}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		h.logger.Error("request failed", "error", err)
		httputil.WriteJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	status := http.StatusInternalServerError
	switch domainErr.Code {
	case dErrors.CodeValidation, dErrors.CodeInvalidReferral:
		status = http.StatusUnprocessableEntity
	case dErrors.CodeNotFound:
		status = http.StatusNotFound
	case dErrors.CodeExpired:
		status = http.StatusGone
	case dErrors.CodeConflict:
		status = http.StatusConflict
	case dErrors.CodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	httputil.WriteJSON(w, status, errorResponse{
		Error: domainErr.Message,
		Code:  string(domainErr.Code),
	})
}
