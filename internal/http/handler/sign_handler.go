package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Rox-Lvmaohua/qrsignature/internal/http/middleware"
	"github.com/Rox-Lvmaohua/qrsignature/internal/http/response"
	"github.com/Rox-Lvmaohua/qrsignature/internal/observability"
	"github.com/Rox-Lvmaohua/qrsignature/internal/repository"
	"github.com/Rox-Lvmaohua/qrsignature/internal/service"
)

type SignHandler struct {
	signSvc service.SignServiceInterface
}

func NewSignHandler(signSvc service.SignServiceInterface) *SignHandler {
	return &SignHandler{signSvc: signSvc}
}

type generateRequest struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	FileID    string `json:"file_id"`
	MetaCode  string `json:"meta_code"`
}

// Generate mints a fresh signing session and the QR payload pointing at it.
func (h *SignHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.RecordSignFlowEvent(r.Context(), "generate", "bad_request")
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	result, err := h.signSvc.Generate(r.Context(), req.ProjectID, req.UserID, req.FileID, req.MetaCode)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			observability.RecordSignFlowEvent(r.Context(), "generate", "bad_request")
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		observability.RecordSignFlowEvent(r.Context(), "generate", "error")
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to create sign session", nil)
		return
	}

	observability.RecordSignFlowEvent(r.Context(), "generate", "success")
	response.JSON(w, r, http.StatusOK, result)
}

// Session resolves the token the signer scanned and reports the session
// payload, moving it to scanned on first load.
func (h *SignHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		observability.RecordSignFlowEvent(r.Context(), "resolve", "unauthorized")
		response.Error(w, r, http.StatusUnauthorized, "TOKEN_INVALID", "missing sign token", nil)
		return
	}

	payload, err := h.signSvc.Resolve(r.Context(), claims)
	if err != nil {
		h.signFlowError(w, r, "resolve", err)
		return
	}

	observability.RecordSignFlowEvent(r.Context(), "resolve", "success")
	response.JSON(w, r, http.StatusOK, payload)
}

type confirmRequest struct {
	SignatureBase64 string `json:"signature_base64"`
	UserSignatureID string `json:"user_signature_id"`
	SaveForReuse    bool   `json:"save_for_reuse"`
	Override        bool   `json:"override"`
}

// Confirm accepts the drawn or reused signature image and completes the
// session. Replays of an already signed session return the stored result.
func (h *SignHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		observability.RecordSignFlowEvent(r.Context(), "confirm", "unauthorized")
		response.Error(w, r, http.StatusUnauthorized, "TOKEN_INVALID", "missing sign token", nil)
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.RecordSignFlowEvent(r.Context(), "confirm", "bad_request")
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	result, err := h.signSvc.Confirm(r.Context(), claims, service.ConfirmInput{
		SignatureBase64: req.SignatureBase64,
		UserSignatureID: req.UserSignatureID,
		SaveForReuse:    req.SaveForReuse,
		Override:        req.Override,
	})
	if err != nil {
		h.signFlowError(w, r, "confirm", err)
		return
	}

	observability.RecordSignFlowEvent(r.Context(), "confirm", "success")
	response.JSON(w, r, http.StatusOK, result)
}

// Status is the caller-side polling endpoint. The token must be bound to the
// session being polled; holding a token for one session grants nothing else.
func (h *SignHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		observability.RecordSignFlowEvent(r.Context(), "status", "unauthorized")
		response.Error(w, r, http.StatusUnauthorized, "TOKEN_INVALID", "missing sign token", nil)
		return
	}
	sessionRef := strings.TrimSpace(chi.URLParam(r, "sessionRef"))
	if sessionRef == "" {
		observability.RecordSignFlowEvent(r.Context(), "status", "bad_request")
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "sessionRef is required", nil)
		return
	}
	if claims.SessionRef != sessionRef {
		observability.RecordSignFlowEvent(r.Context(), "status", "unauthorized")
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "token is not bound to this session", nil)
		return
	}

	result, err := h.signSvc.Status(r.Context(), sessionRef)
	if err != nil {
		h.signFlowError(w, r, "status", err)
		return
	}

	observability.RecordSignFlowEvent(r.Context(), "status", "success")
	response.JSON(w, r, http.StatusOK, result)
}

// SignatureImage serves the accepted image of a signed session.
func (h *SignHandler) SignatureImage(w http.ResponseWriter, r *http.Request) {
	sessionRef := strings.TrimSpace(chi.URLParam(r, "sessionRef"))
	if sessionRef == "" {
		observability.RecordSignFlowEvent(r.Context(), "signature_image", "bad_request")
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "sessionRef is required", nil)
		return
	}

	image, err := h.signSvc.SignatureImage(r.Context(), sessionRef)
	if err != nil {
		h.signFlowError(w, r, "signature_image", err)
		return
	}

	observability.RecordSignFlowEvent(r.Context(), "signature_image", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{
		"session_ref":      sessionRef,
		"signature_base64": image,
	})
}

// SignatureImageURL serves a presigned link to the archived copy instead of
// the inline payload, for callers that want to hand the image to a browser.
func (h *SignHandler) SignatureImageURL(w http.ResponseWriter, r *http.Request) {
	sessionRef := strings.TrimSpace(chi.URLParam(r, "sessionRef"))
	if sessionRef == "" {
		observability.RecordSignFlowEvent(r.Context(), "signature_image_url", "bad_request")
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "sessionRef is required", nil)
		return
	}

	signedURL, err := h.signSvc.SignatureImageURL(r.Context(), sessionRef)
	if err != nil {
		h.signFlowError(w, r, "signature_image_url", err)
		return
	}

	observability.RecordSignFlowEvent(r.Context(), "signature_image_url", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{
		"session_ref": sessionRef,
		"url":         signedURL,
	})
}

// UserInfo echoes the identity bound into the sign token so the signer page
// can render who is signing what without a second lookup.
func (h *SignHandler) UserInfo(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "TOKEN_INVALID", "missing sign token", nil)
		return
	}

	response.JSON(w, r, http.StatusOK, map[string]any{
		"session_ref": claims.SessionRef,
		"user_id":     claims.UserID(),
		"project_id":  claims.ProjectID,
		"file_id":     claims.FileID,
		"meta_code":   claims.MetaCode,
	})
}

func (h *SignHandler) signFlowError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		observability.RecordSignFlowEvent(r.Context(), operation, "bad_request")
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, repository.ErrSessionNotFound):
		observability.RecordSignFlowEvent(r.Context(), operation, "not_found")
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "sign session not found", nil)
	case errors.Is(err, service.ErrSessionExpired):
		observability.RecordSignFlowEvent(r.Context(), operation, "expired")
		response.Error(w, r, http.StatusGone, "SESSION_EXPIRED", "sign session expired", nil)
	case errors.Is(err, service.ErrSessionAlreadySigned):
		observability.RecordSignFlowEvent(r.Context(), operation, "conflict")
		response.Error(w, r, http.StatusConflict, "CONFLICT", "sign session already completed", nil)
	case errors.Is(err, repository.ErrSignatureNotFound):
		observability.RecordSignFlowEvent(r.Context(), operation, "not_found")
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "signature not found", nil)
	default:
		observability.RecordSignFlowEvent(r.Context(), operation, "error")
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "sign flow operation failed", nil)
	}
}
