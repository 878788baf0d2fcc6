package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Rox-Lvmaohua/qrsignature/internal/http/response"
	"github.com/Rox-Lvmaohua/qrsignature/internal/observability"
	"github.com/Rox-Lvmaohua/qrsignature/internal/repository"
	"github.com/Rox-Lvmaohua/qrsignature/internal/service"
)

// SignatureHandler owns the reusable-signature library and the per-user
// signing history, outside the lifetime of any single session.
type SignatureHandler struct {
	signSvc service.SignServiceInterface
}

func NewSignatureHandler(signSvc service.SignServiceInterface) *SignatureHandler {
	return &SignatureHandler{signSvc: signSvc}
}

func (h *SignatureHandler) UserSignatures(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))

	signatures, err := h.signSvc.UserSignatures(r.Context(), userID)
	if err != nil {
		h.signatureError(w, r, "list", err)
		return
	}

	observability.RecordRepositoryOperation(r.Context(), "user_signature", "list_api", "success")
	response.JSON(w, r, http.StatusOK, signatures)
}

// CheckSignatureExists tells the signer page whether save-for-reuse would
// conflict before it offers the checkbox.
func (h *SignatureHandler) CheckSignatureExists(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))

	canSave, err := h.signSvc.CanSaveSignature(r.Context(), userID)
	if err != nil {
		h.signatureError(w, r, "check_exists", err)
		return
	}

	response.JSON(w, r, http.StatusOK, map[string]any{
		"user_id":  userID,
		"exists":   !canSave,
		"can_save": canSave,
	})
}

func (h *SignatureHandler) DeleteUserSignature(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	signatureID := strings.TrimSpace(chi.URLParam(r, "signatureId"))

	if err := h.signSvc.DeleteUserSignature(r.Context(), userID, signatureID); err != nil {
		h.signatureError(w, r, "delete", err)
		return
	}

	observability.RecordRepositoryOperation(r.Context(), "user_signature", "delete_api", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{
		"signature_id": signatureID,
		"deleted":      true,
	})
}

func (h *SignatureHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	page := repository.PageRequest{
		Page:     queryInt(r, "page", repository.DefaultPage),
		PageSize: queryInt(r, "page_size", repository.DefaultPageSize),
	}

	result, err := h.signSvc.History(r.Context(), userID, page)
	if err != nil {
		h.signatureError(w, r, "history", err)
		return
	}

	response.JSON(w, r, http.StatusOK, map[string]any{
		"items":       result.Items,
		"page":        result.Page,
		"page_size":   result.PageSize,
		"total":       result.Total,
		"total_pages": result.TotalPages,
	})
}

func (h *SignatureHandler) signatureError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, repository.ErrSignatureNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "signature not found", nil)
	case errors.Is(err, repository.ErrSignatureConflict):
		response.Error(w, r, http.StatusConflict, "SIGNATURE_CONFLICT", "a saved signature already exists for this user", nil)
	default:
		observability.RecordRepositoryOperation(r.Context(), "user_signature", operation, "error")
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "signature operation failed", nil)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
