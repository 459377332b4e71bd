package httpd

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/swdgrade/similarity-service/internal/service/verification"
	"github.com/swdgrade/similarity-service/pkg/utils"
)

func (h *Handler) AIVerify(w http.ResponseWriter, r *http.Request) {
	resultID := chi.URLParam(r, "result_id")
	if !utils.ValidateUUID(resultID) {
		utils.ErrorResponse(w, http.StatusBadRequest, "Valid result_id is required")
		return
	}

	result, err := h.verificationService.AIVerify(r.Context(), resultID)
	if err != nil {
		h.handleVerificationError(w, err)
		return
	}

	utils.SuccessResponse(w, result)
}

func (h *Handler) TeacherVerify(w http.ResponseWriter, r *http.Request) {
	resultID := chi.URLParam(r, "result_id")
	if !utils.ValidateUUID(resultID) {
		utils.ErrorResponse(w, http.StatusBadRequest, "Valid result_id is required")
		return
	}

	var req struct {
		TeacherID string  `json:"teacher_id"`
		IsSimilar *bool   `json:"is_similar"`
		Notes     *string `json:"notes"`
	}
	if err := utils.ReadJSON(r, &req); err != nil {
		utils.ErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !utils.ValidateUUID(req.TeacherID) {
		utils.ErrorResponse(w, http.StatusBadRequest, "Valid teacher_id is required")
		return
	}
	if req.IsSimilar == nil {
		utils.ErrorResponse(w, http.StatusBadRequest, "is_similar is required")
		return
	}

	result, err := h.verificationService.TeacherVerify(r.Context(), resultID, req.TeacherID, *req.IsSimilar, req.Notes)
	if err != nil {
		h.handleVerificationError(w, err)
		return
	}

	utils.SuccessResponse(w, result)
}

func (h *Handler) handleVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, verification.ErrResultNotFound):
		utils.ErrorResponse(w, http.StatusNotFound, "Similarity result not found")
	case errors.Is(err, verification.ErrAlreadyVerified):
		utils.ErrorResponse(w, http.StatusConflict, "Similarity result is no longer pending")
	case errors.Is(err, verification.ErrTeacherNotFound):
		utils.ErrorResponse(w, http.StatusNotFound, "Teacher not found")
	case errors.Is(err, verification.ErrDocumentNotParsed):
		utils.ErrorResponse(w, http.StatusUnprocessableEntity, "Document has no extracted text")
	case errors.Is(err, verification.ErrAdjudicatorUnavailable):
		h.logger.Error().Err(err).Msg("Adjudicator unavailable")
		utils.ErrorResponse(w, http.StatusBadGateway, "AI adjudicator unavailable")
	default:
		h.logger.Error().Err(err).Msg("Verification error")
		utils.ErrorResponse(w, http.StatusInternalServerError, "Internal server error")
	}
}
