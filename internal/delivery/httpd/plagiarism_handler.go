package httpd

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/swdgrade/similarity-service/internal/service/similarity"
	"github.com/swdgrade/similarity-service/pkg/utils"
)

func (h *Handler) BatchCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExamID    string  `json:"exam_id"`
		Threshold float64 `json:"threshold"`
		CheckedBy string  `json:"checked_by"`
	}
	if err := utils.ReadJSON(r, &req); err != nil {
		utils.ErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !utils.ValidateUUID(req.ExamID) {
		utils.ErrorResponse(w, http.StatusBadRequest, "Valid exam_id is required")
		return
	}

	result, err := h.similarityService.RunBatchCheck(r.Context(), req.ExamID, req.Threshold, req.CheckedBy)
	if err != nil {
		h.handleSimilarityError(w, err)
		return
	}

	utils.SuccessResponse(w, result)
}

func (h *Handler) TargetedCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string  `json:"document_id"`
		Threshold  float64 `json:"threshold"`
		CheckedBy  string  `json:"checked_by"`
	}
	if err := utils.ReadJSON(r, &req); err != nil {
		utils.ErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !utils.ValidateUUID(req.DocumentID) {
		utils.ErrorResponse(w, http.StatusBadRequest, "Valid document_id is required")
		return
	}

	result, err := h.similarityService.RunTargetedCheck(r.Context(), req.DocumentID, req.Threshold, req.CheckedBy)
	if err != nil {
		h.handleSimilarityError(w, err)
		return
	}

	utils.SuccessResponse(w, result)
}

func (h *Handler) GenerateEmbedding(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "document_id")
	if !utils.ValidateUUID(documentID) {
		utils.ErrorResponse(w, http.StatusBadRequest, "Valid document_id is required")
		return
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	if err := h.similarityService.GenerateEmbedding(r.Context(), documentID, force); err != nil {
		h.handleSimilarityError(w, err)
		return
	}

	utils.SuccessResponse(w, map[string]string{
		"document_id": documentID,
		"message":     "Document fingerprint indexed",
	})
}

func (h *Handler) GetCheckResults(w http.ResponseWriter, r *http.Request) {
	checkID := chi.URLParam(r, "check_id")
	if !utils.ValidateUUID(checkID) {
		utils.ErrorResponse(w, http.StatusBadRequest, "Valid check_id is required")
		return
	}

	results, err := h.similarityService.GetCheckResults(r.Context(), checkID)
	if err != nil {
		h.handleSimilarityError(w, err)
		return
	}

	utils.SuccessResponse(w, results)
}

func (h *Handler) handleSimilarityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, similarity.ErrExamNotFound):
		utils.ErrorResponse(w, http.StatusNotFound, "Exam not found")
	case errors.Is(err, similarity.ErrDocumentNotFound):
		utils.ErrorResponse(w, http.StatusNotFound, "Document not found")
	case errors.Is(err, similarity.ErrUserNotFound):
		utils.ErrorResponse(w, http.StatusNotFound, "User not found")
	case errors.Is(err, similarity.ErrDocumentNotParsed):
		utils.ErrorResponse(w, http.StatusUnprocessableEntity, "Document has no extracted text")
	case errors.Is(err, similarity.ErrInvalidThreshold):
		utils.ErrorResponse(w, http.StatusBadRequest, "Threshold must be between 0 and 1")
	default:
		h.logger.Error().Err(err).Msg("Similarity check error")
		utils.ErrorResponse(w, http.StatusInternalServerError, "Internal server error")
	}
}
