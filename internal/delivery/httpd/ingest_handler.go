package httpd

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/swdgrade/similarity-service/internal/service/ingest"
	"github.com/swdgrade/similarity-service/pkg/utils"
)

// maxArchiveBytes caps uploads at 256 MiB; exam exports stay well below.
const maxArchiveBytes = 256 << 20

func (h *Handler) CreateIngestion(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxArchiveBytes); err != nil {
		utils.ErrorResponse(w, http.StatusBadRequest, "Expected multipart form with exam_id and archive")
		return
	}

	examID := r.FormValue("exam_id")
	if !utils.ValidateUUID(examID) {
		utils.ErrorResponse(w, http.StatusBadRequest, "Valid exam_id is required")
		return
	}

	file, _, err := r.FormFile("archive")
	if err != nil {
		utils.ErrorResponse(w, http.StatusBadRequest, "Archive file is required")
		return
	}
	defer file.Close()

	archive, err := io.ReadAll(io.LimitReader(file, maxArchiveBytes+1))
	if err != nil {
		utils.ErrorResponse(w, http.StatusBadRequest, "Failed to read archive")
		return
	}
	if len(archive) > maxArchiveBytes {
		utils.ErrorResponse(w, http.StatusRequestEntityTooLarge, "Archive exceeds the upload limit")
		return
	}

	batch, err := h.ingestService.InitiateIngestion(r.Context(), examID, archive)
	if err != nil {
		h.handleIngestError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":    true,
		"batch_id":   batch.ID,
		"status":     batch.Status,
		"status_url": "/api/v1/ingestions/" + batch.ID,
	})
}

func (h *Handler) GetIngestionStatus(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	if !utils.ValidateUUID(batchID) {
		utils.ErrorResponse(w, http.StatusBadRequest, "Valid batch_id is required")
		return
	}

	status, err := h.ingestService.GetIngestionStatus(r.Context(), batchID)
	if err != nil {
		h.handleIngestError(w, err)
		return
	}

	utils.SuccessResponse(w, status)
}

func (h *Handler) GetIngestionDocuments(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	if !utils.ValidateUUID(batchID) {
		utils.ErrorResponse(w, http.StatusBadRequest, "Valid batch_id is required")
		return
	}

	docs, err := h.ingestService.BatchDocuments(r.Context(), batchID)
	if err != nil {
		h.handleIngestError(w, err)
		return
	}

	utils.SuccessResponse(w, docs)
}

func (h *Handler) handleIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrExamNotFound):
		utils.ErrorResponse(w, http.StatusNotFound, "Exam not found")
	case errors.Is(err, ingest.ErrBatchNotFound):
		utils.ErrorResponse(w, http.StatusNotFound, "Ingestion batch not found")
	case errors.Is(err, ingest.ErrInvalidArchive):
		utils.ErrorResponse(w, http.StatusBadRequest, "Uploaded file is not a valid zip archive")
	default:
		h.logger.Error().Err(err).Msg("Ingestion error")
		utils.ErrorResponse(w, http.StatusInternalServerError, "Internal server error")
	}
}
