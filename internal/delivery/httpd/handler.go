package httpd

import (
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/swdgrade/similarity-service/internal/service/ingest"
	"github.com/swdgrade/similarity-service/internal/service/similarity"
	"github.com/swdgrade/similarity-service/internal/service/verification"
)

type Handler struct {
	ingestService       *ingest.Service
	similarityService   *similarity.Service
	verificationService *verification.Service
	health              HealthChecker
	logger              zerolog.Logger
}

func NewHandler(
	ingestService *ingest.Service,
	similarityService *similarity.Service,
	verificationService *verification.Service,
	health HealthChecker,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		ingestService:       ingestService,
		similarityService:   similarityService,
		verificationService: verificationService,
		health:              health,
		logger:              logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	// Health check
	router.Get("/health", h.HealthCheck)

	// Versioned API
	router.Route("/api/v1", func(api chi.Router) {
		api.Route("/ingestions", func(r chi.Router) {
			r.Post("/", h.CreateIngestion)
			r.Get("/{batch_id}", h.GetIngestionStatus)
			r.Get("/{batch_id}/documents", h.GetIngestionDocuments)
		})

		api.Route("/plagiarism", func(r chi.Router) {
			r.Post("/batch-check", h.BatchCheck)
			r.Post("/targeted-check", h.TargetedCheck)
			r.Post("/embeddings/{document_id}", h.GenerateEmbedding)
			r.Get("/checks/{check_id}/results", h.GetCheckResults)
		})

		api.Route("/verification", func(r chi.Router) {
			r.Post("/{result_id}/ai", h.AIVerify)
			r.Post("/{result_id}/teacher", h.TeacherVerify)
		})
	})
}
