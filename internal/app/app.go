package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/swdgrade/similarity-service/internal/config"
	"github.com/swdgrade/similarity-service/internal/delivery/httpd"
	"github.com/swdgrade/similarity-service/internal/models"
	"github.com/swdgrade/similarity-service/internal/repository"
	"github.com/swdgrade/similarity-service/internal/service/embedding"
	"github.com/swdgrade/similarity-service/internal/service/ingest"
	"github.com/swdgrade/similarity-service/internal/service/similarity"
	"github.com/swdgrade/similarity-service/internal/service/vectorstore"
	"github.com/swdgrade/similarity-service/internal/service/verification"
	"github.com/swdgrade/similarity-service/internal/worker"
	"github.com/swdgrade/similarity-service/internal/worker/queue"
)

type App struct {
	server       *http.Server
	logger       zerolog.Logger
	config       *config.Config
	db           *sql.DB
	poller       *worker.Poller
	consumer     *queue.Consumer
	rabbitMQRepo repository.RabbitMQRepository

	stopBackground context.CancelFunc
}

func New(cfg *config.Config, log zerolog.Logger, db *sql.DB) (*App, error) {
	rabbitMQRepo, err := repository.NewRabbitMQRepository(cfg.RabbitMQ.URL, log)
	if err != nil {
		return nil, err
	}

	publisher, err := queue.NewRabbitMQPublisher(rabbitMQRepo, log)
	if err != nil {
		return nil, err
	}

	batchRepo := repository.NewBatchRepository(db, log)
	documentRepo := repository.NewDocumentRepository(db, log)
	similarityRepo := repository.NewSimilarityRepository(db, log)
	lookupRepo := repository.NewLookupRepository(db, log)

	blobStorage, err := repository.NewMinIORepository(cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	vectorIndex := vectorstore.NewClient(cfg.Qdrant, log)
	generator := embedding.NewGenerator(cfg.Qdrant.VectorSize)

	ingestService := ingest.NewService(
		batchRepo,
		documentRepo,
		lookupRepo,
		blobStorage,
		publisher,
		cfg.Ingest,
		log,
	)

	similarityService := similarity.NewService(
		documentRepo,
		similarityRepo,
		lookupRepo,
		vectorIndex,
		generator,
		cfg.Similarity,
		log,
	)

	adjudicator := verification.NewOpenAIClient(cfg.OpenAI, log)
	verificationService := verification.NewService(
		similarityRepo,
		documentRepo,
		lookupRepo,
		adjudicator,
		log,
	)

	poller := worker.NewPoller(
		ingestService,
		similarityService,
		cfg.Ingest.PollInterval,
		cfg.Ingest.MaxWorkers,
		cfg.Ingest.EmbedBatchSize,
		log,
	)
	ingestService.SetNotifier(poller.Trigger)

	consumer := queue.NewConsumer(rabbitMQRepo, func(ctx context.Context, event models.DocumentParsedEvent) error {
		return similarityService.GenerateEmbedding(ctx, event.DocumentID, false)
	}, log)

	handler := httpd.NewHandler(
		ingestService,
		similarityService,
		verificationService,
		documentRepo,
		log,
	)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		server:       server,
		logger:       log,
		config:       cfg,
		db:           db,
		poller:       poller,
		consumer:     consumer,
		rabbitMQRepo: rabbitMQRepo,
	}, nil
}

func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopBackground = cancel

	if err := a.consumer.Start(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to start event consumer")
		return err
	}
	a.poller.Start(ctx)

	a.logger.Info().Msgf("Starting similarity service on %s", a.config.Server.Address)
	return a.server.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down similarity service...")

	if a.stopBackground != nil {
		a.stopBackground()
	}

	if a.rabbitMQRepo != nil {
		if err := a.rabbitMQRepo.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
		return err
	}

	a.logger.Info().Msg("Similarity service stopped")
	return nil
}
