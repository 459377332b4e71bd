package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/swdgrade/similarity-service/internal/models"
)

// BatchProcessor runs ingestion passes over pending batches.
type BatchProcessor interface {
	PendingBatches(ctx context.Context, limit int) ([]models.IngestionBatch, error)
	ProcessBatch(ctx context.Context, batch models.IngestionBatch) error
}

// EmbeddingSweeper fingerprints parsed documents missed by the event
// path.
type EmbeddingSweeper interface {
	EmbedPending(ctx context.Context, limit int) (int, error)
}

// Poller drives the background work: every tick it processes pending
// ingestion batches, then sweeps for unembedded documents. Trigger
// shortcuts the wait after an upload.
type Poller struct {
	batches  BatchProcessor
	sweeper  EmbeddingSweeper
	interval time.Duration
	batchCap int
	embedCap int
	trigger  chan struct{}
	logger   zerolog.Logger
}

func NewPoller(batches BatchProcessor, sweeper EmbeddingSweeper, interval time.Duration, batchCap, embedCap int, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if batchCap < 1 {
		batchCap = 5
	}
	if embedCap < 1 {
		embedCap = 10
	}
	return &Poller{
		batches:  batches,
		sweeper:  sweeper,
		interval: interval,
		batchCap: batchCap,
		embedCap: embedCap,
		trigger:  make(chan struct{}, 1),
		logger:   logger,
	}
}

// Trigger requests an immediate pass. Never blocks; a pass already
// requested absorbs further triggers.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Start runs the polling loop until the context is cancelled.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.logger.Info().Dur("interval", p.interval).Msg("Background poller started")

		for {
			select {
			case <-ctx.Done():
				p.logger.Info().Msg("Background poller stopped")
				return
			case <-ticker.C:
				p.runPass(ctx)
			case <-p.trigger:
				p.runPass(ctx)
			}
		}
	}()
}

func (p *Poller) runPass(ctx context.Context) {
	pending, err := p.batches.PendingBatches(ctx, p.batchCap)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to list pending batches")
	}
	for _, batch := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := p.batches.ProcessBatch(ctx, batch); err != nil {
			p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("Batch processing failed")
		}
	}

	embedded, err := p.sweeper.EmbedPending(ctx, p.embedCap)
	if err != nil {
		p.logger.Error().Err(err).Msg("Embedding sweep failed")
		return
	}
	if embedded > 0 {
		p.logger.Info().Int("embedded", embedded).Msg("Embedding sweep indexed documents")
	}
}
