package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/modules/prices"
)

// SyncJob refreshes the price cache in the background.
type SyncJob struct {
	service      *prices.Service
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewSyncJob creates a new price sync job
func NewSyncJob(service *prices.Service, eventManager *events.Manager, log zerolog.Logger) *SyncJob {
	return &SyncJob{
		service:      service,
		eventManager: eventManager,
		log:          log.With().Str("job", "price_sync").Logger(),
	}
}

// Name returns the job name for scheduler registration
func (j *SyncJob) Name() string {
	return "price_sync"
}

// Run refreshes every symbol in the holdings table. Per-symbol failures
// do not abort the batch; the first error is reported after all fetches
// complete.
func (j *SyncJob) Run() error {
	j.eventManager.Emit(events.PriceSyncStart, "prices", map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	refreshed, err := j.service.RefreshAll(ctx)
	if err != nil {
		j.log.Error().Err(err).Int("refreshed", refreshed).Msg("Price sync finished with errors")
		j.eventManager.EmitError("prices", err, map[string]interface{}{
			"refreshed": refreshed,
		})
		return err
	}

	j.eventManager.Emit(events.PriceSyncComplete, "prices", map[string]interface{}{
		"refreshed": refreshed,
	})

	return nil
}
