package jobs

import (
	"context"
	"log"
	"time"
)

// ChunkPurger deletes chunks whose retention expiry has passed.
type ChunkPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RetentionWorker periodically sweeps expired chunks out of the store.
type RetentionWorker struct {
	purger        ChunkPurger
	sweepInterval time.Duration
	stopChan      chan struct{}
	doneChan      chan struct{}
}

// NewRetentionWorker creates a new RetentionWorker instance
func NewRetentionWorker(purger ChunkPurger, sweepInterval time.Duration) *RetentionWorker {
	return &RetentionWorker{
		purger:        purger,
		sweepInterval: sweepInterval,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start runs the sweep loop until the context is cancelled or Stop is called.
// A failed sweep is logged and retried on the next tick.
func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("Retention worker started with sweep interval: %v", w.sweepInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("Retention worker stopped: context cancelled")
			return
		case <-w.stopChan:
			log.Println("Retention worker stopped: stop signal received")
			return
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				log.Printf("Error sweeping expired chunks: %v", err)
			}
		}
	}
}

func (w *RetentionWorker) sweep(ctx context.Context) error {
	purged, err := w.purger.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if purged > 0 {
		log.Printf("Retention sweep purged %d expired chunks", purged)
	}
	return nil
}

// Stop gracefully stops the worker
func (w *RetentionWorker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	log.Println("Retention worker shutdown complete")
}
