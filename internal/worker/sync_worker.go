// Package worker runs the background loop that mirrors expenses into the
// spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// EventSource delivers expense events until ctx is cancelled.
type EventSource interface {
	ConsumeExpenseEvents(ctx context.Context, handler func(context.Context, *amqp.ExpenseEvent) error) error
}

// SyncWorker consumes expense events and keeps the mirror in step with the
// database. The processor's periodic sweep covers lost messages.
type SyncWorker struct {
	processor   *services.SyncProcessor
	source      EventSource
	startupScan int
	stopTimeout time.Duration
	logger      *log.Logger
}

// NewSyncWorker creates a worker. source may be nil, in which case only the
// sweep runs.
func NewSyncWorker(processor *services.SyncProcessor, source EventSource, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{
		processor:   processor,
		source:      source,
		startupScan: 5,
		stopTimeout: 10 * time.Second,
		logger:      logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent applies one expense event to the mirror.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev *amqp.ExpenseEvent) error {
	w.logger.InfoContext(ctx, "Processing expense event",
		"type", ev.Type,
		log.FieldExpenseID, ev.ID,
		"version", ev.Version)

	switch ev.Type {
	case amqp.EventExpenseCreated:
		if err := w.processor.SyncOne(ctx, ev.ID); err != nil {
			return fmt.Errorf("sync expense %d: %w", ev.ID, err)
		}
		return nil
	case amqp.EventExpenseDeleted:
		var date civil.Date
		if ev.Date != "" {
			d, err := core.ParseDate(ev.Date)
			if err != nil {
				return fmt.Errorf("delete expense %d: %w", ev.ID, err)
			}
			date = d
		}
		if err := w.processor.Remove(ctx, ev.ID, date); err != nil {
			return fmt.Errorf("delete expense %d: %w", ev.ID, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

// StartupSyncCheck syncs expenses left pending while the worker was down,
// a few batches at most.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) int {
	total := 0
	for i := 0; i < w.startupScan; i++ {
		n := w.processor.Sweep(ctx)
		total += n
		if n == 0 {
			break
		}
	}
	if total == 0 {
		w.logger.InfoContext(ctx, "No pending expenses found on startup")
	} else {
		w.logger.InfoContext(ctx, "Startup sync completed", "synced", total)
	}
	return total
}

// Run consumes events and sweeps until ctx is cancelled. It returns nil on
// a clean shutdown.
func (w *SyncWorker) Run(ctx context.Context) error {
	w.StartupSyncCheck(ctx)

	g, gctx := errgroup.WithContext(ctx)

	if w.source != nil {
		g.Go(func() error {
			return w.source.ConsumeExpenseEvents(gctx, w.HandleEvent)
		})
	} else {
		w.logger.WarnContext(ctx, "No event source configured, relying on the sweep only")
	}

	g.Go(func() error {
		if err := w.processor.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), w.stopTimeout)
		defer cancel()
		return w.processor.Stop(stopCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
