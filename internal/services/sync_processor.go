package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to sweep for unsynced expenses (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of expenses to sync per sweep (default: 10)
	BatchSize int
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    10,
	}
}

// SyncProcessor mirrors stored expenses into the spreadsheet. Events drive
// SyncOne and Remove; a periodic sweep catches rows whose event was lost.
type SyncProcessor struct {
	storage *storage.SQLiteRepository
	writer  sheets.ExpenseWriter
	deleter sheets.ExpenseDeleter
	config  SyncProcessorConfig
	logger  *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncProcessor creates a new sync processor
func NewSyncProcessor(storage *storage.SQLiteRepository, mirror sheets.Mirror, config SyncProcessorConfig, logger *log.Logger) *SyncProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	def := DefaultSyncProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	p := &SyncProcessor{
		storage: storage,
		config:  config,
		logger:  logger.WithComponent(log.ComponentSheets),
	}
	if mirror != nil {
		p.writer = mirror
		p.deleter = mirror
	}
	return p
}

// Start begins the sweep loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.Sweep(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep syncs one batch of expenses still pending or previously failed and
// returns how many reached the mirror.
func (p *SyncProcessor) Sweep(ctx context.Context) int {
	pending, err := p.storage.GetPendingSyncExpenses(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to load pending expenses", log.FieldError, err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	p.logger.DebugContext(ctx, "Sweeping unsynced expenses", log.FieldCount, len(pending))

	synced := 0
	for _, item := range pending {
		if ctx.Err() != nil {
			return synced
		}
		if err := p.SyncOne(ctx, item.ID); err != nil {
			p.logger.WarnContext(ctx, "Sweep sync failed",
				log.FieldExpenseID, item.ID,
				log.FieldError, err)
			continue
		}
		synced++
	}
	return synced
}

// SyncOne appends the expense to the mirror and records the outcome.
// Expenses deleted in the meantime and ones already synced are skipped.
func (p *SyncProcessor) SyncOne(ctx context.Context, id int64) error {
	if p.writer == nil {
		return fmt.Errorf("no sheets writer configured")
	}

	status, err := p.storage.SyncStatus(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		p.logger.DebugContext(ctx, "Expense gone before sync", log.FieldExpenseID, id)
		return nil
	}
	if err != nil {
		return err
	}
	if status == storage.SyncSynced {
		return nil
	}

	expense, err := p.storage.GetExpense(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get expense %d: %w", id, err)
	}

	ref, err := p.writer.Append(ctx, expense)
	if err != nil {
		if markErr := p.storage.MarkSyncError(ctx, id); markErr != nil {
			p.logger.ErrorContext(ctx, "Failed to mark expense sync error",
				log.FieldExpenseID, id,
				log.FieldError, markErr)
		}
		return fmt.Errorf("append to sheets: %w", err)
	}

	if err := p.storage.MarkSynced(ctx, id); err != nil {
		// The row reached the sheet; Append is idempotent on the next sweep.
		p.logger.WarnContext(ctx, "Failed to mark expense as synced",
			log.FieldExpenseID, id,
			log.FieldError, err)
	}

	p.logger.InfoContext(ctx, "Synced expense to Google Sheets",
		log.FieldExpenseID, id,
		"sheets_ref", ref)
	return nil
}

// Remove deletes the expense's row from the mirror.
func (p *SyncProcessor) Remove(ctx context.Context, id int64, date civil.Date) error {
	if p.deleter == nil {
		p.logger.WarnContext(ctx, "No deleter configured, skipping delete", log.FieldExpenseID, id)
		return nil
	}
	if err := p.deleter.DeleteExpense(ctx, id, date); err != nil {
		return fmt.Errorf("delete from sheets: %w", err)
	}

	p.logger.InfoContext(ctx, "Deleted expense from Google Sheets", log.FieldExpenseID, id)
	return nil
}
