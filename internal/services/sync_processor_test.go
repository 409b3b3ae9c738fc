package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/sheets/memory"
	"fintrack/internal/storage"
)

func TestDefaultSyncProcessorConfig(t *testing.T) {
	config := DefaultSyncProcessorConfig()

	if config.PollInterval != 30*time.Second {
		t.Errorf("expected PollInterval 30s, got %v", config.PollInterval)
	}
	if config.BatchSize != 10 {
		t.Errorf("expected BatchSize 10, got %d", config.BatchSize)
	}
}

func TestNewSyncProcessor_FillsDefaults(t *testing.T) {
	processor := NewSyncProcessor(nil, nil, SyncProcessorConfig{}, nil)

	if processor.config != DefaultSyncProcessorConfig() {
		t.Errorf("expected defaults, got %+v", processor.config)
	}
	if processor.writer != nil || processor.deleter != nil {
		t.Error("nil mirror should leave writer and deleter unset")
	}
	if processor.IsRunning() {
		t.Error("processor should not be running initially")
	}
}

func TestSyncProcessor_StopNotRunning(t *testing.T) {
	processor := NewSyncProcessor(nil, nil, DefaultSyncProcessorConfig(), nil)

	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func seedExpenses(t *testing.T, repo *storage.SQLiteRepository, n int) []core.Expense {
	t.Helper()
	user := newTestUser(t, repo, "sync@example.com")
	batch := make([]core.Expense, n)
	for i := range batch {
		batch[i] = expense(day(2025, 3, i+1), "10", core.CategoryGrocery, "")
	}
	saved, err := repo.InsertExpenses(context.Background(), user.ID, batch)
	require.NoError(t, err)
	return saved
}

func TestSyncProcessor_SyncOne(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	mirror := memory.New()
	processor := NewSyncProcessor(repo, mirror, DefaultSyncProcessorConfig(), log.Discard())
	saved := seedExpenses(t, repo, 1)
	id := saved[0].ID

	mirror.SetError(errors.New("quota exceeded"))
	require.Error(t, processor.SyncOne(ctx, id))
	status, err := repo.SyncStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.SyncError, status)

	mirror.SetError(nil)
	require.NoError(t, processor.SyncOne(ctx, id))
	status, err = repo.SyncStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.SyncSynced, status)
	require.Len(t, mirror.Rows(), 1)

	// already synced is a no-op
	require.NoError(t, processor.SyncOne(ctx, id))
	assert.Len(t, mirror.Rows(), 1)

	// gone before the event arrived
	assert.NoError(t, processor.SyncOne(ctx, 424242))
}

func TestSyncProcessor_Remove(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	mirror := memory.New()
	processor := NewSyncProcessor(repo, mirror, DefaultSyncProcessorConfig(), log.Discard())
	saved := seedExpenses(t, repo, 2)

	require.Equal(t, 2, processor.Sweep(ctx))
	require.NoError(t, processor.Remove(ctx, saved[0].ID, saved[0].Date))

	rows := mirror.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, saved[1].ID, rows[0].ID)

	noMirror := NewSyncProcessor(repo, nil, DefaultSyncProcessorConfig(), nil)
	assert.NoError(t, noMirror.Remove(ctx, saved[1].ID, saved[1].Date))
	assert.Error(t, noMirror.SyncOne(ctx, saved[1].ID))
}

func TestSyncProcessor_SweepBatches(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	mirror := memory.New()
	processor := NewSyncProcessor(repo, mirror, SyncProcessorConfig{PollInterval: time.Hour, BatchSize: 2}, log.Discard())
	seedExpenses(t, repo, 5)

	assert.Equal(t, 2, processor.Sweep(ctx))
	assert.Equal(t, 2, processor.Sweep(ctx))
	assert.Equal(t, 1, processor.Sweep(ctx))
	assert.Equal(t, 0, processor.Sweep(ctx))
	assert.Len(t, mirror.Rows(), 5)
}

func TestSyncProcessor_StartStop(t *testing.T) {
	repo := newTestRepo(t)
	mirror := memory.New()
	processor := NewSyncProcessor(repo, mirror, SyncProcessorConfig{PollInterval: 20 * time.Millisecond, BatchSize: 10}, log.Discard())
	seedExpenses(t, repo, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, processor.Start(ctx))
	assert.True(t, processor.IsRunning())
	assert.Error(t, processor.Start(ctx), "starting twice must fail")

	assert.Eventually(t, func() bool { return len(mirror.Rows()) == 3 }, 2*time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, processor.Stop(stopCtx))
	assert.False(t, processor.IsRunning())
}
