// Package worker exports stored expenses to Google Sheets.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"neovest/internal/amqp"
	"neovest/internal/core"
	applog "neovest/internal/log"
	"neovest/internal/records"
	"neovest/internal/sheets"
)

const startupBatchMultiplier = 5

// Store is the slice of the SQLite repository the worker needs.
type Store interface {
	GetExpense(ctx context.Context, id string) (core.Expense, error)
	PendingSync(ctx context.Context, limit, maxAttempts int) ([]core.Expense, error)
	SyncState(ctx context.Context, id string) (synced bool, attempts int, err error)
	MarkSynced(ctx context.Context, id string) error
	MarkSyncError(ctx context.Context, id string, cause error) error
}

// Consumer delivers expense messages until ctx is done.
type Consumer interface {
	ConsumeExpenseRecorded(ctx context.Context, handler amqp.Handler) error
}

// SyncWorker handles synchronization of expenses from SQLite to Google Sheets.
// Messages and the periodic sweep share one lock so a row is never appended twice.
type SyncWorker struct {
	store       Store
	exporter    sheets.Exporter
	batchSize   int
	maxAttempts int
	interval    time.Duration
	logger      *applog.Logger

	mu sync.Mutex
}

// NewSyncWorker builds a worker. An expense whose export failed maxAttempts
// times is no longer retried.
func NewSyncWorker(store Store, exporter sheets.Exporter, batchSize, maxAttempts int, interval time.Duration, logger *applog.Logger) *SyncWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &SyncWorker{
		store:       store,
		exporter:    exporter,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		interval:    interval,
		logger:      logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleExpenseRecorded processes a single message from AMQP. Unknown ids and
// expenses out of attempts are acknowledged and dropped; other export failures
// are returned so the message is requeued.
func (w *SyncWorker) HandleExpenseRecorded(ctx context.Context, msg *amqp.ExpenseRecorded) error {
	w.logger.InfoContext(ctx, "Processing export message",
		applog.FieldExpenseID, msg.ID,
		applog.FieldUserID, msg.UserID)

	w.mu.Lock()
	defer w.mu.Unlock()

	synced, attempts, err := w.store.SyncState(ctx, msg.ID)
	if errors.Is(err, records.ErrNotFound) {
		w.logger.WarnContext(ctx, "Expense in message not found, dropping", applog.FieldExpenseID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("check sync state: %w", err)
	}
	if synced {
		w.logger.DebugContext(ctx, "Expense already exported", applog.FieldExpenseID, msg.ID)
		return nil
	}
	if attempts >= w.maxAttempts {
		w.logger.WarnContext(ctx, "Expense out of export attempts, dropping message",
			applog.FieldExpenseID, msg.ID, "attempts", attempts)
		return nil
	}

	expense, err := w.store.GetExpense(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}
	if err := w.export(ctx, expense); err != nil {
		if attempts+1 >= w.maxAttempts {
			w.logger.ErrorContext(ctx, "Giving up on expense export",
				applog.FieldExpenseID, msg.ID, "attempts", attempts+1)
			return nil
		}
		return err
	}
	return nil
}

// ProcessPendingExpenses exports rows that never got a message through,
// oldest first, skipping rows out of attempts. It keeps going past
// individual failures.
func (w *SyncWorker) ProcessPendingExpenses(ctx context.Context) (synced, failed int, err error) {
	return w.sweep(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger sweep to recover from worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.sweep(ctx, w.batchSize*startupBatchMultiplier)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup sync completed", "synced", synced, "errors", failed)
	return nil
}

func (w *SyncWorker) sweep(ctx context.Context, limit int) (synced, failed int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pending, err := w.store.PendingSync(ctx, limit, w.maxAttempts)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending expenses: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}
	w.logger.InfoContext(ctx, "Processing pending expenses", applog.FieldRecordCount, len(pending))

	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			return synced, failed, err
		}
		if err := w.export(ctx, e); err != nil {
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

// export appends one expense and records the outcome. Caller holds w.mu.
func (w *SyncWorker) export(ctx context.Context, e core.Expense) error {
	ref, err := w.exporter.Append(ctx, e)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to export expense",
			applog.FieldExpenseID, e.ID,
			applog.FieldError, err.Error(),
			applog.FieldErrorType, applog.ErrorTypeNetwork)
		if markErr := w.store.MarkSyncError(ctx, e.ID, err); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error",
				applog.FieldExpenseID, e.ID,
				applog.FieldError, markErr.Error())
		}
		return fmt.Errorf("append to sheets: %w", err)
	}

	// The row is in the sheet; a failed mark only means a possible duplicate later.
	if err := w.store.MarkSynced(ctx, e.ID); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark as synced",
			applog.FieldExpenseID, e.ID,
			applog.FieldError, err.Error())
	}

	w.logger.InfoContext(ctx, "Exported expense",
		applog.FieldExpenseID, e.ID,
		applog.FieldSheetsRef, ref,
		applog.FieldAmount, e.Amount.StringFixed(2),
		applog.FieldCategory, e.Category)
	return nil
}

// Run performs the startup check, then consumes messages and sweeps on a
// ticker until ctx is cancelled. A nil consumer runs the sweep only.
func (w *SyncWorker) Run(ctx context.Context, consumer Consumer) error {
	if err := w.StartupSyncCheck(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Startup sync check failed", applog.FieldError, err.Error())
	}

	g, ctx := errgroup.WithContext(ctx)

	if consumer != nil {
		g.Go(func() error {
			err := consumer.ConsumeExpenseRecorded(ctx, w.HandleExpenseRecorded)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				synced, failed, err := w.ProcessPendingExpenses(ctx)
				if err != nil && !errors.Is(err, context.Canceled) {
					w.logger.ErrorContext(ctx, "Periodic sync failed", applog.FieldError, err.Error())
					continue
				}
				if synced+failed > 0 {
					w.logger.InfoContext(ctx, "Periodic sync completed", "synced", synced, "errors", failed)
				}
			}
		}
	})

	return g.Wait()
}
