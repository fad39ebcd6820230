// Package services holds the orchestration that sits between the record store
// and the export pipeline.
package services

import (
	"context"
	"errors"
	"fmt"

	"neovest/internal/core"
	applog "neovest/internal/log"
	"neovest/internal/records"
)

// Publisher announces stored expenses to the export worker.
type Publisher interface {
	PublishExpenseRecorded(ctx context.Context, id, userID string) error
	Close() error
}

// ExpenseService stores expenses and publishes an export message for each.
// It satisfies records.Writer so handlers never see the broker.
type ExpenseService struct {
	writer    records.Writer
	publisher Publisher // nil disables export
	logger    *applog.Logger
}

var _ records.Writer = (*ExpenseService)(nil)

func NewExpenseService(writer records.Writer, publisher Publisher, logger *applog.Logger) *ExpenseService {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ExpenseService{
		writer:    writer,
		publisher: publisher,
		logger:    logger.WithComponent(applog.ComponentExpense),
	}
}

// AddRecord saves the expense first. A publish failure is logged and
// swallowed: the row stays unsynced and the worker's sweep picks it up.
func (s *ExpenseService) AddRecord(ctx context.Context, userID string, e core.NewExpense) (string, error) {
	if s.writer == nil {
		return "", errors.New("expense service has no store")
	}
	id, err := s.writer.AddRecord(ctx, userID, e)
	if err != nil {
		return "", fmt.Errorf("save expense: %w", err)
	}

	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP client not available, skipping export message", applog.FieldExpenseID, id)
		return id, nil
	}
	if err := s.publisher.PublishExpenseRecorded(ctx, id, userID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish export message",
			applog.FieldExpenseID, id,
			applog.FieldUserID, userID,
			applog.FieldError, err.Error(),
			applog.FieldErrorType, applog.ErrorTypeNetwork)
	}
	return id, nil
}

// Close releases the publisher. The store is owned by whoever built it.
func (s *ExpenseService) Close() error {
	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.Close(); err != nil {
		return fmt.Errorf("close publisher: %w", err)
	}
	return nil
}
