package adapters

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"neovest/internal/core"
	applog "neovest/internal/log"
	"neovest/internal/services"
	"neovest/internal/storage"
)

type recordingPublisher struct {
	ids    []string
	closed bool
}

func (p *recordingPublisher) PublishExpenseRecorded(_ context.Context, id, _ string) error {
	p.ids = append(p.ids, id)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func TestSQLiteAdapterWritesThroughService(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "neovest.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	pub := &recordingPublisher{}
	logger := applog.New(applog.Config{Output: io.Discard})
	a := NewSQLiteAdapter(repo, services.NewExpenseService(repo, pub, logger))

	id, err := a.AddRecord(ctx, "u1", core.NewExpense{
		Amount:        decimal.NewFromInt(450),
		Category:      "Transportation",
		Description:   "Cab to airport",
		Date:          time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		PaymentMethod: core.Card,
	})
	if err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	if len(pub.ids) != 1 || pub.ids[0] != id {
		t.Fatalf("expected publish for %s, got %v", id, pub.ids)
	}

	got, err := a.QueryRecords(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("QueryRecords: %v", err)
	}
	if len(got) != 1 || got[0].ID != id {
		t.Fatalf("unexpected records: %+v", got)
	}
	if err := a.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !pub.closed {
		t.Error("publisher not closed")
	}
	if err := a.Ping(ctx); err == nil {
		t.Error("expected Ping to fail after Close")
	}
}
