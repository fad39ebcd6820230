package adapters

import (
	"context"
	"time"

	"neovest/internal/core"
	"neovest/internal/records"
	"neovest/internal/services"
	"neovest/internal/storage"
)

// SQLiteAdapter routes writes through ExpenseService so every stored expense
// is also published for export, while reads go straight to SQLite.
type SQLiteAdapter struct {
	storage *storage.SQLiteRepository
	service *services.ExpenseService
}

var (
	_ records.Store     = (*SQLiteAdapter)(nil)
	_ records.UserStore = (*SQLiteAdapter)(nil)
)

func NewSQLiteAdapter(storage *storage.SQLiteRepository, service *services.ExpenseService) *SQLiteAdapter {
	return &SQLiteAdapter{
		storage: storage,
		service: service,
	}
}

// AddRecord implements records.Writer
func (a *SQLiteAdapter) AddRecord(ctx context.Context, userID string, e core.NewExpense) (string, error) {
	return a.service.AddRecord(ctx, userID, e)
}

// QueryRecords implements records.Querier
func (a *SQLiteAdapter) QueryRecords(ctx context.Context, userID string, limit int) ([]core.Expense, error) {
	return a.storage.QueryRecords(ctx, userID, limit)
}

func (a *SQLiteAdapter) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	return a.storage.GetExpense(ctx, id)
}

func (a *SQLiteAdapter) CreateUser(ctx context.Context, u core.User) error {
	return a.storage.CreateUser(ctx, u)
}

func (a *SQLiteAdapter) UserByEmail(ctx context.Context, email string) (core.User, error) {
	return a.storage.UserByEmail(ctx, email)
}

func (a *SQLiteAdapter) UserByID(ctx context.Context, id string) (core.User, error) {
	return a.storage.UserByID(ctx, id)
}

func (a *SQLiteAdapter) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	return a.storage.Revoke(ctx, tokenID, expiresAt)
}

func (a *SQLiteAdapter) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return a.storage.IsRevoked(ctx, tokenID)
}

func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	return a.storage.Ping(ctx)
}

// Close closes the publisher, then the database.
func (a *SQLiteAdapter) Close() error {
	serviceErr := a.service.Close()
	if err := a.storage.Close(); err != nil {
		return err
	}
	return serviceErr
}
