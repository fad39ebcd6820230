package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"neovest/internal/core"
	"neovest/internal/records"

	_ "modernc.org/sqlite"
)

// Fixed width so that TEXT ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const expenseColumns = `id, user_id, amount, category, description, occurred_at,
	payment_method, tags, created_at, updated_at`

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable; used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

// AddRecord implements records.Writer.
func (r *SQLiteRepository) AddRecord(ctx context.Context, userID string, n core.NewExpense) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	ts := r.now()
	e := core.Expense{
		ID:            id.String(),
		UserID:        userID,
		Amount:        n.Amount,
		Category:      n.Category,
		Description:   n.Description,
		Date:          n.Date,
		PaymentMethod: n.PaymentMethod,
		Tags:          n.Tags,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	if err := e.Validate(); err != nil {
		return "", err
	}

	tags, err := json.Marshal(nonNil(e.Tags))
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Amount.String(), e.Category, e.Description, formatTime(e.Date),
		string(e.PaymentMethod), string(tags), formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return "", fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"user_id", e.UserID,
		"amount", e.Amount.String(),
		"category", e.Category)

	return e.ID, nil
}

// QueryRecords implements records.Querier.
func (r *SQLiteRepository) QueryRecords(ctx context.Context, userID string, limit int) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ?
		ORDER BY occurred_at DESC, created_at DESC
		LIMIT ?`, userID, records.EffectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

// GetExpense retrieves a single expense by id.
func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, records.ErrNotFound)
	}
	return e, err
}

// PendingSync returns expenses not yet exported, fewest failed attempts
// first, then oldest first. Rows that already failed maxAttempts times are
// left out; maxAttempts <= 0 returns them all.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit, maxAttempts int) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE synced_at IS NULL AND (? <= 0 OR sync_attempts < ?)
		ORDER BY sync_attempts ASC, created_at ASC, id ASC
		LIMIT ?`, maxAttempts, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkSynced marks an expense as successfully exported.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET synced_at = ?, sync_error = NULL WHERE id = ?`,
		formatTime(r.now()), id)
	if err != nil {
		return fmt.Errorf("mark expense synced: %w", err)
	}
	slog.InfoContext(ctx, "Expense marked as synced", "id", id)
	return nil
}

// IsSynced reports whether the expense has already been exported.
func (r *SQLiteRepository) IsSynced(ctx context.Context, id string) (bool, error) {
	synced, _, err := r.SyncState(ctx, id)
	return synced, err
}

// SyncState reports whether the expense was exported and how many export
// attempts have failed so far.
func (r *SQLiteRepository) SyncState(ctx context.Context, id string) (synced bool, attempts int, err error) {
	var syncedAt sql.NullString
	err = r.db.QueryRowContext(ctx, `SELECT synced_at, sync_attempts FROM expenses WHERE id = ?`, id).Scan(&syncedAt, &attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, fmt.Errorf("expense %s: %w", id, records.ErrNotFound)
	}
	if err != nil {
		return false, 0, fmt.Errorf("check sync state: %w", err)
	}
	return syncedAt.Valid, attempts, nil
}

// MarkSyncError records a failed export attempt.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET sync_error = ?, sync_attempts = sync_attempts + 1 WHERE id = ?`,
		msg, id)
	if err != nil {
		return fmt.Errorf("mark expense sync error: %w", err)
	}
	slog.WarnContext(ctx, "Expense marked with sync error", "id", id, "error", msg)
	return nil
}

// CreateUser implements records.UserStore.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users
		(id, email, display_name, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, strings.TrimSpace(u.Email), u.DisplayName, u.PasswordHash,
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return records.ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.userWhere(ctx, `email = ?`, strings.TrimSpace(email))
}

func (r *SQLiteRepository) UserByID(ctx context.Context, id string) (core.User, error) {
	return r.userWhere(ctx, `id = ?`, id)
}

func (r *SQLiteRepository) userWhere(ctx context.Context, cond string, arg any) (core.User, error) {
	var (
		u                core.User
		created, updated string
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, email, display_name, password_hash, created_at, updated_at
		FROM users WHERE `+cond, arg).
		Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, records.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return core.User{}, fmt.Errorf("parse created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return core.User{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return u, nil
}

// Revoke records a signed-out session until its expiry.
func (r *SQLiteRepository) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO revoked_sessions (token_id, expires_at) VALUES (?, ?)
		ON CONFLICT(token_id) DO UPDATE SET expires_at = excluded.expires_at`,
		tokenID, formatTime(expiresAt))
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM revoked_sessions WHERE token_id = ? AND expires_at > ?`,
		tokenID, formatTime(r.now())).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check revoked session: %w", err)
	}
	return n > 0, nil
}

// PurgeRevoked deletes revocations whose tokens have expired anyway.
func (r *SQLiteRepository) PurgeRevoked(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM revoked_sessions WHERE expires_at <= ?`, formatTime(r.now()))
	if err != nil {
		return 0, fmt.Errorf("purge revoked sessions: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(s rowScanner) (core.Expense, error) {
	var (
		e                          core.Expense
		amount, method, tags       string
		occurred, created, updated string
	)
	if err := s.Scan(&e.ID, &e.UserID, &amount, &e.Category, &e.Description, &occurred,
		&method, &tags, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Expense{}, err
		}
		return core.Expense{}, fmt.Errorf("scan expense: %w", err)
	}

	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Expense{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if e.Date, err = parseTime(occurred); err != nil {
		return core.Expense{}, fmt.Errorf("parse occurred_at: %w", err)
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return core.Expense{}, fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Expense{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return core.Expense{}, fmt.Errorf("decode tags: %w", err)
	}
	if len(e.Tags) == 0 {
		e.Tags = nil
	}
	e.PaymentMethod = core.PaymentMethod(method)
	return e, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
