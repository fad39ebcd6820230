package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neovest/internal/core"
	"neovest/internal/storage"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func testDB(t *testing.T) string {
	t.Helper()
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("LOG_LEVEL", "error")
	return filepath.Join(t.TempDir(), "neovest.db")
}

func TestMigrateReportsVersion(t *testing.T) {
	db := testDB(t)

	out, err := run(t, "migrate", "status", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "version 0 (clean)")

	out, err = run(t, "migrate", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "at schema version 3")
}

func TestUsersAddAndShow(t *testing.T) {
	db := testDB(t)

	out, err := run(t, "users", "add", "--db", db, "--email", "Asha@Example.com", "--name", "Asha", "--password", "correct-horse")
	require.NoError(t, err)
	assert.Contains(t, out, "Created user asha@example.com")

	_, err = run(t, "users", "add", "--db", db, "--email", "asha@example.com", "--password", "correct-horse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	out, err = run(t, "users", "show", "asha@example.com", "--db", db, "--timezone", "UTC")
	require.NoError(t, err)
	assert.Contains(t, out, "Asha")

	_, err = run(t, "users", "show", "nobody@example.com", "--db", db)
	require.Error(t, err)
}

func TestUsersAddPasswordFromEnv(t *testing.T) {
	db := testDB(t)
	t.Setenv(passwordEnv, "from-the-env")

	_, err := run(t, "users", "add", "--db", db, "--email", "env@example.com")
	require.NoError(t, err)
}

func TestUsersAddRejectsWeakPassword(t *testing.T) {
	db := testDB(t)
	_, err := run(t, "users", "add", "--db", db, "--email", "weak@example.com", "--password", "short")
	require.Error(t, err)
}

func TestExpensesStatsAndExport(t *testing.T) {
	db := testDB(t)
	_, err := run(t, "users", "add", "--db", db, "--email", "ravi@example.com", "--password", "correct-horse")
	require.NoError(t, err)

	repo, err := storage.NewSQLiteRepository(db)
	require.NoError(t, err)
	u, err := repo.UserByEmail(context.Background(), "ravi@example.com")
	require.NoError(t, err)
	_, err = repo.AddRecord(context.Background(), u.ID, core.NewExpense{
		Amount:        decimal.RequireFromString("123456.5"),
		Category:      "Housing",
		Description:   "Rent",
		Date:          time.Now(),
		PaymentMethod: core.BankTransfer,
		Tags:          []string{"monthly"},
	})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	out, err := run(t, "expenses", "--db", db, "--email", "ravi@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Rent")
	assert.Contains(t, out, "₹1,23,456.5")
	assert.Contains(t, out, "Bank Transfer")

	out, err = run(t, "stats", "--db", db, "--email", "ravi@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Housing")
	assert.Contains(t, out, "100.0%")

	out, err = run(t, "export", "status", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "1 expense(s) pending export")

	out, err = run(t, "sessions", "purge", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 0 expired revocation(s)")
}

func TestExpensesUnknownUser(t *testing.T) {
	db := testDB(t)
	_, err := run(t, "expenses", "--db", db, "--email", "ghost@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no user with email")
}

func TestInvalidTimezone(t *testing.T) {
	db := testDB(t)
	_, err := run(t, "migrate", "status", "--db", db, "--timezone", "Mars/Olympus")
	require.Error(t, err)
}

func TestRecommendationsAddAndList(t *testing.T) {
	db := testDB(t)
	_, err := run(t, "users", "add", "--db", db, "--email", "meera@example.com", "--password", "correct-horse")
	require.NoError(t, err)

	doc := filepath.Join(t.TempDir(), "rec.json")
	require.NoError(t, os.WriteFile(doc, []byte(`{
		"Title": "Travel over budget",
		"Confidence": 0.8,
		"Priority": "high",
		"Payload": {"type": "budget_alert", "data": {"month": "2025-03", "category": "Travel", "budgeted": "5000", "spent": "6200"}}
	}`), 0o644))

	out, err := run(t, "recommendations", "add", "--db", db, "--email", "meera@example.com", "--file", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "Stored budget_alert recommendation")

	out, err = run(t, "recommendations", "list", "--db", db, "--email", "meera@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Travel over budget")
	assert.Contains(t, out, "80%")

	out, err = run(t, "recs", "list", "--db", db, "--email", "meera@example.com", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, "budget_alert")
	assert.Contains(t, out, "6200")
}

func TestRecommendationsAddRejectsUnknownKind(t *testing.T) {
	db := testDB(t)
	_, err := run(t, "users", "add", "--db", db, "--email", "kiran@example.com", "--password", "correct-horse")
	require.NoError(t, err)

	doc := filepath.Join(t.TempDir(), "rec.json")
	require.NoError(t, os.WriteFile(doc, []byte(`{"Title": "x", "Priority": "low", "Payload": {"type": "lottery", "data": {}}}`), 0o644))

	_, err = run(t, "recommendations", "add", "--db", db, "--email", "kiran@example.com", "--file", doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown recommendation kind")
}
