// Package sheets defines the spreadsheet export port used by the sync worker.
package sheets

import (
	"context"

	"neovest/internal/core"
)

// Exporter appends stored expenses to an external spreadsheet.
type Exporter interface {
	// Append writes one row and returns the range it landed in.
	Append(ctx context.Context, e core.Expense) (string, error)
}
