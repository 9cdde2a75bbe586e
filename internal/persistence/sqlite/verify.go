package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrCorrupt reports that SQLite found structural damage in the database.
var ErrCorrupt = errors.New("database failed integrity check")

// CorruptionError carries the diagnostic rows returned by the check pragma.
type CorruptionError struct {
	Problems []string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCorrupt, strings.Join(e.Problems, "; "))
}

func (e *CorruptionError) Unwrap() error { return ErrCorrupt }

// Check runs PRAGMA quick_check on db, or the slower integrity_check when
// full is set. A healthy database yields exactly one "ok" row.
func Check(ctx context.Context, db *sql.DB, full bool) error {
	pragma := "PRAGMA quick_check"
	if full {
		pragma = "PRAGMA integrity_check"
	}
	rows, err := db.QueryContext(ctx, pragma)
	if err != nil {
		return fmt.Errorf("%s: %w", pragma, err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("%s: scan: %w", pragma, err)
		}
		problems = append(problems, line)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%s: %w", pragma, err)
	}

	switch {
	case len(problems) == 1 && strings.EqualFold(problems[0], "ok"):
		return nil
	case len(problems) == 0:
		return &CorruptionError{Problems: []string{"no result rows"}}
	default:
		return &CorruptionError{Problems: problems}
	}
}
