package db

import (
	"context"
	"fmt"
	"strings"
)

var allowedColumns = map[string]map[string]bool{
	"tasks": {"title": true, "description": true, "status": true, "completed_at": true},
}

// updateRow is a generic helper for updating a user-owned row's fields.
func (d *DB) updateRow(ctx context.Context, table, userID string, id int64, fields map[string]any) error {
	allowed, ok := allowedColumns[table]
	if !ok {
		return fmt.Errorf("unknown table: %s", table)
	}
	var setClauses []string
	var args []any
	for col, val := range fields {
		if !allowed[col] {
			return fmt.Errorf("disallowed column %q for table %s", col, table)
		}
		setClauses = append(setClauses, col+" = ?")
		args = append(args, val)
	}
	setClauses = append(setClauses, "updated_at = "+nowExpr)
	args = append(args, id, userID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND user_id = ?", table, strings.Join(setClauses, ", "))
	res, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating %s %d: %w", table, id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, ErrNotFound)
	}
	return nil
}

// nowExpr matches the column defaults in schema.sql; millisecond precision keeps
// message ordering stable within a second.
const nowExpr = "strftime('%Y-%m-%d %H:%M:%f', 'now')"

// nullStr stores an empty string as NULL. Any other value, including "null", is kept.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
