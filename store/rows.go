package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type scanner interface{ Scan(...any) error }

func getRow[T any](ctx context.Context, t *sqlTx, kind, query, id string, scan func(scanner) (*T, error)) (*T, error) {
	v, err := scan(t.q.QueryRowContext(ctx, t.db.Q(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return v, nil
}

func listRows[T any](ctx context.Context, t *sqlTx, kind, query string, scan func(scanner) (*T, error)) ([]*T, error) {
	rows, err := t.q.QueryContext(ctx, t.db.Q(query))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func deleteRow(ctx context.Context, t *sqlTx, table, kind, id string) error {
	res, err := t.q.ExecContext(ctx, t.db.Q(fmt.Sprintf(`DELETE FROM %s WHERE id=?`, table)), id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func encodeIDs(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(ids)
	return string(data)
}

func decodeIDs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil
	}
	return ids
}
