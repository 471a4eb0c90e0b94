package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultHistoryLimit is used when List is called with limit <= 0.
const DefaultHistoryLimit = 100

// Action is one recorded button activation.
type Action struct {
	ID         int64     `json:"id"`
	Serial     string    `json:"serial"`
	Key        uint8     `json:"key"`
	Source     string    `json:"source"`
	Components []string  `json:"components"`
	Modules    []string  `json:"modules"`
	OccurredAt time.Time `json:"occurred_at"`
}

// HistoryRepository records button activations.
type HistoryRepository interface {
	Record(ctx context.Context, a *Action) error
	List(ctx context.Context, serial string, limit int) ([]Action, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteHistoryRepository implements HistoryRepository using SQLite.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite-backed history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Record inserts a and sets its ID.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, a *Action) error {
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now().UTC()
	}
	components, err := json.Marshal(nonNil(a.Components))
	if err != nil {
		return fmt.Errorf("encoding components: %w", err)
	}
	modules, err := json.Marshal(nonNil(a.Modules))
	if err != nil {
		return fmt.Errorf("encoding modules: %w", err)
	}

	const query = `INSERT INTO action_history (serial, key, source, components, modules, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		a.Serial, a.Key, a.Source, string(components), string(modules),
		a.OccurredAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting action for %s: %w", a.Serial, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		a.ID = id
	}
	return nil
}

// List returns the most recent actions of serial, newest first.
func (r *SQLiteHistoryRepository) List(ctx context.Context, serial string, limit int) ([]Action, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	const query = `SELECT id, serial, key, source, components, modules, occurred_at
		FROM action_history WHERE serial = ? ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, serial, limit)
	if err != nil {
		return nil, fmt.Errorf("listing actions: %w", err)
	}
	defer rows.Close()

	out := []Action{}
	for rows.Next() {
		var (
			a                   Action
			components, modules string
			occurred            string
		)
		if err := rows.Scan(&a.ID, &a.Serial, &a.Key, &a.Source, &components, &modules, &occurred); err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		_ = json.Unmarshal([]byte(components), &a.Components) //nolint:errcheck // written by Record
		_ = json.Unmarshal([]byte(modules), &a.Modules)       //nolint:errcheck // written by Record
		a.OccurredAt = parseTime(occurred)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Prune deletes actions older than before.
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM action_history WHERE occurred_at < ?`,
		before.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("pruning actions: %w", err)
	}
	return res.RowsAffected()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
