package feedback

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepository stores feedback through database/sql and the lib/pq driver.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	if db == nil {
		panic("feedback: sql db required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, fb *Feedback) error {
	query := `
		INSERT INTO feedback (id, user_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, fb.ID, fb.UserID, fb.Rating, nullString(fb.Comment), fb.CreatedAt); err != nil {
		return fmt.Errorf("feedback: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*Feedback, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, rating, coalesce(comment, ''), created_at
		FROM feedback
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("feedback: list failed: %w", err)
	}
	defer rows.Close()

	out := make([]*Feedback, 0)
	for rows.Next() {
		var fb Feedback
		if err := rows.Scan(&fb.ID, &fb.UserID, &fb.Rating, &fb.Comment, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("feedback: scan failed: %w", err)
		}
		out = append(out, &fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("feedback: list failed: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
