package repository

import (
	"context"
	"database/sql"
	"fmt"

	"price-pipeline/internal/domain"
)

// ErrorRepository records transient pipeline failures. Rows in
// pipeline_errors are an append-only audit trail; a product may
// accumulate many across retries.
type ErrorRepository interface {
	// Log appends one failure event, stamps the product's last_error
	// and moves it to the failed stage, all in one transaction.
	// Accumulated match data is left in place.
	Log(ctx context.Context, productID int64, stage domain.Stage, code domain.FailureCode, message string) error

	// ListByProduct returns a product's failure audit trail, oldest
	// first.
	ListByProduct(ctx context.Context, productID int64) ([]*domain.PipelineError, error)
}

type errorRepository struct {
	db *sql.DB
}

// NewErrorRepository creates a new instance of ErrorRepository.
func NewErrorRepository(db *sql.DB) ErrorRepository {
	return &errorRepository{db: db}
}

func (r *errorRepository) Log(ctx context.Context, productID int64, stage domain.Stage, code domain.FailureCode, message string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pipeline_errors (product_id, stage, error_code, error_message, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, productID, stage, code, message)
	if err != nil {
		return fmt.Errorf("failed to insert pipeline error: %w", err)
	}

	summary := fmt.Sprintf("[%s] %s: %s", stage, code, truncate(message, 200))
	result, err := tx.ExecContext(ctx, `
		UPDATE products SET
			last_error = $2,
			pipeline_stage = 'failed'
		WHERE id = $1
	`, productID, summary)
	if err != nil {
		return fmt.Errorf("failed to mark product failed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit error log: %w", err)
	}

	return nil
}

func (r *errorRepository) ListByProduct(ctx context.Context, productID int64) ([]*domain.PipelineError, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, stage, error_code, error_message, created_at
		FROM pipeline_errors
		WHERE product_id = $1
		ORDER BY created_at, id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline errors: %w", err)
	}
	defer rows.Close()

	entries := []*domain.PipelineError{}
	for rows.Next() {
		e := &domain.PipelineError{}
		err := rows.Scan(&e.ID, &e.ProductID, &e.Stage, &e.ErrorCode, &e.ErrorMessage, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline error: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pipeline errors: %w", err)
	}

	return entries, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
