package repository

import (
	"context"
	"database/sql"
	"fmt"

	"price-pipeline/internal/domain"
)

// PriceHistoryRepository reads the append-only price ledger. Writes
// happen exclusively inside the crawl/match transactions in
// ProductRepository; nothing outside those paths may append entries.
type PriceHistoryRepository interface {
	ListByProduct(ctx context.Context, productID int64) ([]*domain.PriceHistoryEntry, error)
}

type priceHistoryRepository struct {
	db *sql.DB
}

// NewPriceHistoryRepository creates a new instance of PriceHistoryRepository.
func NewPriceHistoryRepository(db *sql.DB) PriceHistoryRepository {
	return &priceHistoryRepository{db: db}
}

// ListByProduct returns a product's price changes in observation order.
func (r *priceHistoryRepository) ListByProduct(ctx context.Context, productID int64) ([]*domain.PriceHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, platform, old_price, new_price, recorded_at
		FROM price_history
		WHERE product_id = $1
		ORDER BY recorded_at, id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list price history: %w", err)
	}
	defer rows.Close()

	entries := []*domain.PriceHistoryEntry{}
	for rows.Next() {
		e := &domain.PriceHistoryEntry{}
		err := rows.Scan(&e.ID, &e.ProductID, &e.Platform, &e.OldPrice, &e.NewPrice, &e.RecordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price history entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price history: %w", err)
	}

	return entries, nil
}
