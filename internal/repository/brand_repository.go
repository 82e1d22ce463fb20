package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"price-pipeline/internal/domain"
)

var (
	ErrBrandNotFound = errors.New("brand not found")
)

// BrandRepository defines data access for brand catalog scopes.
// The crawl/match markers are cycle timestamps: MarkCrawled is called
// once at the start of a crawl cycle so GetMissingProducts has a stable
// reference point, independent of per-product updates.
type BrandRepository interface {
	Upsert(ctx context.Context, name, searchURL string) error
	Get(ctx context.Context, name string) (*domain.Brand, error)
	MarkCrawled(ctx context.Context, name string) error
	MarkMatched(ctx context.Context, name string) error
}

type brandRepository struct {
	db *sql.DB
}

// NewBrandRepository creates a new instance of BrandRepository
func NewBrandRepository(db *sql.DB) BrandRepository {
	return &brandRepository{db: db}
}

// Upsert creates the brand or updates its search URL. Brands are never
// deleted.
func (r *brandRepository) Upsert(ctx context.Context, name, searchURL string) error {
	query := `
		INSERT INTO brands (brand_name, search_url, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (brand_name) DO UPDATE SET
			search_url = EXCLUDED.search_url
	`

	_, err := r.db.ExecContext(ctx, query, name, searchURL)
	if err != nil {
		return fmt.Errorf("failed to upsert brand: %w", err)
	}

	return nil
}

// Get retrieves a brand by name.
func (r *brandRepository) Get(ctx context.Context, name string) (*domain.Brand, error) {
	query := `
		SELECT brand_name, search_url, last_crawled_at, last_matched_at, created_at
		FROM brands
		WHERE brand_name = $1
	`

	brand := &domain.Brand{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&brand.Name,
		&brand.SearchURL,
		&brand.LastCrawledAt,
		&brand.LastMatchedAt,
		&brand.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBrandNotFound
		}
		return nil, fmt.Errorf("failed to find brand: %w", err)
	}

	return brand, nil
}

// MarkCrawled advances the brand's crawl-cycle marker. Last-writer-wins
// is fine here: the marker only ever moves forward.
func (r *brandRepository) MarkCrawled(ctx context.Context, name string) error {
	return r.mark(ctx, name, "last_crawled_at")
}

// MarkMatched advances the brand's match-cycle marker.
func (r *brandRepository) MarkMatched(ctx context.Context, name string) error {
	return r.mark(ctx, name, "last_matched_at")
}

func (r *brandRepository) mark(ctx context.Context, name, column string) error {
	query := fmt.Sprintf("UPDATE brands SET %s = now() WHERE brand_name = $1", column)

	result, err := r.db.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("failed to mark brand %s: %w", column, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrBrandNotFound
	}

	return nil
}
