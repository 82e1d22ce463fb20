package repository

import (
	"context"
	"database/sql"
	"fmt"

	"price-pipeline/internal/domain"
)

// StatsRepository serves the read-only aggregations consumed by
// reporting collaborators.
type StatsRepository interface {
	BrandStats(ctx context.Context, brand string) (*domain.BrandStats, error)
	PriceComparison(ctx context.Context, brand string, limit int) ([]*domain.PriceComparisonRow, error)
}

type statsRepository struct {
	db *sql.DB
}

// NewStatsRepository creates a new instance of StatsRepository.
func NewStatsRepository(db *sql.DB) StatsRepository {
	return &statsRepository{db: db}
}

// BrandStats counts a brand's products by pipeline stage and matching
// status.
func (r *statsRepository) BrandStats(ctx context.Context, brand string) (*domain.BrandStats, error) {
	stats := &domain.BrandStats{
		BrandName:  brand,
		ByStage:    map[domain.Stage]int{},
		ByMatching: map[domain.MatchingStatus]int{},
	}

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE brand_name = $1`, brand,
	).Scan(&stats.TotalProducts)
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT pipeline_stage, COUNT(*)
		FROM products
		WHERE brand_name = $1
		GROUP BY pipeline_stage
	`, brand)
	if err != nil {
		return nil, fmt.Errorf("failed to count products by stage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stage domain.Stage
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stage count: %w", err)
		}
		stats.ByStage[stage] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stage counts: %w", err)
	}

	rows, err = r.db.QueryContext(ctx, `
		SELECT matching_status, COUNT(*)
		FROM products
		WHERE brand_name = $1
		GROUP BY matching_status
	`, brand)
	if err != nil {
		return nil, fmt.Errorf("failed to count products by matching status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status domain.MatchingStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan matching count: %w", err)
		}
		stats.ByMatching[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matching counts: %w", err)
	}

	return stats, nil
}

// PriceComparison reads the v_price_comparison view: matched products
// with both prices present, biggest savings first.
func (r *statsRepository) PriceComparison(ctx context.Context, brand string, limit int) ([]*domain.PriceComparisonRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, brand_name, name, matched_code, matched_name,
		       platform_a_price, platform_b_price, cheaper_platform, savings
		FROM v_price_comparison
		WHERE brand_name = $1
		ORDER BY savings DESC
		LIMIT $2
	`, brand, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price comparison: %w", err)
	}
	defer rows.Close()

	results := []*domain.PriceComparisonRow{}
	for rows.Next() {
		row := &domain.PriceComparisonRow{}
		err := rows.Scan(
			&row.ProductID, &row.BrandName, &row.Name,
			&row.MatchedCode, &row.MatchedName,
			&row.PlatformAPrice, &row.PlatformBPrice,
			&row.CheaperPlatform, &row.Savings,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price comparison row: %w", err)
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price comparison: %w", err)
	}

	return results, nil
}
