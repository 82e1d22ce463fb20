package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"price-pipeline/internal/domain"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrInvalidStage       = errors.New("invalid pipeline stage for operation")
	ErrNotLockOwner       = errors.New("product is not locked by this owner")
	ErrInvalidMatchStatus = errors.New("match result status must be success or not_found")
)

// productColumns is the canonical select list for product rows.
const productColumns = `
	id, brand_name, external_product_id,
	name, product_url, current_price, original_price, discount_rate,
	first_seen_at, last_crawled_at, price_updated_at,
	translated_name, matched_code, matched_name, matched_url,
	matched_price, matched_list_price, match_confidence, last_matched_at,
	pipeline_stage, matching_status, last_error,
	lock_owner, lock_acquired_at
`

// ProductRepository enforces the crawled -> translated -> matched
// state machine. Every mutating method runs as a single transaction,
// so a crash leaves a product in its pre- or post-transition state.
type ProductRepository interface {
	// InsertCrawled upserts one crawl observation. A product whose
	// matching_status is already success keeps its stage and match
	// data; only platform-A price/stock fields move. Price changes are
	// recorded in the price_history ledger inside the same transaction.
	InsertCrawled(ctx context.Context, brand string, snap domain.CrawlSnapshot) (int64, error)

	// UpdateTranslation moves a product from crawled to translated.
	UpdateTranslation(ctx context.Context, id int64, translatedName string) error

	// UpdateMatchingResult moves a product from translated or failed to
	// matched. The caller must hold an unexpired lock on the product.
	UpdateMatchingResult(ctx context.Context, id int64, owner string, result domain.MatchResult) error

	// ResetFailed moves all failed products of a brand back to
	// translated for an explicit retry, clearing last_error and locks.
	// Returns the number of products reset.
	ResetFailed(ctx context.Context, brand string) (int64, error)

	GetByStage(ctx context.Context, brand string, stage domain.Stage, unlockedOnly bool) ([]*domain.Product, error)
	GetRecord(ctx context.Context, id int64) (*domain.ProductRecord, error)

	// GetMissing returns products not touched by the brand's most
	// recent crawl cycle. Rows are kept, not deleted: a delisted item
	// may come back and its match history stays usable.
	GetMissing(ctx context.Context, brand string) ([]*domain.Product, error)
}

type productRepository struct {
	db      *sql.DB
	lockTTL time.Duration
}

// NewProductRepository creates a new instance of ProductRepository.
// lockTTL bounds how long a worker lock is honored.
func NewProductRepository(db *sql.DB, lockTTL time.Duration) ProductRepository {
	return &productRepository{db: db, lockTTL: lockTTL}
}

// InsertCrawled upserts a crawl snapshot keyed on (brand, external id).
func (r *productRepository) InsertCrawled(ctx context.Context, brand string, snap domain.CrawlSnapshot) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Brands are created on first reference. The crawl-cycle marker is
	// not advanced here; that is BrandRepository.MarkCrawled's job.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO brands (brand_name, created_at)
		VALUES ($1, now())
		ON CONFLICT (brand_name) DO NOTHING
	`, brand)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure brand exists: %w", err)
	}

	var (
		productID int64
		oldPrice  *int64
		status    domain.MatchingStatus
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, current_price, matching_status
		FROM products
		WHERE brand_name = $1 AND external_product_id = $2
		FOR UPDATE
	`, brand, snap.ExternalProductID).Scan(&productID, &oldPrice, &status)

	switch {
	case err == sql.ErrNoRows:
		err = tx.QueryRowContext(ctx, `
			INSERT INTO products (
				brand_name, external_product_id, name, product_url,
				current_price, original_price, discount_rate,
				first_seen_at, last_crawled_at, price_updated_at,
				pipeline_stage, matching_status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now(), now(), 'crawled', 'pending')
			RETURNING id
		`, brand, snap.ExternalProductID, snap.Name, snap.ProductURL,
			snap.CurrentPrice, snap.OriginalPrice, snap.DiscountRate,
		).Scan(&productID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert product: %w", err)
		}

	case err != nil:
		return 0, fmt.Errorf("failed to look up product: %w", err)

	default:
		priceChanged := oldPrice != nil && snap.CurrentPrice != nil && *oldPrice != *snap.CurrentPrice
		if priceChanged {
			if err := recordPriceChange(ctx, tx, productID, domain.PlatformA, *oldPrice, *snap.CurrentPrice); err != nil {
				return 0, err
			}
		}

		if status == domain.MatchingSuccess {
			// Re-crawling must never erase a completed match: only
			// price/stock fields and timestamps move.
			_, err = tx.ExecContext(ctx, `
				UPDATE products SET
					name = $2, product_url = $3,
					current_price = $4, original_price = $5, discount_rate = $6,
					last_crawled_at = now(),
					price_updated_at = CASE WHEN $7 THEN now() ELSE price_updated_at END
				WHERE id = $1
			`, productID, snap.Name, snap.ProductURL,
				snap.CurrentPrice, snap.OriginalPrice, snap.DiscountRate, priceChanged)
		} else {
			// Fresher data supersedes incomplete work: the product
			// re-enters the pipeline at crawled.
			_, err = tx.ExecContext(ctx, `
				UPDATE products SET
					name = $2, product_url = $3,
					current_price = $4, original_price = $5, discount_rate = $6,
					last_crawled_at = now(),
					price_updated_at = CASE WHEN $7 THEN now() ELSE price_updated_at END,
					pipeline_stage = 'crawled',
					matching_status = 'pending'
				WHERE id = $1
			`, productID, snap.Name, snap.ProductURL,
				snap.CurrentPrice, snap.OriginalPrice, snap.DiscountRate, priceChanged)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to update product: %w", err)
		}
	}

	if err := upsertPlatformADetails(ctx, tx, productID, snap); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit crawl upsert: %w", err)
	}

	return productID, nil
}

// UpdateTranslation is valid only from the crawled stage.
func (r *productRepository) UpdateTranslation(ctx context.Context, id int64, translatedName string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products SET
			translated_name = $2,
			pipeline_stage = 'translated'
		WHERE id = $1 AND pipeline_stage = 'crawled'
	`, id, translatedName)
	if err != nil {
		return fmt.Errorf("failed to update translation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return r.describeStageViolation(ctx, id, "translate", domain.StageCrawled)
	}

	return nil
}

// UpdateMatchingResult is valid from translated or failed, and only for
// the worker holding the product's lock.
func (r *productRepository) UpdateMatchingResult(ctx context.Context, id int64, owner string, result domain.MatchResult) error {
	if result.Status != domain.MatchingSuccess && result.Status != domain.MatchingNotFound {
		return fmt.Errorf("%w: got %q", ErrInvalidMatchStatus, result.Status)
	}
	if result.Status == domain.MatchingSuccess && result.MatchedCode == nil {
		return fmt.Errorf("%w: success result requires a matched code", ErrInvalidMatchStatus)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		stage           domain.Stage
		oldMatchedPrice *int64
		lockOwner       *string
		lockAcquiredAt  *time.Time
	)
	err = tx.QueryRowContext(ctx, `
		SELECT pipeline_stage, matched_price, lock_owner, lock_acquired_at
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&stage, &oldMatchedPrice, &lockOwner, &lockAcquiredAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrProductNotFound
		}
		return fmt.Errorf("failed to look up product: %w", err)
	}

	if stage != domain.StageTranslated && stage != domain.StageFailed {
		return fmt.Errorf("%w: cannot record match result in stage %q", ErrInvalidStage, stage)
	}

	// Per-product transitions past translated are linearized through
	// the owning lock.
	if lockOwner == nil || *lockOwner != owner ||
		lockAcquiredAt == nil || time.Since(*lockAcquiredAt) >= r.lockTTL {
		return ErrNotLockOwner
	}

	if result.Status == domain.MatchingNotFound {
		// A deliberate non-match is terminal: no matched fields are
		// stored and the product is never retried automatically.
		_, err = tx.ExecContext(ctx, `
			UPDATE products SET
				matching_status = 'not_found',
				pipeline_stage = 'matched',
				last_matched_at = now(),
				last_error = NULL
			WHERE id = $1
		`, id)
		if err != nil {
			return fmt.Errorf("failed to record not_found result: %w", err)
		}
	} else {
		if oldMatchedPrice != nil && result.MatchedPrice != nil && *oldMatchedPrice != *result.MatchedPrice {
			if err := recordPriceChange(ctx, tx, id, domain.PlatformB, *oldMatchedPrice, *result.MatchedPrice); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE products SET
				matched_code = $2, matched_name = $3, matched_url = $4,
				matched_price = $5, matched_list_price = $6, match_confidence = $7,
				matching_status = 'success',
				pipeline_stage = 'matched',
				last_matched_at = now(),
				last_error = NULL
			WHERE id = $1
		`, id, result.MatchedCode, result.MatchedName, result.MatchedURL,
			result.MatchedPrice, result.MatchedListPrice, result.Confidence)
		if err != nil {
			return fmt.Errorf("failed to record match result: %w", err)
		}

		if result.Details != nil {
			if err := upsertPlatformBDetails(ctx, tx, id, result.Details); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit match result: %w", err)
	}

	return nil
}

// ResetFailed is the explicit retry operation: failed products re-enter
// matching without being re-crawled or re-translated.
func (r *productRepository) ResetFailed(ctx context.Context, brand string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products SET
			pipeline_stage = 'translated',
			last_error = NULL,
			lock_owner = NULL,
			lock_acquired_at = NULL
		WHERE brand_name = $1 AND pipeline_stage = 'failed'
	`, brand)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed products: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// GetByStage is the work-pull view for stage workers. With unlockedOnly
// set, rows locked within the TTL window are filtered out.
func (r *productRepository) GetByStage(ctx context.Context, brand string, stage domain.Stage, unlockedOnly bool) ([]*domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE brand_name = $1 AND pipeline_stage = $2
	`
	args := []interface{}{brand, stage}

	if unlockedOnly {
		query += ` AND (lock_owner IS NULL OR lock_acquired_at < now() - make_interval(secs => $3))`
		args = append(args, r.lockTTL.Seconds())
	}

	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products by stage: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// GetRecord retrieves the full joined record for one product.
func (r *productRepository) GetRecord(ctx context.Context, id int64) (*domain.ProductRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)

	product, err := scanProduct(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}

	record := &domain.ProductRecord{Product: *product}

	a := &domain.PlatformADetails{}
	err = r.db.QueryRowContext(ctx, `
		SELECT product_id, stock_status, delivery_badge, origin_country,
		       unit_price, rating, review_count, is_express, updated_at
		FROM platform_a_details
		WHERE product_id = $1
	`, id).Scan(
		&a.ProductID, &a.StockStatus, &a.DeliveryBadge, &a.OriginCountry,
		&a.UnitPrice, &a.Rating, &a.ReviewCount, &a.IsExpress, &a.UpdatedAt,
	)
	if err == nil {
		record.PlatformA = a
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to load platform-A details: %w", err)
	}

	b := &domain.PlatformBDetails{}
	err = r.db.QueryRowContext(ctx, `
		SELECT product_id, discount_percent, subscription_discount,
		       price_per_unit, in_stock, stock_message, back_in_stock_date, updated_at
		FROM platform_b_details
		WHERE product_id = $1
	`, id).Scan(
		&b.ProductID, &b.DiscountPercent, &b.SubscriptionDiscount,
		&b.PricePerUnit, &b.InStock, &b.StockMessage, &b.BackInStockDate, &b.UpdatedAt,
	)
	if err == nil {
		record.PlatformB = b
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to load platform-B details: %w", err)
	}

	return record, nil
}

// GetMissing compares each product's last crawl time against the
// brand's cycle marker. Products older than the marker were absent from
// the freshest crawl.
func (r *productRepository) GetMissing(ctx context.Context, brand string) ([]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+qualifiedProductColumns("p")+`
		FROM products p
		JOIN brands b ON b.brand_name = p.brand_name
		WHERE p.brand_name = $1
		  AND b.last_crawled_at IS NOT NULL
		  AND p.last_crawled_at < b.last_crawled_at
		ORDER BY p.id
	`, brand)
	if err != nil {
		return nil, fmt.Errorf("failed to list missing products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// describeStageViolation turns a zero-row guarded update into a
// descriptive synchronous error without changing any state.
func (r *productRepository) describeStageViolation(ctx context.Context, id int64, op string, want domain.Stage) error {
	var stage domain.Stage
	err := r.db.QueryRowContext(ctx,
		`SELECT pipeline_stage FROM products WHERE id = $1`, id,
	).Scan(&stage)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrProductNotFound
		}
		return fmt.Errorf("failed to inspect product stage: %w", err)
	}

	return fmt.Errorf("%w: cannot %s product in stage %q, want %q", ErrInvalidStage, op, stage, want)
}

// recordPriceChange appends one immutable ledger entry. It is only ever
// called from inside the crawl/match transactions, so every entry
// corresponds to an actually observed transition.
func recordPriceChange(ctx context.Context, tx *sql.Tx, productID int64, platform domain.Platform, oldPrice, newPrice int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO price_history (product_id, platform, old_price, new_price, recorded_at)
		VALUES ($1, $2, $3, $4, now())
	`, productID, platform, oldPrice, newPrice)
	if err != nil {
		return fmt.Errorf("failed to record price change: %w", err)
	}
	return nil
}

func upsertPlatformADetails(ctx context.Context, tx *sql.Tx, productID int64, snap domain.CrawlSnapshot) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO platform_a_details (
			product_id, stock_status, delivery_badge, origin_country,
			unit_price, rating, review_count, is_express, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (product_id) DO UPDATE SET
			stock_status = EXCLUDED.stock_status,
			delivery_badge = EXCLUDED.delivery_badge,
			origin_country = EXCLUDED.origin_country,
			unit_price = EXCLUDED.unit_price,
			rating = EXCLUDED.rating,
			review_count = EXCLUDED.review_count,
			is_express = EXCLUDED.is_express,
			updated_at = now()
	`, productID, snap.StockStatus, snap.DeliveryBadge, snap.OriginCountry,
		snap.UnitPrice, snap.Rating, snap.ReviewCount, snap.IsExpress)
	if err != nil {
		return fmt.Errorf("failed to upsert platform-A details: %w", err)
	}
	return nil
}

func upsertPlatformBDetails(ctx context.Context, tx *sql.Tx, productID int64, details *domain.PlatformBDetails) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO platform_b_details (
			product_id, discount_percent, subscription_discount,
			price_per_unit, in_stock, stock_message, back_in_stock_date, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (product_id) DO UPDATE SET
			discount_percent = EXCLUDED.discount_percent,
			subscription_discount = EXCLUDED.subscription_discount,
			price_per_unit = EXCLUDED.price_per_unit,
			in_stock = EXCLUDED.in_stock,
			stock_message = EXCLUDED.stock_message,
			back_in_stock_date = EXCLUDED.back_in_stock_date,
			updated_at = now()
	`, productID, details.DiscountPercent, details.SubscriptionDiscount,
		details.PricePerUnit, details.InStock, details.StockMessage, details.BackInStockDate)
	if err != nil {
		return fmt.Errorf("failed to upsert platform-B details: %w", err)
	}
	return nil
}

func qualifiedProductColumns(alias string) string {
	return alias + `.id, ` + alias + `.brand_name, ` + alias + `.external_product_id,
	` + alias + `.name, ` + alias + `.product_url, ` + alias + `.current_price, ` + alias + `.original_price, ` + alias + `.discount_rate,
	` + alias + `.first_seen_at, ` + alias + `.last_crawled_at, ` + alias + `.price_updated_at,
	` + alias + `.translated_name, ` + alias + `.matched_code, ` + alias + `.matched_name, ` + alias + `.matched_url,
	` + alias + `.matched_price, ` + alias + `.matched_list_price, ` + alias + `.match_confidence, ` + alias + `.last_matched_at,
	` + alias + `.pipeline_stage, ` + alias + `.matching_status, ` + alias + `.last_error,
	` + alias + `.lock_owner, ` + alias + `.lock_acquired_at`
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	err := row.Scan(
		&product.ID, &product.BrandName, &product.ExternalProductID,
		&product.Name, &product.ProductURL, &product.CurrentPrice,
		&product.OriginalPrice, &product.DiscountRate,
		&product.FirstSeenAt, &product.LastCrawledAt, &product.PriceUpdatedAt,
		&product.TranslatedName, &product.MatchedCode, &product.MatchedName,
		&product.MatchedURL, &product.MatchedPrice, &product.MatchedListPrice,
		&product.MatchConfidence, &product.LastMatchedAt,
		&product.Stage, &product.MatchingStatus, &product.LastError,
		&product.LockOwner, &product.LockAcquiredAt,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func scanProducts(rows *sql.Rows) ([]*domain.Product, error) {
	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}
