package domain

import (
	"time"
)

// Stage is the coarse phase a product has reached in the
// crawl -> translate -> match workflow.
type Stage string

const (
	StageCrawled    Stage = "crawled"
	StageTranslated Stage = "translated"
	StageMatched    Stage = "matched"
	StageFailed     Stage = "failed"
)

// Valid reports whether s is one of the known pipeline stages.
func (s Stage) Valid() bool {
	switch s {
	case StageCrawled, StageTranslated, StageMatched, StageFailed:
		return true
	}
	return false
}

// MatchingStatus is the fine-grained outcome of the match phase,
// orthogonal to but constrained by Stage: success implies StageMatched.
type MatchingStatus string

const (
	MatchingPending  MatchingStatus = "pending"
	MatchingSuccess  MatchingStatus = "success"
	MatchingNotFound MatchingStatus = "not_found"
)

// Valid reports whether m is one of the known matching statuses.
func (m MatchingStatus) Valid() bool {
	switch m {
	case MatchingPending, MatchingSuccess, MatchingNotFound:
		return true
	}
	return false
}

// Platform identifies which catalog a price observation came from.
type Platform string

const (
	PlatformA Platform = "platform_a"
	PlatformB Platform = "platform_b"
)

// Brand is a named catalog scope with a source search endpoint.
// The crawl/match timestamps are cycle markers, advanced once per
// cycle, not per product.
type Brand struct {
	Name          string     `json:"name" db:"brand_name"`
	SearchURL     string     `json:"search_url" db:"search_url"`
	LastCrawledAt *time.Time `json:"last_crawled_at" db:"last_crawled_at"`
	LastMatchedAt *time.Time `json:"last_matched_at" db:"last_matched_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// Product is one item in one brand's catalog, uniquely identified by
// (brand, external product id). Prices are stored in won.
type Product struct {
	ID                int64  `json:"id" db:"id"`
	BrandName         string `json:"brand_name" db:"brand_name"`
	ExternalProductID string `json:"external_product_id" db:"external_product_id"`

	// Platform-A (crawl source) fields.
	Name           string     `json:"name" db:"name"`
	ProductURL     string     `json:"product_url" db:"product_url"`
	CurrentPrice   *int64     `json:"current_price" db:"current_price"`
	OriginalPrice  *int64     `json:"original_price" db:"original_price"`
	DiscountRate   string     `json:"discount_rate" db:"discount_rate"`
	FirstSeenAt    time.Time  `json:"first_seen_at" db:"first_seen_at"`
	LastCrawledAt  time.Time  `json:"last_crawled_at" db:"last_crawled_at"`
	PriceUpdatedAt *time.Time `json:"price_updated_at" db:"price_updated_at"`

	// Platform-B (match target) fields.
	TranslatedName   *string    `json:"translated_name" db:"translated_name"`
	MatchedCode      *string    `json:"matched_code" db:"matched_code"`
	MatchedName      *string    `json:"matched_name" db:"matched_name"`
	MatchedURL       *string    `json:"matched_url" db:"matched_url"`
	MatchedPrice     *int64     `json:"matched_price" db:"matched_price"`
	MatchedListPrice *int64     `json:"matched_list_price" db:"matched_list_price"`
	MatchConfidence  *float64   `json:"match_confidence" db:"match_confidence"`
	LastMatchedAt    *time.Time `json:"last_matched_at" db:"last_matched_at"`

	Stage          Stage          `json:"pipeline_stage" db:"pipeline_stage"`
	MatchingStatus MatchingStatus `json:"matching_status" db:"matching_status"`
	LastError      *string        `json:"last_error" db:"last_error"`

	LockOwner      *string    `json:"lock_owner" db:"lock_owner"`
	LockAcquiredAt *time.Time `json:"lock_acquired_at" db:"lock_acquired_at"`
}

// Locked reports whether the product holds a lock younger than ttl.
func (p *Product) Locked(ttl time.Duration, now time.Time) bool {
	return p.LockOwner != nil && p.LockAcquiredAt != nil &&
		now.Sub(*p.LockAcquiredAt) < ttl
}

// PlatformADetails holds source-specific attributes, owned 1:1 by a
// product and updated atomically with it.
type PlatformADetails struct {
	ProductID     int64     `json:"product_id" db:"product_id"`
	StockStatus   string    `json:"stock_status" db:"stock_status"`
	DeliveryBadge string    `json:"delivery_badge" db:"delivery_badge"`
	OriginCountry string    `json:"origin_country" db:"origin_country"`
	UnitPrice     string    `json:"unit_price" db:"unit_price"`
	Rating        *float64  `json:"rating" db:"rating"`
	ReviewCount   *int64    `json:"review_count" db:"review_count"`
	IsExpress     bool      `json:"is_express" db:"is_express"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// PlatformBDetails holds match-target attributes, owned 1:1 by a
// product and updated atomically with it.
type PlatformBDetails struct {
	ProductID            int64     `json:"product_id" db:"product_id"`
	DiscountPercent      string    `json:"discount_percent" db:"discount_percent"`
	SubscriptionDiscount string    `json:"subscription_discount" db:"subscription_discount"`
	PricePerUnit         string    `json:"price_per_unit" db:"price_per_unit"`
	InStock              bool      `json:"in_stock" db:"in_stock"`
	StockMessage         string    `json:"stock_message" db:"stock_message"`
	BackInStockDate      string    `json:"back_in_stock_date" db:"back_in_stock_date"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

// ProductRecord is the full joined view of a product with both
// platform detail rows. Either detail pointer may be nil.
type ProductRecord struct {
	Product
	PlatformA *PlatformADetails `json:"platform_a"`
	PlatformB *PlatformBDetails `json:"platform_b"`
}

// PriceHistoryEntry is an immutable ledger record of one observed
// price change. Entries are appended only when a price actually moved.
type PriceHistoryEntry struct {
	ID         int64     `json:"id" db:"id"`
	ProductID  int64     `json:"product_id" db:"product_id"`
	Platform   Platform  `json:"platform" db:"platform"`
	OldPrice   int64     `json:"old_price" db:"old_price"`
	NewPrice   int64     `json:"new_price" db:"new_price"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// PipelineError is an immutable audit record of one failure event.
// A product may accumulate many.
type PipelineError struct {
	ID           int64     `json:"id" db:"id"`
	ProductID    int64     `json:"product_id" db:"product_id"`
	Stage        Stage     `json:"stage" db:"stage"`
	ErrorCode    string    `json:"error_code" db:"error_code"`
	ErrorMessage string    `json:"error_message" db:"error_message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// CrawlSnapshot is the payload a crawler collaborator hands to
// InsertCrawledProduct for one product observation.
type CrawlSnapshot struct {
	ExternalProductID string   `json:"external_product_id"`
	Name              string   `json:"name"`
	ProductURL        string   `json:"product_url"`
	CurrentPrice      *int64   `json:"current_price"`
	OriginalPrice     *int64   `json:"original_price"`
	DiscountRate      string   `json:"discount_rate"`
	StockStatus       string   `json:"stock_status"`
	DeliveryBadge     string   `json:"delivery_badge"`
	OriginCountry     string   `json:"origin_country"`
	UnitPrice         string   `json:"unit_price"`
	Rating            *float64 `json:"rating"`
	ReviewCount       *int64   `json:"review_count"`
	IsExpress         bool     `json:"is_express"`
}

// MatchResult is the payload a matcher collaborator hands to
// UpdateMatchingResult. Status must be success or not_found; a
// not_found result carries no matched fields.
type MatchResult struct {
	Status           MatchingStatus `json:"status"`
	MatchedCode      *string        `json:"matched_code"`
	MatchedName      *string        `json:"matched_name"`
	MatchedURL       *string        `json:"matched_url"`
	MatchedPrice     *int64         `json:"matched_price"`
	MatchedListPrice *int64         `json:"matched_list_price"`
	Confidence       *float64       `json:"confidence"`
	Details          *PlatformBDetails
}

// BrandStats aggregates a brand's products by stage and matching status.
type BrandStats struct {
	BrandName     string         `json:"brand_name"`
	TotalProducts int            `json:"total_products"`
	ByStage       map[Stage]int  `json:"by_stage"`
	ByMatching    map[MatchingStatus]int `json:"by_matching"`
}

// PriceComparisonRow is one row of the cross-platform price view,
// derived for matched products only.
type PriceComparisonRow struct {
	ProductID       int64   `json:"product_id"`
	BrandName       string  `json:"brand_name"`
	Name            string  `json:"name"`
	MatchedCode     string  `json:"matched_code"`
	MatchedName     string  `json:"matched_name"`
	PlatformAPrice  int64   `json:"platform_a_price"`
	PlatformBPrice  int64   `json:"platform_b_price"`
	CheaperPlatform Platform `json:"cheaper_platform"`
	Savings         int64   `json:"savings"`
}
