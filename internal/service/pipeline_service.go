package service

import (
	"context"
	"fmt"

	"price-pipeline/internal/domain"
	"price-pipeline/internal/repository"

	"go.uber.org/zap"
)

// PipelineService is the surface external collaborators call: the
// crawler inserts snapshots, the translator and matcher pull work and
// report results, reporting collaborators read the query views. The
// service routes failures through the transient/terminal classifier;
// everything stateful is delegated to the repositories.
type PipelineService interface {
	RegisterBrand(ctx context.Context, name, searchURL string) error
	GetBrand(ctx context.Context, name string) (*domain.Brand, error)

	// MarkBrandCrawled advances the brand's crawl-cycle marker. Call it
	// once at the start of each crawl cycle so missing-item detection
	// has a stable reference point.
	MarkBrandCrawled(ctx context.Context, name string) error
	MarkBrandMatched(ctx context.Context, name string) error

	InsertCrawledProduct(ctx context.Context, brand string, snap domain.CrawlSnapshot) (int64, error)
	UpdateTranslation(ctx context.Context, productID int64, translatedName string) error
	UpdateMatchingResult(ctx context.Context, productID int64, owner string, result domain.MatchResult) error

	// ReportFailure classifies the failure code. Transient codes are
	// logged and move the product to failed; terminal non-match codes
	// become a not_found match result and are never retried.
	ReportFailure(ctx context.Context, productID int64, owner string, stage domain.Stage, code domain.FailureCode, message string) error

	// RetryFailedProducts resets a brand's failed products back to
	// translated. Retry is always this explicit operation, never an
	// automatic side effect.
	RetryFailedProducts(ctx context.Context, brand string) (int64, error)

	AcquireLock(ctx context.Context, productID int64, owner string) error
	ReleaseLock(ctx context.Context, productID int64) error

	GetProductsByStage(ctx context.Context, brand string, stage domain.Stage, unlockedOnly bool) ([]*domain.Product, error)
	GetProduct(ctx context.Context, productID int64) (*domain.ProductRecord, error)
	GetMissingProducts(ctx context.Context, brand string) ([]*domain.Product, error)
	GetBrandStats(ctx context.Context, brand string) (*domain.BrandStats, error)
	GetPriceComparison(ctx context.Context, brand string) ([]*domain.PriceComparisonRow, error)
	GetPriceHistory(ctx context.Context, productID int64) ([]*domain.PriceHistoryEntry, error)
	GetErrorHistory(ctx context.Context, productID int64) ([]*domain.PipelineError, error)
}

type pipelineService struct {
	brands    repository.BrandRepository
	products  repository.ProductRepository
	locks     repository.LockRepository
	history   repository.PriceHistoryRepository
	errs      repository.ErrorRepository
	stats     repository.StatsRepository
	compLimit int
	logger    *zap.Logger
}

// NewPipelineService creates a new instance of PipelineService.
func NewPipelineService(
	brands repository.BrandRepository,
	products repository.ProductRepository,
	locks repository.LockRepository,
	history repository.PriceHistoryRepository,
	errs repository.ErrorRepository,
	stats repository.StatsRepository,
	priceComparisonLimit int,
	logger *zap.Logger,
) PipelineService {
	return &pipelineService{
		brands:    brands,
		products:  products,
		locks:     locks,
		history:   history,
		errs:      errs,
		stats:     stats,
		compLimit: priceComparisonLimit,
		logger:    logger,
	}
}

func (s *pipelineService) RegisterBrand(ctx context.Context, name, searchURL string) error {
	if err := s.brands.Upsert(ctx, name, searchURL); err != nil {
		return fmt.Errorf("failed to register brand: %w", err)
	}

	s.logger.Info("Brand registered", zap.String("brand", name))
	return nil
}

func (s *pipelineService) GetBrand(ctx context.Context, name string) (*domain.Brand, error) {
	return s.brands.Get(ctx, name)
}

func (s *pipelineService) MarkBrandCrawled(ctx context.Context, name string) error {
	if err := s.brands.MarkCrawled(ctx, name); err != nil {
		return err
	}

	s.logger.Info("Crawl cycle started", zap.String("brand", name))
	return nil
}

func (s *pipelineService) MarkBrandMatched(ctx context.Context, name string) error {
	return s.brands.MarkMatched(ctx, name)
}

func (s *pipelineService) InsertCrawledProduct(ctx context.Context, brand string, snap domain.CrawlSnapshot) (int64, error) {
	id, err := s.products.InsertCrawled(ctx, brand, snap)
	if err != nil {
		return 0, err
	}

	s.logger.Debug("Crawl snapshot stored",
		zap.String("brand", brand),
		zap.String("external_product_id", snap.ExternalProductID),
		zap.Int64("product_id", id),
	)
	return id, nil
}

func (s *pipelineService) UpdateTranslation(ctx context.Context, productID int64, translatedName string) error {
	return s.products.UpdateTranslation(ctx, productID, translatedName)
}

func (s *pipelineService) UpdateMatchingResult(ctx context.Context, productID int64, owner string, result domain.MatchResult) error {
	if err := s.products.UpdateMatchingResult(ctx, productID, owner, result); err != nil {
		return err
	}

	s.logger.Debug("Match result stored",
		zap.Int64("product_id", productID),
		zap.String("status", string(result.Status)),
	)
	return nil
}

// ReportFailure is the single entry point for collaborator failures.
// The taxonomy decides stage placement: a missing match is a legitimate
// outcome, not an error, so it closes the product as matched/not_found.
func (s *pipelineService) ReportFailure(ctx context.Context, productID int64, owner string, stage domain.Stage, code domain.FailureCode, message string) error {
	if code.Terminal() {
		result := domain.MatchResult{Status: domain.MatchingNotFound}
		if err := s.products.UpdateMatchingResult(ctx, productID, owner, result); err != nil {
			return err
		}

		s.logger.Info("Product closed as not found",
			zap.Int64("product_id", productID),
			zap.String("code", string(code)),
		)
		return nil
	}

	if err := s.errs.Log(ctx, productID, stage, code, message); err != nil {
		return err
	}

	s.logger.Warn("Transient failure recorded",
		zap.Int64("product_id", productID),
		zap.String("stage", string(stage)),
		zap.String("code", string(code)),
	)
	return nil
}

func (s *pipelineService) RetryFailedProducts(ctx context.Context, brand string) (int64, error) {
	count, err := s.products.ResetFailed(ctx, brand)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Failed products reset for retry",
		zap.String("brand", brand),
		zap.Int64("count", count),
	)
	return count, nil
}

func (s *pipelineService) AcquireLock(ctx context.Context, productID int64, owner string) error {
	return s.locks.Acquire(ctx, productID, owner)
}

func (s *pipelineService) ReleaseLock(ctx context.Context, productID int64) error {
	return s.locks.Release(ctx, productID)
}

func (s *pipelineService) GetProductsByStage(ctx context.Context, brand string, stage domain.Stage, unlockedOnly bool) ([]*domain.Product, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("%w: unknown stage %q", repository.ErrInvalidStage, stage)
	}
	return s.products.GetByStage(ctx, brand, stage, unlockedOnly)
}

func (s *pipelineService) GetProduct(ctx context.Context, productID int64) (*domain.ProductRecord, error) {
	return s.products.GetRecord(ctx, productID)
}

func (s *pipelineService) GetMissingProducts(ctx context.Context, brand string) ([]*domain.Product, error) {
	return s.products.GetMissing(ctx, brand)
}

func (s *pipelineService) GetBrandStats(ctx context.Context, brand string) (*domain.BrandStats, error) {
	return s.stats.BrandStats(ctx, brand)
}

func (s *pipelineService) GetPriceComparison(ctx context.Context, brand string) ([]*domain.PriceComparisonRow, error) {
	return s.stats.PriceComparison(ctx, brand, s.compLimit)
}

func (s *pipelineService) GetPriceHistory(ctx context.Context, productID int64) ([]*domain.PriceHistoryEntry, error) {
	return s.history.ListByProduct(ctx, productID)
}

func (s *pipelineService) GetErrorHistory(ctx context.Context, productID int64) ([]*domain.PipelineError, error) {
	return s.errs.ListByProduct(ctx, productID)
}
