package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"price-pipeline/internal/domain"
	"price-pipeline/internal/middleware"
	"price-pipeline/internal/repository"
	"price-pipeline/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterBrandRequest creates or updates a brand scope.
type RegisterBrandRequest struct {
	Name      string `json:"name"`
	SearchURL string `json:"search_url"`
}

// SnapshotRequest is a crawl observation. Prices may arrive as numbers
// or as raw strings straight off the page ("12,345원"); raw values are
// normalized when the numeric fields are absent.
type SnapshotRequest struct {
	domain.CrawlSnapshot
	CurrentPriceRaw  string `json:"current_price_raw"`
	OriginalPriceRaw string `json:"original_price_raw"`
}

// TranslationRequest carries a translator result.
type TranslationRequest struct {
	TranslatedName string `json:"translated_name"`
}

// MatchRequest carries a matcher result plus the worker's lock token.
type MatchRequest struct {
	Owner string `json:"owner"`
	domain.MatchResult
}

// FailureRequest reports a collaborator failure for classification.
type FailureRequest struct {
	Owner   string             `json:"owner"`
	Stage   domain.Stage       `json:"stage"`
	Code    domain.FailureCode `json:"code"`
	Message string             `json:"message"`
}

// LockRequest names the owner token for a lock acquisition. When empty
// a token is generated and returned to the caller.
type LockRequest struct {
	Owner string `json:"owner"`
}

// LockResponse echoes the owner token the lock was granted to.
type LockResponse struct {
	ProductID int64  `json:"product_id"`
	Owner     string `json:"owner"`
}

// PipelineHandler handles HTTP requests from worker collaborators.
type PipelineHandler struct {
	pipeline service.PipelineService
	logger   *zap.Logger
}

// NewPipelineHandler creates a new PipelineHandler
func NewPipelineHandler(pipeline service.PipelineService, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// RegisterRoutes registers all pipeline routes
func (h *PipelineHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/brands", func(r chi.Router) {
		r.Post("/", h.RegisterBrand)
		r.Route("/{brand}", func(r chi.Router) {
			r.Get("/", h.GetBrand)
			r.Post("/crawl-cycle", h.MarkCrawlCycle)
			r.Post("/match-cycle", h.MarkMatchCycle)
			r.Post("/products", h.InsertCrawledProduct)
			r.Get("/products", h.GetProductsByStage)
			r.Post("/retry-failed", h.RetryFailed)
			r.Get("/stats", h.GetBrandStats)
			r.Get("/price-comparison", h.GetPriceComparison)
			r.Get("/missing", h.GetMissingProducts)
		})
	})

	r.Route("/api/products/{id}", func(r chi.Router) {
		r.Get("/", h.GetProduct)
		r.Put("/translation", h.UpdateTranslation)
		r.Put("/match", h.UpdateMatchingResult)
		r.Post("/failure", h.ReportFailure)
		r.Post("/lock", h.AcquireLock)
		r.Delete("/lock", h.ReleaseLock)
		r.Get("/price-history", h.GetPriceHistory)
		r.Get("/errors", h.GetErrorHistory)
	})
}

// RegisterBrand handles brand registration
func (h *PipelineHandler) RegisterBrand(w http.ResponseWriter, r *http.Request) {
	var req RegisterBrandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body: name is required")
		return
	}

	if err := h.pipeline.RegisterBrand(r.Context(), req.Name, req.SearchURL); err != nil {
		h.logger.Error("Brand registration failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to register brand")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

// GetBrand returns one brand with its cycle markers
func (h *PipelineHandler) GetBrand(w http.ResponseWriter, r *http.Request) {
	brand, err := h.pipeline.GetBrand(r.Context(), chi.URLParam(r, "brand"))
	if err != nil {
		h.respondError(w, err, "failed to get brand")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, brand)
}

// MarkCrawlCycle advances the brand's crawl-cycle marker
func (h *PipelineHandler) MarkCrawlCycle(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.MarkBrandCrawled(r.Context(), chi.URLParam(r, "brand")); err != nil {
		h.respondError(w, err, "failed to mark crawl cycle")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "marked"})
}

// MarkMatchCycle advances the brand's match-cycle marker
func (h *PipelineHandler) MarkMatchCycle(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.MarkBrandMatched(r.Context(), chi.URLParam(r, "brand")); err != nil {
		h.respondError(w, err, "failed to mark match cycle")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "marked"})
}

// InsertCrawledProduct stores one crawl snapshot
func (h *PipelineHandler) InsertCrawledProduct(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ExternalProductID == "" {
		middleware.RespondWithError(w, http.StatusBadRequest, "external_product_id is required")
		return
	}

	snap := req.CrawlSnapshot
	if snap.CurrentPrice == nil && req.CurrentPriceRaw != "" {
		snap.CurrentPrice = domain.ParsePrice(req.CurrentPriceRaw)
	}
	if snap.OriginalPrice == nil && req.OriginalPriceRaw != "" {
		snap.OriginalPrice = domain.ParsePrice(req.OriginalPriceRaw)
	}

	id, err := h.pipeline.InsertCrawledProduct(r.Context(), chi.URLParam(r, "brand"), snap)
	if err != nil {
		h.respondError(w, err, "failed to store crawl snapshot")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]int64{"product_id": id})
}

// GetProductsByStage is the work-pull endpoint for stage workers
func (h *PipelineHandler) GetProductsByStage(w http.ResponseWriter, r *http.Request) {
	stage := domain.Stage(r.URL.Query().Get("stage"))
	unlockedOnly := r.URL.Query().Get("unlocked") == "true"

	products, err := h.pipeline.GetProductsByStage(r.Context(), chi.URLParam(r, "brand"), stage, unlockedOnly)
	if err != nil {
		h.respondError(w, err, "failed to list products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, products)
}

// RetryFailed resets a brand's failed products for another match pass
func (h *PipelineHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	count, err := h.pipeline.RetryFailedProducts(r.Context(), chi.URLParam(r, "brand"))
	if err != nil {
		h.respondError(w, err, "failed to reset failed products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]int64{"reset": count})
}

// GetBrandStats returns counts by stage and matching status
func (h *PipelineHandler) GetBrandStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pipeline.GetBrandStats(r.Context(), chi.URLParam(r, "brand"))
	if err != nil {
		h.respondError(w, err, "failed to get brand stats")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, stats)
}

// GetPriceComparison returns the cross-platform price view
func (h *PipelineHandler) GetPriceComparison(w http.ResponseWriter, r *http.Request) {
	rows, err := h.pipeline.GetPriceComparison(r.Context(), chi.URLParam(r, "brand"))
	if err != nil {
		h.respondError(w, err, "failed to get price comparison")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, rows)
}

// GetMissingProducts returns products absent from the newest crawl cycle
func (h *PipelineHandler) GetMissingProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.pipeline.GetMissingProducts(r.Context(), chi.URLParam(r, "brand"))
	if err != nil {
		h.respondError(w, err, "failed to list missing products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, products)
}

// GetProduct returns the full joined product record
func (h *PipelineHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}

	record, err := h.pipeline.GetProduct(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "failed to get product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, record)
}

// UpdateTranslation stores a translator result
func (h *PipelineHandler) UpdateTranslation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}

	var req TranslationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TranslatedName == "" {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body: translated_name is required")
		return
	}

	if err := h.pipeline.UpdateTranslation(r.Context(), id, req.TranslatedName); err != nil {
		h.respondError(w, err, "failed to update translation")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "translated"})
}

// UpdateMatchingResult stores a matcher result
func (h *PipelineHandler) UpdateMatchingResult(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}

	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.pipeline.UpdateMatchingResult(r.Context(), id, req.Owner, req.MatchResult); err != nil {
		h.respondError(w, err, "failed to update matching result")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}

// ReportFailure classifies and records a collaborator failure
func (h *PipelineHandler) ReportFailure(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}

	var req FailureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body: code is required")
		return
	}

	if err := h.pipeline.ReportFailure(r.Context(), id, req.Owner, req.Stage, req.Code, req.Message); err != nil {
		h.respondError(w, err, "failed to report failure")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// AcquireLock grants ownership of a product to one worker
func (h *PipelineHandler) AcquireLock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}

	var req LockRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Owner == "" {
		req.Owner = uuid.NewString()
	}

	if err := h.pipeline.AcquireLock(r.Context(), id, req.Owner); err != nil {
		h.respondError(w, err, "failed to acquire lock")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, LockResponse{ProductID: id, Owner: req.Owner})
}

// ReleaseLock clears a product's lock
func (h *PipelineHandler) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}

	if err := h.pipeline.ReleaseLock(r.Context(), id); err != nil {
		h.respondError(w, err, "failed to release lock")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

// GetPriceHistory returns the product's price ledger
func (h *PipelineHandler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}

	entries, err := h.pipeline.GetPriceHistory(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "failed to get price history")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, entries)
}

// GetErrorHistory returns the product's failure audit trail
func (h *PipelineHandler) GetErrorHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}

	entries, err := h.pipeline.GetErrorHistory(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "failed to get error history")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, entries)
}

func (h *PipelineHandler) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

// respondError maps domain sentinels onto HTTP statuses. Invariant
// violations surface as 409 so workers can tell them apart from
// operational failures.
func (h *PipelineHandler) respondError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrBrandNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrInvalidStage),
		errors.Is(err, repository.ErrInvalidMatchStatus),
		errors.Is(err, repository.ErrNotLockOwner),
		errors.Is(err, repository.ErrLockHeld):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(fallback, zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, fallback)
	}
}
