package service

import (
	"context"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/session"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// FeaturedCount is how many of the newest products the storefront features
const FeaturedCount = 4

// ProductStore is the catalog half of the store
type ProductStore interface {
	ProductLookup
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetNewestProducts(ctx context.Context, limit int) ([]models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// ProductSearcher runs full-text product queries
type ProductSearcher interface {
	Search(ctx context.Context, f catalog.Filter, from, size int) (int64, []models.Product, error)
}

// ProductEventPublisher receives catalog change events
type ProductEventPublisher interface {
	PublishProductEvent(ctx context.Context, event *models.ProductEvent) error
}

// ProductIndexer keeps the search index in step with catalog writes
type ProductIndexer interface {
	IndexProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

// SearchResult is one page of search hits
type SearchResult struct {
	Total    int64            `json:"total"`
	Products []models.Product `json:"products"`
	Source   string           `json:"source"`
}

// CatalogService handles product browsing and admin product management
type CatalogService struct {
	store    ProductStore
	searcher ProductSearcher
	events   ProductEventPublisher
	indexer  ProductIndexer
	logger   *zap.Logger
}

// NewCatalogService creates a catalog service. searcher and events may be nil.
func NewCatalogService(store ProductStore, searcher ProductSearcher, events ProductEventPublisher) *CatalogService {
	return &CatalogService{
		store:    store,
		searcher: searcher,
		events:   events,
		logger:   util.GetLogger(),
	}
}

// WithIndexer makes product writes update the search index directly whenever
// no event publisher is set or publishing an event fails
func (s *CatalogService) WithIndexer(indexer ProductIndexer) *CatalogService {
	s.indexer = indexer
	return s
}

// ListProducts returns the products matching f
func (s *CatalogService) ListProducts(ctx context.Context, f catalog.Filter) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	return catalog.Apply(products, f), nil
}

// Featured returns the newest products
func (s *CatalogService) Featured(ctx context.Context) ([]models.Product, error) {
	products, err := s.store.GetNewestProducts(ctx, FeaturedCount)
	if err != nil {
		return nil, unavailable(err)
	}
	return products, nil
}

// GetProduct returns one product
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	p, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, unavailable(err)
	}
	return p, nil
}

// ProductsByIDs returns the products among ids that still exist, newest first
func (s *CatalogService) ProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, unavailable(err)
	}
	return products, nil
}

// Search queries the search index, falling back to the in-memory filter when
// the index is not configured or fails
func (s *CatalogService) Search(ctx context.Context, f catalog.Filter, from, size int) (*SearchResult, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Search")
	defer span.End()

	if from < 0 {
		from = 0
	}
	if size <= 0 || size > 100 {
		size = 20
	}

	if s.searcher != nil {
		total, products, err := s.searcher.Search(ctx, f, from, size)
		if err == nil {
			return &SearchResult{Total: total, Products: products, Source: "index"}, nil
		}
		s.logger.Warn("Search index unavailable, filtering in memory", zap.Error(err))
	}

	matched, err := s.ListProducts(ctx, f)
	if err != nil {
		return nil, err
	}
	total := int64(len(matched))
	if from > len(matched) {
		from = len(matched)
	}
	end := from + size
	if end > len(matched) {
		end = len(matched)
	}
	return &SearchResult{Total: total, Products: matched[from:end], Source: "catalog"}, nil
}

// AdminSearch lists products whose name or category contains query
func (s *CatalogService) AdminSearch(ctx context.Context, sess *session.Session, query string) ([]models.Product, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	return catalog.MatchAdmin(products, query), nil
}

// CreateProduct validates and inserts a new product
func (s *CatalogService) CreateProduct(ctx context.Context, sess *session.Session, p models.Product) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	if err := requireAdmin(sess); err != nil {
		return nil, err
	}

	p.ID = ""
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.ImageURL = strings.TrimSpace(p.ImageURL)
	if err := validateProduct(&p); err != nil {
		return nil, err
	}

	if err := s.store.CreateProduct(ctx, &p); err != nil {
		return nil, unavailable(err)
	}

	util.ProductChangesTotal.WithLabelValues("create").Inc()
	s.logger.Info("Product created", zap.String("product_id", p.ID), zap.String("admin_id", sess.UserID))
	s.syncProduct(ctx, models.EventTypeProductCreated, p.ID, &p)
	return &p, nil
}

// UpdateProduct applies a partial update
func (s *CatalogService) UpdateProduct(ctx context.Context, sess *session.Session, id string, patch models.ProductPatch) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct")
	defer span.End()

	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		verr := apperr.NewValidationError()
		verr.Add("product", "no fields to update")
		return nil, verr
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	p, err := s.store.UpdateProduct(ctx, id, patch)
	if err != nil {
		return nil, unavailable(err)
	}

	util.ProductChangesTotal.WithLabelValues("update").Inc()
	s.logger.Info("Product updated", zap.String("product_id", id), zap.String("admin_id", sess.UserID))
	s.syncProduct(ctx, models.EventTypeProductUpdated, p.ID, p)
	return p, nil
}

// DeleteProduct removes a product. Orders keep their own line snapshots.
func (s *CatalogService) DeleteProduct(ctx context.Context, sess *session.Session, id string) error {
	if err := requireAdmin(sess); err != nil {
		return err
	}
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return unavailable(err)
	}

	util.ProductChangesTotal.WithLabelValues("delete").Inc()
	s.logger.Info("Product deleted", zap.String("product_id", id), zap.String("admin_id", sess.UserID))
	s.syncProduct(ctx, models.EventTypeProductDeleted, id, nil)
	return nil
}

// syncProduct publishes a product event for the index worker, writing to the
// index itself when the event cannot be delivered
func (s *CatalogService) syncProduct(ctx context.Context, eventType, id string, p *models.Product) {
	if s.events != nil {
		event := &models.ProductEvent{
			BaseEvent: models.NewBaseEvent(eventType),
			ProductID: id,
			Product:   p,
		}
		err := s.events.PublishProductEvent(ctx, event)
		if err == nil {
			return
		}
		s.logger.Error("Failed to publish product event",
			zap.String("type", eventType),
			zap.String("product_id", id),
			zap.Error(err))
	}
	if s.indexer == nil {
		return
	}

	var err error
	if eventType == models.EventTypeProductDeleted {
		err = s.indexer.DeleteProduct(ctx, id)
	} else {
		err = s.indexer.IndexProduct(ctx, p)
	}
	if err != nil {
		s.logger.Warn("Failed to update search index",
			zap.String("type", eventType),
			zap.String("product_id", id),
			zap.Error(err))
	}
}

func validateProduct(p *models.Product) error {
	verr := apperr.NewValidationError()
	if p.Name == "" {
		verr.Add("name", "required")
	}
	if p.Description == "" {
		verr.Add("description", "required")
	}
	if p.Price.IsNegative() {
		verr.Add("price", "must not be negative")
	}
	if !p.Category.Valid() {
		verr.Add("category", "unknown category")
	}
	if p.Stock < 0 {
		verr.Add("stock", "must not be negative")
	}
	return verr.OrNil()
}

func validatePatch(patch models.ProductPatch) error {
	verr := apperr.NewValidationError()
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		verr.Add("name", "required")
	}
	if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
		verr.Add("description", "required")
	}
	if patch.Price != nil && patch.Price.IsNegative() {
		verr.Add("price", "must not be negative")
	}
	if patch.Category != nil && !patch.Category.Valid() {
		verr.Add("category", "unknown category")
	}
	if patch.Stock != nil && *patch.Stock < 0 {
		verr.Add("stock", "must not be negative")
	}
	return verr.OrNil()
}
