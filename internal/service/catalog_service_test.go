package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/catalog"
	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	total    int64
	products []models.Product
	err      error
	calls    int
}

func (s *stubSearcher) Search(ctx context.Context, f catalog.Filter, from, size int) (int64, []models.Product, error) {
	s.calls++
	return s.total, s.products, s.err
}

func newCatalogFixture() *memoryStore {
	store := newMemoryStore()
	store.addProduct("p1", "iPhone 13 Pro", "999.99", models.CategorySmartphones, 6*time.Hour)
	store.addProduct("p2", "MacBook Pro M2", "1299.99", models.CategoryElectronics, 5*time.Hour)
	store.addProduct("p3", "AirPods Pro", "249.99", models.CategoryAudio, 4*time.Hour)
	store.addProduct("p4", "Apple Watch Series 8", "399.99", models.CategoryWearables, 3*time.Hour)
	store.addProduct("p5", "iPad Pro", "799.99", models.CategoryElectronics, 2*time.Hour)
	store.addProduct("p6", "Sony WH-1000XM5", "399.99", models.CategoryAudio, time.Hour)
	return store
}

func ids(products []models.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func TestFeaturedReturnsFourNewest(t *testing.T) {
	svc := NewCatalogService(newCatalogFixture(), nil, nil)

	featured, err := svc.Featured(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"p6", "p5", "p4", "p3"}, ids(featured))
}

func TestListProductsAppliesFilter(t *testing.T) {
	svc := NewCatalogService(newCatalogFixture(), nil, nil)
	max := decimal.NewFromInt(500)

	products, err := svc.ListProducts(context.Background(), catalog.Filter{
		MaxPrice:   &max,
		Categories: []models.Category{models.CategoryAudio},
		Sort:       catalog.SortPriceAsc,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p6"}, ids(products))
}

func TestListProductsStoreUnavailable(t *testing.T) {
	store := newCatalogFixture()
	store.failWith = errConnRefused
	svc := NewCatalogService(store, nil, nil)

	_, err := svc.ListProducts(context.Background(), catalog.Filter{})
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
}

func TestSearchUsesIndex(t *testing.T) {
	searcher := &stubSearcher{total: 1, products: []models.Product{{ID: "p3"}}}
	svc := NewCatalogService(newCatalogFixture(), searcher, nil)

	res, err := svc.Search(context.Background(), catalog.Filter{Query: "airpods"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "index", res.Source)
	assert.EqualValues(t, 1, res.Total)
	assert.Equal(t, 1, searcher.calls)
}

func TestSearchFallsBackToCatalog(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("index missing")}
	svc := NewCatalogService(newCatalogFixture(), searcher, nil)

	res, err := svc.Search(context.Background(), catalog.Filter{Query: "pro", Sort: catalog.SortNewest}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "catalog", res.Source)
	assert.EqualValues(t, 4, res.Total)
	assert.Equal(t, []string{"p3", "p2"}, ids(res.Products))
}

func TestSearchPageBeyondEnd(t *testing.T) {
	svc := NewCatalogService(newCatalogFixture(), nil, nil)

	res, err := svc.Search(context.Background(), catalog.Filter{}, 50, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 6, res.Total)
	assert.Empty(t, res.Products)
}

func TestAdminSearchRequiresAdmin(t *testing.T) {
	svc := NewCatalogService(newCatalogFixture(), nil, nil)
	ctx := context.Background()

	_, err := svc.AdminSearch(ctx, nil, "audio")
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)

	_, err = svc.AdminSearch(ctx, customerSession("u1"), "audio")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	products, err := svc.AdminSearch(ctx, adminSession(), "audio")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p3", "p6"}, ids(products))
}

func TestCreateProductValidates(t *testing.T) {
	store := newCatalogFixture()
	events := &recordingPublisher{}
	svc := NewCatalogService(store, nil, events)

	_, err := svc.CreateProduct(context.Background(), adminSession(), models.Product{
		Name:     " ",
		Price:    decimal.NewFromInt(-1),
		Category: "toys",
		Stock:    -2,
	})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{"name", "description", "price", "category", "stock"}, keys(verr.Fields))
	assert.Empty(t, events.products)
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestProductLifecyclePublishesEvents(t *testing.T) {
	store := newCatalogFixture()
	events := &recordingPublisher{}
	svc := NewCatalogService(store, nil, events)
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, adminSession(), models.Product{
		Name:        "GoPro Hero 11",
		Description: "Action camera",
		Price:       decimal.RequireFromString("399.00"),
		Category:    models.CategoryCameras,
		Stock:       5,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	name := "GoPro Hero 12"
	updated, err := svc.UpdateProduct(ctx, adminSession(), created.ID, models.ProductPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "GoPro Hero 12", updated.Name)
	assert.Equal(t, "Action camera", updated.Description)

	require.NoError(t, svc.DeleteProduct(ctx, adminSession(), created.ID))
	_, err = svc.GetProduct(ctx, created.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.Len(t, events.products, 3)
	assert.Equal(t, models.EventTypeProductCreated, events.products[0].EventType)
	assert.Equal(t, models.EventTypeProductUpdated, events.products[1].EventType)
	assert.Equal(t, models.EventTypeProductDeleted, events.products[2].EventType)
	assert.Nil(t, events.products[2].Product)
}

func TestUpdateProductRejectsEmptyPatch(t *testing.T) {
	svc := NewCatalogService(newCatalogFixture(), nil, nil)

	_, err := svc.UpdateProduct(context.Background(), adminSession(), "p1", models.ProductPatch{})
	assert.True(t, apperr.IsValidation(err))
}

func TestDeleteMissingProduct(t *testing.T) {
	svc := NewCatalogService(newCatalogFixture(), nil, nil)

	err := svc.DeleteProduct(context.Background(), adminSession(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestProductsByIDsSkipsDeleted(t *testing.T) {
	svc := NewCatalogService(newCatalogFixture(), nil, nil)

	products, err := svc.ProductsByIDs(context.Background(), []string{"p1", "gone", "p4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p4", "p1"}, ids(products))
}

type recordingIndex struct {
	indexed []string
	deleted []string
	err     error
}

func (r *recordingIndex) IndexProduct(ctx context.Context, p *models.Product) error {
	r.indexed = append(r.indexed, p.ID)
	return r.err
}

func (r *recordingIndex) DeleteProduct(ctx context.Context, id string) error {
	r.deleted = append(r.deleted, id)
	return r.err
}

type failingPublisher struct{}

func (failingPublisher) PublishProductEvent(ctx context.Context, e *models.ProductEvent) error {
	return errors.New("kafka: leader not available")
}

func cameraProduct() models.Product {
	return models.Product{
		Name:        "GoPro Hero 11",
		Description: "Action camera",
		Price:       decimal.RequireFromString("399.00"),
		Category:    models.CategoryCameras,
		Stock:       5,
	}
}

func TestProductWritesIndexDirectlyWithoutPublisher(t *testing.T) {
	index := &recordingIndex{}
	svc := NewCatalogService(newCatalogFixture(), nil, nil).WithIndexer(index)
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, adminSession(), cameraProduct())
	require.NoError(t, err)
	stock := 4
	_, err = svc.UpdateProduct(ctx, adminSession(), created.ID, models.ProductPatch{Stock: &stock})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteProduct(ctx, adminSession(), created.ID))

	assert.Equal(t, []string{created.ID, created.ID}, index.indexed)
	assert.Equal(t, []string{created.ID}, index.deleted)
}

func TestProductWritesIndexWhenPublishFails(t *testing.T) {
	index := &recordingIndex{}
	svc := NewCatalogService(newCatalogFixture(), nil, failingPublisher{}).WithIndexer(index)

	created, err := svc.CreateProduct(context.Background(), adminSession(), cameraProduct())
	require.NoError(t, err)

	assert.Equal(t, []string{created.ID}, index.indexed)
}

func TestProductWritesLeaveIndexToWorkerWhenPublished(t *testing.T) {
	index := &recordingIndex{}
	events := &recordingPublisher{}
	svc := NewCatalogService(newCatalogFixture(), nil, events).WithIndexer(index)

	_, err := svc.CreateProduct(context.Background(), adminSession(), cameraProduct())
	require.NoError(t, err)

	assert.Len(t, events.products, 1)
	assert.Empty(t, index.indexed)
}

func TestProductWriteSurvivesIndexFailure(t *testing.T) {
	index := &recordingIndex{err: errors.New("elasticsearch 503")}
	store := newCatalogFixture()
	svc := NewCatalogService(store, nil, nil).WithIndexer(index)

	created, err := svc.CreateProduct(context.Background(), adminSession(), cameraProduct())
	require.NoError(t, err)

	_, err = store.GetProductByID(context.Background(), created.ID)
	assert.NoError(t, err)
	assert.Len(t, index.indexed, 1)
}
