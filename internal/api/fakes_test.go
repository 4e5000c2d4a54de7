package api

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// fakeStore is a map-backed stand-in for the postgres store
type fakeStore struct {
	mu       sync.Mutex
	seq      int
	products map[string]models.Product
	orders   map[string]models.Order
	updates  map[string][]models.OrderUpdate
	users    map[string]models.UserProfile
}

func newFakeStore() *fakeStore {
	s := &fakeStore{
		products: make(map[string]models.Product),
		orders:   make(map[string]models.Order),
		updates:  make(map[string][]models.OrderUpdate),
		users:    make(map[string]models.UserProfile),
	}
	now := time.Now()
	s.products["p1"] = models.Product{ID: "p1", Name: "AirPods Pro", Description: "Noise cancelling earbuds",
		Price: decimal.RequireFromString("249.99"), Category: models.CategoryAudio, Stock: 5, CreatedAt: now.Add(-3 * time.Hour)}
	s.products["p2"] = models.Product{ID: "p2", Name: "MacBook Pro M2", Description: "Laptop",
		Price: decimal.RequireFromString("1299.99"), Category: models.CategoryElectronics, Stock: 5, CreatedAt: now.Add(-2 * time.Hour)}
	s.products["p3"] = models.Product{ID: "p3", Name: "USB-C Cable", Description: "Braided cable",
		Price: decimal.RequireFromString("19.99"), Category: models.CategoryAccessories, Stock: 5, CreatedAt: now.Add(-time.Hour)}
	return s
}

func (s *fakeStore) next(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *fakeStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, apperr.ErrNotFound)
	}
	return &p, nil
}

func (s *fakeStore) GetProducts(ctx context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) GetNewestProducts(ctx context.Context, limit int) ([]models.Product, error) {
	all, _ := s.GetProducts(ctx)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *fakeStore) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	all, _ := s.GetProducts(ctx)
	out := []models.Product{}
	for _, p := range all {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) CreateProduct(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.next("product")
	p.CreatedAt = time.Now()
	s.products[p.ID] = *p
	return nil
}

func (s *fakeStore) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, apperr.ErrNotFound)
	}
	patch.Apply(&p)
	s.products[id] = p
	return &p, nil
}

func (s *fakeStore) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("product %s: %w", id, apperr.ErrNotFound)
	}
	delete(s.products, id)
	return nil
}

func (s *fakeStore) CreateOrder(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = s.next("order")
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	s.orders[o.ID] = *o
	return nil
}

func (s *fakeStore) GetOrderByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) AppendOrderUpdate(ctx context.Context, u *models.OrderUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[u.OrderID]
	if !ok {
		return fmt.Errorf("order %s: %w", u.OrderID, apperr.ErrNotFound)
	}
	u.ID = s.next("update")
	u.CreatedAt = time.Now()
	o.Status = u.Status
	if u.PaymentStatus != "" {
		o.PaymentStatus = u.PaymentStatus
	}
	s.orders[o.ID] = o
	s.updates[o.ID] = append(s.updates[o.ID], *u)
	return nil
}

func (s *fakeStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	return &o, nil
}

func (s *fakeStore) listOrders(keep func(models.Order) bool) []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Order{}
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *fakeStore) GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	return s.listOrders(func(o models.Order) bool { return o.UserID == userID }), nil
}

func (s *fakeStore) GetOrders(ctx context.Context) ([]models.Order, error) {
	return s.listOrders(func(models.Order) bool { return true }), nil
}

func (s *fakeStore) GetOrderUpdates(ctx context.Context, orderID string) ([]models.OrderUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OrderUpdate{}, s.updates[orderID]...), nil
}

func (s *fakeStore) GetOrderStats(ctx context.Context) (*models.OrderStats, error) {
	stats := &models.OrderStats{}
	for _, o := range s.listOrders(func(models.Order) bool { return true }) {
		stats.TotalOrders++
		stats.TotalRevenue = stats.TotalRevenue.Add(o.Total)
		if o.Status == models.OrderStatusDelivered {
			stats.DeliveredCount++
		}
	}
	return stats, nil
}

func (s *fakeStore) CreateUser(ctx context.Context, u *models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("email %s: %w", u.Email, apperr.ErrConflict)
		}
	}
	u.ID = s.next("user")
	u.CreatedAt = time.Now()
	s.users[u.ID] = *u
	return nil
}

func (s *fakeStore) GetUserByID(ctx context.Context, id string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	return &u, nil
}

func (s *fakeStore) GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == strings.ToLower(email) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, apperr.ErrNotFound)
}

func (s *fakeStore) GetRole(ctx context.Context, userID string) (models.Role, error) {
	u, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

func (s *fakeStore) promote(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	u.Role = models.RoleAdmin
	s.users[userID] = u
}

func (s *fakeStore) GetLikedProducts(ctx context.Context, userID string) ([]string, error) {
	u, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.LikedProducts, nil
}

func (s *fakeStore) ToggleLikedProduct(ctx context.Context, userID, productID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	for i, id := range u.LikedProducts {
		if id == productID {
			u.LikedProducts = append(u.LikedProducts[:i:i], u.LikedProducts[i+1:]...)
			s.users[userID] = u
			return false, nil
		}
	}
	u.LikedProducts = append(u.LikedProducts, productID)
	s.users[userID] = u
	return true, nil
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type instantPayment struct{}

func (instantPayment) Confirm(ctx context.Context, order *models.Order) (string, error) {
	return "TXN-00000001", nil
}
