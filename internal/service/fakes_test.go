package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/session"

	"github.com/shopspring/decimal"
)

// memoryStore implements ProductStore, OrderStore and UserStore over maps
type memoryStore struct {
	mu       sync.Mutex
	products map[string]*models.Product
	orders   map[string]*models.Order
	updates  map[string][]models.OrderUpdate
	users    map[string]*models.UserProfile
	seq      int
	failWith error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		products: make(map[string]*models.Product),
		orders:   make(map[string]*models.Order),
		updates:  make(map[string][]models.OrderUpdate),
		users:    make(map[string]*models.UserProfile),
	}
}

func (m *memoryStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memoryStore) addProduct(id, name string, price string, cat models.Category, age time.Duration) *models.Product {
	p := &models.Product{
		ID:        id,
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Category:  cat,
		Stock:     10,
		CreatedAt: time.Now().Add(-age),
	}
	m.products[id] = p
	return p
}

func (m *memoryStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, apperr.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *memoryStore) GetProducts(ctx context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStore) GetNewestProducts(ctx context.Context, limit int) ([]models.Product, error) {
	all, err := m.GetProducts(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memoryStore) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	all, err := m.GetProducts(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := []models.Product{}
	for _, p := range all {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryStore) CreateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	p.ID = m.nextID("product")
	p.CreatedAt = time.Now()
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *memoryStore) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, apperr.ErrNotFound)
	}
	patch.Apply(p)
	cp := *p
	return &cp, nil
}

func (m *memoryStore) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return fmt.Errorf("product %s: %w", id, apperr.ErrNotFound)
	}
	delete(m.products, id)
	return nil
}

func (m *memoryStore) addOrder(id, userID string, status models.OrderStatus, total int64, age time.Duration) *models.Order {
	o := &models.Order{
		ID:            id,
		UserID:        userID,
		Total:         decimal.NewFromInt(total),
		Status:        status,
		PaymentStatus: models.PaymentStatusPending,
		CreatedAt:     time.Now().Add(-age),
	}
	m.orders[id] = o
	return o
}

func (m *memoryStore) sortedOrders(keep func(*models.Order) bool) []models.Order {
	out := []models.Order{}
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memoryStore) CreateOrder(ctx context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	o.ID = m.nextID("order")
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memoryStore) GetOrderByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *memoryStore) GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.sortedOrders(func(o *models.Order) bool { return o.UserID == userID }), nil
}

func (m *memoryStore) GetOrders(ctx context.Context) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedOrders(func(*models.Order) bool { return true }), nil
}

func (m *memoryStore) GetOrderUpdates(ctx context.Context, orderID string) ([]models.OrderUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderUpdate{}, m.updates[orderID]...), nil
}

func (m *memoryStore) GetOrderStats(ctx context.Context) (*models.OrderStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.OrderStats{TotalRevenue: decimal.Zero}
	for _, o := range m.orders {
		stats.TotalOrders++
		stats.TotalRevenue = stats.TotalRevenue.Add(o.Total)
		switch o.Status {
		case models.OrderStatusDelivered:
			stats.DeliveredCount++
		case models.OrderStatusPending:
			stats.PendingCount++
		}
	}
	if stats.TotalOrders > 0 {
		stats.CompletionRate = float64(stats.DeliveredCount) / float64(stats.TotalOrders)
	}
	return stats, nil
}

func (m *memoryStore) AppendOrderUpdate(ctx context.Context, u *models.OrderUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	o, ok := m.orders[u.OrderID]
	if !ok {
		return fmt.Errorf("order %s: %w", u.OrderID, apperr.ErrNotFound)
	}
	u.ID = m.nextID("update")
	u.CreatedAt = time.Now()
	o.Status = u.Status
	if u.PaymentStatus != "" {
		o.PaymentStatus = u.PaymentStatus
	}
	m.updates[u.OrderID] = append(m.updates[u.OrderID], *u)
	return nil
}

func (m *memoryStore) CreateUser(ctx context.Context, u *models.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == strings.ToLower(u.Email) {
			return fmt.Errorf("email %s already registered: %w", u.Email, apperr.ErrConflict)
		}
	}
	u.ID = m.nextID("user")
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memoryStore) GetUserByID(ctx context.Context, id string) (*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *memoryStore) GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, u := range m.users {
		if u.Email == strings.ToLower(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, apperr.ErrNotFound)
}

func (m *memoryStore) GetRole(ctx context.Context, userID string) (models.Role, error) {
	u, err := m.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

func (m *memoryStore) setRole(userID string, role models.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID].Role = role
}

func (m *memoryStore) GetLikedProducts(ctx context.Context, userID string) ([]string, error) {
	u, err := m.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return []string(u.LikedProducts), nil
}

func (m *memoryStore) ToggleLikedProduct(ctx context.Context, userID, productID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return false, fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
	}
	for i, id := range u.LikedProducts {
		if id == productID {
			u.LikedProducts = append(u.LikedProducts[:i], u.LikedProducts[i+1:]...)
			return false, nil
		}
	}
	u.LikedProducts = append(u.LikedProducts, productID)
	return true, nil
}

var errConnRefused = errors.New("dial tcp: connection refused")

func adminSession() *session.Session {
	return &session.Session{ID: "s-admin", UserID: "admin-1", Role: models.RoleAdmin}
}

func customerSession(userID string) *session.Session {
	return &session.Session{ID: "s-" + userID, UserID: userID, Role: models.RoleCustomer}
}

type recordingPublisher struct {
	mu       sync.Mutex
	products []*models.ProductEvent
	status   []*models.OrderStatusChangedEvent
	auth     []*models.AuthEvent
}

func (r *recordingPublisher) PublishProductEvent(ctx context.Context, e *models.ProductEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products = append(r.products, e)
	return nil
}

func (r *recordingPublisher) PublishOrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = append(r.status, e)
	return nil
}

func (r *recordingPublisher) PublishAuthEvent(ctx context.Context, e *models.AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auth = append(r.auth, e)
	return nil
}
