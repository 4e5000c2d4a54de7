package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CartRepository persists carts between requests, keyed by cart session id
type CartRepository interface {
	LoadCart(ctx context.Context, sessionID string) (*cart.Cart, error)
	SaveCart(ctx context.Context, sessionID string, c *cart.Cart, ttl time.Duration) error
	DeleteCart(ctx context.Context, sessionID string) error
}

// ProductLookup finds a single product
type ProductLookup interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
}

// CartService loads a session's cart, applies one mutation and writes it back
type CartService struct {
	carts    CartRepository
	products ProductLookup
	ttl      time.Duration
	logger   *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(carts CartRepository, products ProductLookup, ttl time.Duration) *CartService {
	return &CartService{
		carts:    carts,
		products: products,
		ttl:      ttl,
		logger:   util.GetLogger(),
	}
}

// Get returns the derived view of a session's cart
func (s *CartService) Get(ctx context.Context, sessionID string) (cart.Summary, error) {
	c, err := s.load(ctx, sessionID)
	if err != nil {
		return cart.Summary{}, err
	}
	return c.Summary(), nil
}

// AddItem adds one unit of a product, snapshotting its current name, price and image
func (s *CartService) AddItem(ctx context.Context, sessionID, productID string) (cart.Summary, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	product, err := s.products.GetProductByID(ctx, productID)
	if err != nil {
		return cart.Summary{}, err
	}

	return s.mutate(ctx, sessionID, "add", func(c *cart.Cart) {
		c.AddItem(*product)
	})
}

// UpdateQuantity sets a line's quantity. Quantities below 1 and unknown ids leave the cart unchanged.
func (s *CartService) UpdateQuantity(ctx context.Context, sessionID, productID string, quantity int) (cart.Summary, error) {
	return s.mutate(ctx, sessionID, "update", func(c *cart.Cart) {
		if !c.UpdateQuantity(productID, quantity) {
			s.logger.Debug("Cart quantity update ignored",
				zap.String("product_id", productID),
				zap.Int("quantity", quantity))
		}
	})
}

// RemoveItem drops a line
func (s *CartService) RemoveItem(ctx context.Context, sessionID, productID string) (cart.Summary, error) {
	return s.mutate(ctx, sessionID, "remove", func(c *cart.Cart) {
		c.RemoveItem(productID)
	})
}

// Clear empties a session's cart
func (s *CartService) Clear(ctx context.Context, sessionID string) (cart.Summary, error) {
	util.CartMutationsTotal.WithLabelValues("clear").Inc()
	if err := s.carts.DeleteCart(ctx, sessionID); err != nil {
		return cart.Summary{}, fmt.Errorf("failed to clear cart: %w", unavailable(err))
	}
	return cart.New().Summary(), nil
}

func (s *CartService) load(ctx context.Context, sessionID string) (*cart.Cart, error) {
	c, err := s.carts.LoadCart(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", unavailable(err))
	}
	return c, nil
}

func (s *CartService) save(ctx context.Context, sessionID string, c *cart.Cart) error {
	if err := s.carts.SaveCart(ctx, sessionID, c, s.ttl); err != nil {
		return fmt.Errorf("failed to save cart: %w", unavailable(err))
	}
	return nil
}

func (s *CartService) mutate(ctx context.Context, sessionID, op string, fn func(*cart.Cart)) (cart.Summary, error) {
	c, err := s.load(ctx, sessionID)
	if err != nil {
		return cart.Summary{}, err
	}
	fn(c)
	if err := s.save(ctx, sessionID, c); err != nil {
		return cart.Summary{}, err
	}
	util.CartMutationsTotal.WithLabelValues(op).Inc()
	return c.Summary(), nil
}

// MemoryCartRepository keeps carts in process memory. Entries expire after their TTL.
type MemoryCartRepository struct {
	mu    sync.Mutex
	carts map[string]memoryCart
}

type memoryCart struct {
	data    []byte
	expires time.Time
}

// NewMemoryCartRepository creates an empty in-memory cart repository
func NewMemoryCartRepository() *MemoryCartRepository {
	return &MemoryCartRepository{carts: make(map[string]memoryCart)}
}

// LoadCart returns a copy of the stored cart, or an empty cart
func (r *MemoryCartRepository) LoadCart(ctx context.Context, sessionID string) (*cart.Cart, error) {
	r.mu.Lock()
	entry, ok := r.carts[sessionID]
	if ok && !entry.expires.IsZero() && time.Now().After(entry.expires) {
		delete(r.carts, sessionID)
		ok = false
	}
	r.mu.Unlock()

	c := cart.New()
	if !ok {
		return c, nil
	}
	if err := json.Unmarshal(entry.data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SaveCart stores a copy of c. An empty cart is deleted.
func (r *MemoryCartRepository) SaveCart(ctx context.Context, sessionID string, c *cart.Cart, ttl time.Duration) error {
	if c.IsEmpty() {
		return r.DeleteCart(ctx, sessionID)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}

	entry := memoryCart{data: data}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.carts[sessionID] = entry
	return nil
}

// DeleteCart removes a stored cart
func (r *MemoryCartRepository) DeleteCart(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, sessionID)
	return nil
}
