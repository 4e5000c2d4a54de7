package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type localLock struct {
	token   string
	expires time.Time
}

// LocalGuard is an in-process Guard used when Redis is not configured
type LocalGuard struct {
	mu    sync.Mutex
	held  map[string]localLock
	clock func() time.Time
}

// NewLocalGuard creates an empty LocalGuard
func NewLocalGuard() *LocalGuard {
	return &LocalGuard{
		held:  make(map[string]localLock),
		clock: time.Now,
	}
}

// Acquire takes key for ttl. A key whose ttl has lapsed can be taken again.
func (g *LocalGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	if l, ok := g.held[key]; ok && now.Before(l.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	g.held[key] = localLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

// Release drops key if it is still held under token
func (g *LocalGuard) Release(ctx context.Context, key, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.held[key]; ok && l.token == token {
		delete(g.held, key)
	}
	return nil
}
