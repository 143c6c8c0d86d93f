package memory

import (
	"context"
	"sync"
)

// PresenceStore is an in-memory implementation of app.PresenceStore for tests
// and single-process deployments without Redis.
type PresenceStore struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
	owners  map[string]string
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{
		members: make(map[string]map[string]struct{}),
		owners:  make(map[string]string),
	}
}

func (p *PresenceStore) Join(_ context.Context, joinCode, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.members[joinCode] == nil {
		p.members[joinCode] = make(map[string]struct{})
	}
	p.members[joinCode][email] = struct{}{}
	return nil
}

func (p *PresenceStore) Leave(_ context.Context, joinCode, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.members[joinCode], email)
	return nil
}

func (p *PresenceStore) IsPresent(_ context.Context, joinCode, email string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.members[joinCode][email]
	return ok, nil
}

func (p *PresenceStore) Count(_ context.Context, joinCode string) (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return int64(len(p.members[joinCode])), nil
}

func (p *PresenceStore) SetOwnerConn(_ context.Context, joinCode, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owners[joinCode] = connID
	return nil
}

func (p *PresenceStore) OwnerConn(_ context.Context, joinCode string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.owners[joinCode], nil
}

func (p *PresenceStore) Clear(_ context.Context, joinCode string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.members, joinCode)
	delete(p.owners, joinCode)
	return nil
}
