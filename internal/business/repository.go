package business

import (
	"context"
	"strings"
	"sync"
)

// Repository resolves business profiles. Profiles are managed outside this
// service; the engine only ever reads them.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Business, error)
	GetByPhone(ctx context.Context, phone string) (*Business, error)
	GetBySlug(ctx context.Context, slug string) (*Business, error)
}

// InMemoryRepository is a Repository backed by a map, used in tests and local
// development.
type InMemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*Business
	phoneIndex map[string]string
	slugIndex  map[string]string
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:       make(map[string]*Business),
		phoneIndex: make(map[string]string),
		slugIndex:  make(map[string]string),
	}
}

// Put registers a business profile.
func (r *InMemoryRepository) Put(b *Business) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[b.ID] = b
	if b.Phone != "" {
		r.phoneIndex[b.Phone] = b.ID
	}
	if b.Slug != "" {
		r.slugIndex[strings.ToLower(b.Slug)] = b.ID
	}
}

// GetByID returns the business with the given id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	return b, nil
}

// GetByPhone resolves the business owning the given E.164 number.
func (r *InMemoryRepository) GetByPhone(ctx context.Context, phone string) (*Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.phoneIndex[phone]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	return r.byID[id], nil
}

// GetBySlug resolves the business by its public booking-page slug.
func (r *InMemoryRepository) GetBySlug(ctx context.Context, slug string) (*Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.slugIndex[strings.ToLower(slug)]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	return r.byID[id], nil
}
