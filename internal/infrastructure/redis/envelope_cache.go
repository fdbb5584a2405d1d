package redis

import (
	"context"

	"github.com/example/budget-event-sourced/internal/readmodel"
)

const envelopeViewKeyPrefix = "envelope:view:"

// Cache is the part of ViewCache the repositories use.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (*T, bool)
	Set(ctx context.Context, key string, value *T)
	Delete(ctx context.Context, key string)
}

// CachedEnvelopeRepository reads envelope views from the cache first and
// falls back to the wrapped repository, warming the cache on every cold read.
// Writes go to the repository and then to the cache.
type CachedEnvelopeRepository struct {
	readmodel.EnvelopeRepository
	cache Cache[readmodel.EnvelopeView]
}

func NewCachedEnvelopeRepository(repo readmodel.EnvelopeRepository, cache Cache[readmodel.EnvelopeView]) *CachedEnvelopeRepository {
	return &CachedEnvelopeRepository{EnvelopeRepository: repo, cache: cache}
}

func (r *CachedEnvelopeRepository) GetEnvelope(ctx context.Context, id string) (*readmodel.EnvelopeView, error) {
	key := envelopeViewKeyPrefix + id
	if v, ok := r.cache.Get(ctx, key); ok {
		return v, nil
	}

	v, err := r.EnvelopeRepository.GetEnvelope(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, key, v)
	return v, nil
}

func (r *CachedEnvelopeRepository) SaveEnvelope(ctx context.Context, v *readmodel.EnvelopeView) error {
	if err := r.EnvelopeRepository.SaveEnvelope(ctx, v); err != nil {
		r.cache.Delete(ctx, envelopeViewKeyPrefix+v.ID)
		return err
	}
	r.cache.Set(ctx, envelopeViewKeyPrefix+v.ID, v)
	return nil
}
