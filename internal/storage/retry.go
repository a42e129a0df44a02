// Copyright 2025 James Ross
package storage

import (
	"context"
	"time"

	"github.com/jamesross/vaultkeep/internal/breaker"
	"github.com/jamesross/vaultkeep/internal/obs"
	"github.com/jamesross/vaultkeep/internal/vaulterr"
)

// Retrying wraps a Backend with a circuit breaker so a remote backend
// (S3, Redis) failing repeatedly stops taking new calls for a cooldown
// period instead of letting every ingest/materialise call pile up on a
// slow timeout. NotFound and Cancelled are not failures from the
// breaker's point of view — they're expected outcomes, not backend
// trouble.
type Retrying struct {
	inner Backend
	cb    *breaker.CircuitBreaker
	label string
}

// NewRetrying wraps inner with a breaker tracking failures over window,
// tripping open at failureThreshold fraction of minSamples+ calls, and
// probing again after cooldown. label identifies the wrapped backend in
// the circuit_breaker_state metric (e.g. "s3", "redis").
func NewRetrying(inner Backend, window, cooldown time.Duration, failureThreshold float64, minSamples int, label string) *Retrying {
	return &Retrying{inner: inner, cb: breaker.New(window, cooldown, failureThreshold, minSamples), label: label}
}

func (r *Retrying) guard() error {
	allowed := r.cb.Allow()
	obs.CircuitBreakerState.WithLabelValues(r.label).Set(float64(r.cb.State()))
	if !allowed {
		return vaulterr.New(vaulterr.KindStorage, "storage backend circuit open")
	}
	return nil
}

func (r *Retrying) record(err error) error {
	isBackendFailure := err != nil &&
		vaulterr.KindOf(err) != vaulterr.KindNotFound &&
		vaulterr.KindOf(err) != vaulterr.KindCancelled

	stateBefore := r.cb.State()
	r.cb.Record(!isBackendFailure)
	stateAfter := r.cb.State()

	obs.CircuitBreakerState.WithLabelValues(r.label).Set(float64(stateAfter))
	if stateBefore != breaker.Open && stateAfter == breaker.Open {
		obs.CircuitBreakerTrips.Inc()
	}
	return err
}

func (r *Retrying) PutChunk(ctx context.Context, address string, data []byte) error {
	if err := r.guard(); err != nil {
		return err
	}
	return r.record(r.inner.PutChunk(ctx, address, data))
}

func (r *Retrying) GetChunk(ctx context.Context, address string) ([]byte, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	data, err := r.inner.GetChunk(ctx, address)
	return data, r.record(err)
}

func (r *Retrying) ChunkExists(ctx context.Context, address string) (bool, error) {
	if err := r.guard(); err != nil {
		return false, err
	}
	ok, err := r.inner.ChunkExists(ctx, address)
	return ok, r.record(err)
}

func (r *Retrying) DeleteChunk(ctx context.Context, address string) error {
	if err := r.guard(); err != nil {
		return err
	}
	return r.record(r.inner.DeleteChunk(ctx, address))
}

func (r *Retrying) ListChunks(ctx context.Context) ([]string, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	addrs, err := r.inner.ListChunks(ctx)
	return addrs, r.record(err)
}

func (r *Retrying) PutMetadata(ctx context.Context, key string, data []byte) error {
	if err := r.guard(); err != nil {
		return err
	}
	return r.record(r.inner.PutMetadata(ctx, key, data))
}

func (r *Retrying) GetMetadata(ctx context.Context, key string) ([]byte, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	data, err := r.inner.GetMetadata(ctx, key)
	return data, r.record(err)
}

func (r *Retrying) DeleteMetadata(ctx context.Context, key string) error {
	if err := r.guard(); err != nil {
		return err
	}
	return r.record(r.inner.DeleteMetadata(ctx, key))
}

func (r *Retrying) Stats(ctx context.Context) (Stats, error) {
	if err := r.guard(); err != nil {
		return Stats{}, err
	}
	stats, err := r.inner.Stats(ctx)
	return stats, r.record(err)
}
