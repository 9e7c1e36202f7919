// Package registry selects the vector store once and hands the same instance to every caller.
package registry

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"ragqa/internal/vectorstore"
	"ragqa/internal/vectorstore/local"
)

var errNoRemoteFactory = errors.New("registry: no remote store configured")

// RemoteFactory constructs the remote store. Any error triggers the local fallback.
type RemoteFactory func(ctx context.Context) (vectorstore.Storage, error)

// Registry lazily builds exactly one store. After the first Get the choice is fixed until Reset.
type Registry struct {
	mu        sync.Mutex
	requested vectorstore.Backend
	remote    RemoteFactory
	logger    *zap.Logger

	store       vectorstore.Storage
	fallbackErr error
}

func New(requested vectorstore.Backend, remote RemoteFactory, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{requested: requested, remote: remote, logger: logger}
}

// Get returns the selected store, constructing it on first use.
// A failed remote construction falls back to a local store and is never retried.
func (r *Registry) Get(ctx context.Context) vectorstore.Storage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store != nil {
		return r.store
	}
	if r.requested == vectorstore.BackendRemote {
		store, err := r.buildRemote(ctx)
		if err == nil {
			r.logger.Info("vector store selected", zap.String("backend", string(vectorstore.BackendRemote)))
			r.store = store
			return r.store
		}
		r.fallbackErr = err
		r.logger.Error("remote vector store unavailable, falling back to local", zap.Error(err))
	}
	r.store = local.NewStorage(0)
	r.logger.Info("vector store selected", zap.String("backend", string(vectorstore.BackendLocal)))
	return r.store
}

func (r *Registry) buildRemote(ctx context.Context) (vectorstore.Storage, error) {
	if r.remote == nil {
		return nil, errNoRemoteFactory
	}
	return r.remote(ctx)
}

// Requested is the configured backend preference.
func (r *Registry) Requested() vectorstore.Backend { return r.requested }

// Backend reports the backend in use, resolving the store if needed.
func (r *Registry) Backend(ctx context.Context) vectorstore.Backend {
	return r.Get(ctx).Backend()
}

// FallbackErr is the remote construction error that caused the local fallback, if any.
func (r *Registry) FallbackErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fallbackErr
}

// Reset drops the selected store. Only tests use it.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = nil
	r.fallbackErr = nil
}
