package routine

import (
	"context"
	"slices"
	"sync"
)

type RepositoryStub struct {
	mu       sync.RWMutex
	routines []Routine
	saveErr  error
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{}
}

func (r *RepositoryStub) List(ctx context.Context) ([]Routine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.routines), nil
}

func (r *RepositoryStub) SaveAll(ctx context.Context, routines []Routine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.routines = slices.Clone(routines)
	return nil
}

// FailSaves makes every following SaveAll return err.
func (r *RepositoryStub) FailSaves(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveErr = err
}

func (r *RepositoryStub) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routines = nil
	r.saveErr = nil
}
