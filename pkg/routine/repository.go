package routine

import (
	"context"
	"errors"

	"github.com/klokku/ritual/pkg/storage"
)

var ErrStorage = errors.New("routine storage unavailable")

type Repository interface {
	List(ctx context.Context) ([]Routine, error)
	SaveAll(ctx context.Context, routines []Routine) error
}

type repositoryImpl struct {
	store *storage.Store
}

func NewRepository(store *storage.Store) Repository {
	return &repositoryImpl{store: store}
}

func (r *repositoryImpl) List(ctx context.Context) ([]Routine, error) {
	routines, found := storage.Load[[]Routine](ctx, r.store, storage.RoutinesKey)
	if !found || routines == nil {
		return []Routine{}, nil
	}
	return routines, nil
}

func (r *repositoryImpl) SaveAll(ctx context.Context, routines []Routine) error {
	if routines == nil {
		routines = []Routine{}
	}
	if !storage.Save(ctx, r.store, storage.RoutinesKey, routines) {
		return ErrStorage
	}
	// An empty list is restored from the backup copy on the next read, so
	// the copy goes when the last routine does.
	if len(routines) == 0 && !r.store.Delete(ctx, storage.ShadowKey(storage.RoutinesKey)) {
		return ErrStorage
	}
	return nil
}
