package routine

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/klokku/ritual/internal/utils"
	log "github.com/sirupsen/logrus"
)

var ErrRoutineNotFound = errors.New("routine not found")
var ErrItemNotFound = errors.New("routine item not found")
var ErrInvalidName = errors.New("routine name must not be empty")

type Service interface {
	List(ctx context.Context) ([]Routine, error)
	Get(ctx context.Context, id string) (Routine, error)
	Create(ctx context.Context, name string, text string, color string, memo string) (Routine, error)
	Update(ctx context.Context, id string, update Update) (Routine, error)
	Delete(ctx context.Context, id string) error
	// FindItem returns the routine owning itemId together with the item and its phase.
	FindItem(ctx context.Context, routineId string, itemId string) (Routine, RoutineItem, RoutinePhase, error)
}

// Update lists the fields to change; nil fields are left alone.
type Update struct {
	Name  *string
	Text  *string
	Color *string
	Memo  *string
}

type ServiceImpl struct {
	mu    sync.Mutex
	repo  Repository
	clock utils.Clock
}

func NewService(repo Repository, clock utils.Clock) Service {
	return &ServiceImpl{repo: repo, clock: clock}
}

func (s *ServiceImpl) List(ctx context.Context) ([]Routine, error) {
	return s.repo.List(ctx)
}

func (s *ServiceImpl) Get(ctx context.Context, id string) (Routine, error) {
	routines, err := s.repo.List(ctx)
	if err != nil {
		return Routine{}, err
	}
	idx := slices.IndexFunc(routines, func(r Routine) bool { return r.Id == id })
	if idx < 0 {
		return Routine{}, ErrRoutineNotFound
	}
	return routines[idx], nil
}

func (s *ServiceImpl) Create(ctx context.Context, name string, text string, color string, memo string) (Routine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Routine{}, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	routines, err := s.repo.List(ctx)
	if err != nil {
		return Routine{}, err
	}

	now := s.clock.Now()
	r := FromText(name, text)
	r.Color = color
	r.Memo = memo
	r.CreatedAt = now
	r.UpdatedAt = now

	if err := s.repo.SaveAll(ctx, append(routines, r)); err != nil {
		log.Errorf("failed to store new routine %s: %v", name, err)
		return Routine{}, err
	}
	log.Debugf("created routine %s with %d items", r.Id, len(r.Items()))
	return r, nil
}

func (s *ServiceImpl) Update(ctx context.Context, id string, update Update) (Routine, error) {
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return Routine{}, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	routines, err := s.repo.List(ctx)
	if err != nil {
		return Routine{}, err
	}
	idx := slices.IndexFunc(routines, func(r Routine) bool { return r.Id == id })
	if idx < 0 {
		return Routine{}, ErrRoutineNotFound
	}

	r := routines[idx]
	if update.Name != nil {
		r.Name = strings.TrimSpace(*update.Name)
	}
	if update.Text != nil {
		r = r.WithText(*update.Text)
	}
	if update.Color != nil {
		r.Color = *update.Color
	}
	if update.Memo != nil {
		r.Memo = *update.Memo
	}
	r.UpdatedAt = s.clock.Now()
	routines[idx] = r

	if err := s.repo.SaveAll(ctx, routines); err != nil {
		log.Errorf("failed to update routine %s: %v", id, err)
		return Routine{}, err
	}
	return r, nil
}

func (s *ServiceImpl) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	routines, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	before := len(routines)
	remaining := slices.DeleteFunc(routines, func(r Routine) bool { return r.Id == id })
	if len(remaining) == before {
		return ErrRoutineNotFound
	}
	if err := s.repo.SaveAll(ctx, remaining); err != nil {
		log.Errorf("failed to delete routine %s: %v", id, err)
		return err
	}
	return nil
}

func (s *ServiceImpl) FindItem(ctx context.Context, routineId string, itemId string) (Routine, RoutineItem, RoutinePhase, error) {
	r, err := s.Get(ctx, routineId)
	if err != nil {
		return Routine{}, RoutineItem{}, RoutinePhase{}, err
	}
	item, phase, ok := r.FindItem(itemId)
	if !ok {
		return Routine{}, RoutineItem{}, RoutinePhase{}, ErrItemNotFound
	}
	return r, item, phase, nil
}
