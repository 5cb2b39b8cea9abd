package reminder

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/ritual/internal/utils"
	"github.com/klokku/ritual/pkg/settings"
	"github.com/klokku/ritual/pkg/storage"
	log "github.com/sirupsen/logrus"
)

// CatchUpWindow is how late a reminder may still fire, e.g. after the
// process was asleep.
const CatchUpWindow = time.Hour

var ErrReminderNotFound = errors.New("reminder not found")
var ErrStorage = errors.New("reminder storage unavailable")
var ErrInvalidDate = errors.New("invalid date")

type SettingsReader interface {
	Get(ctx context.Context) settings.AppSettings
}

type Service interface {
	List(ctx context.Context) []Reminder
	Create(ctx context.Context, r Reminder) (Reminder, error)
	Update(ctx context.Context, r Reminder) (Reminder, error)
	Delete(ctx context.Context, id string) error
	// Instances returns what happened to each reminder on date.
	Instances(ctx context.Context, date string) (map[string]Instance, error)
	Dismiss(ctx context.Context, date, id string) error
	// Poll fires every reminder that is due at now and has not fired on
	// now's date yet.
	Poll(ctx context.Context, now time.Time) []Reminder
}

type ServiceImpl struct {
	mu       sync.Mutex
	store    *storage.Store
	settings SettingsReader
	notifier Notifier
}

func NewService(store *storage.Store, settings SettingsReader, notifier Notifier) *ServiceImpl {
	return &ServiceImpl{store: store, settings: settings, notifier: notifier}
}

func (s *ServiceImpl) List(ctx context.Context) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *ServiceImpl) Create(ctx context.Context, r Reminder) (Reminder, error) {
	r.Id = uuid.NewString()
	r.Title = strings.TrimSpace(r.Title)
	if err := r.Validate(); err != nil {
		return Reminder{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	reminders := append(s.load(ctx), r)
	if !storage.Save(ctx, s.store, storage.RemindersKey, reminders) {
		return Reminder{}, ErrStorage
	}
	log.Debugf("created reminder %s at %s", r.Id, r.Time)
	return r, nil
}

func (s *ServiceImpl) Update(ctx context.Context, r Reminder) (Reminder, error) {
	r.Title = strings.TrimSpace(r.Title)
	if err := r.Validate(); err != nil {
		return Reminder{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	reminders := s.load(ctx)
	idx := slices.IndexFunc(reminders, func(existing Reminder) bool { return existing.Id == r.Id })
	if idx < 0 {
		return Reminder{}, ErrReminderNotFound
	}
	reminders[idx] = r
	if !storage.Save(ctx, s.store, storage.RemindersKey, reminders) {
		return Reminder{}, ErrStorage
	}
	return r, nil
}

func (s *ServiceImpl) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reminders := s.load(ctx)
	idx := slices.IndexFunc(reminders, func(existing Reminder) bool { return existing.Id == id })
	if idx < 0 {
		return ErrReminderNotFound
	}
	reminders = slices.Delete(reminders, idx, idx+1)
	if !storage.Save(ctx, s.store, storage.RemindersKey, reminders) {
		return ErrStorage
	}
	return nil
}

func (s *ServiceImpl) Instances(ctx context.Context, date string) (map[string]Instance, error) {
	if _, err := utils.ParseDate(date); err != nil {
		return nil, errors.Join(ErrInvalidDate, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instances(ctx, date), nil
}

func (s *ServiceImpl) Dismiss(ctx context.Context, date, id string) error {
	if _, err := utils.ParseDate(date); err != nil {
		return errors.Join(ErrInvalidDate, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.ContainsFunc(s.load(ctx), func(r Reminder) bool { return r.Id == id }) {
		return ErrReminderNotFound
	}
	instances := s.instances(ctx, date)
	instance := instances[id]
	instance.Dismissed = true
	instances[id] = instance
	if !storage.Save(ctx, s.store, storage.ReminderStateKey(date), instances) {
		return ErrStorage
	}
	return nil
}

func (s *ServiceImpl) Poll(ctx context.Context, now time.Time) []Reminder {
	appSettings := s.settings.Get(ctx)
	date := appSettings.DateOf(now)
	day, err := utils.ParseDate(date)
	if err != nil {
		log.Errorf("reminder poll: %v", err)
		return nil
	}
	lead := time.Duration(appSettings.ReminderLeadMinutes) * time.Minute

	s.mu.Lock()
	defer s.mu.Unlock()

	instances := s.instances(ctx, date)
	var fired []Reminder
	for _, r := range s.load(ctx) {
		if !r.ActiveOn(day.Weekday()) {
			continue
		}
		instance := instances[r.Id]
		if instance.FiredAt != nil || instance.Dismissed {
			continue
		}
		due, err := r.DueAt(day, appSettings.DayStartHour, now.Location())
		if err != nil {
			log.Warnf("skipping reminder %s: %v", r.Id, err)
			continue
		}
		if now.Before(due.Add(-lead)) || now.After(due.Add(CatchUpWindow)) {
			continue
		}
		if err := s.notifier.Notify(ctx, r, now); err != nil {
			log.Warnf("failed to deliver reminder %s, will retry: %v", r.Id, err)
			continue
		}
		firedAt := now
		instance.FiredAt = &firedAt
		instances[r.Id] = instance
		fired = append(fired, r)
	}
	if len(fired) > 0 && !storage.Save(ctx, s.store, storage.ReminderStateKey(date), instances) {
		log.Errorf("failed to record fired reminders for %s", date)
	}
	return fired
}

func (s *ServiceImpl) load(ctx context.Context) []Reminder {
	reminders, found := storage.Load[[]Reminder](ctx, s.store, storage.RemindersKey)
	if !found || reminders == nil {
		return []Reminder{}
	}
	return reminders
}

func (s *ServiceImpl) instances(ctx context.Context, date string) map[string]Instance {
	instances, found := storage.Load[map[string]Instance](ctx, s.store, storage.ReminderStateKey(date))
	if !found || instances == nil {
		return map[string]Instance{}
	}
	return instances
}
