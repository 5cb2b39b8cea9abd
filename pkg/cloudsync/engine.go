package cloudsync

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/klokku/ritual/internal/debounce"
	"github.com/klokku/ritual/internal/event_bus"
	"github.com/klokku/ritual/internal/utils"
	"github.com/klokku/ritual/pkg/storage"
	"github.com/klokku/ritual/pkg/user"
	log "github.com/sirupsen/logrus"
)

const DefaultDebounce = 5 * time.Second

// Status describes the engine for diagnostics.
type Status struct {
	Enabled     bool       `json:"enabled"`
	Initialized bool       `json:"initialized"`
	Pulled      bool       `json:"pulled"`
	User        *user.User `json:"user,omitempty"`
	Pending     []string   `json:"pending"`
	Queued      []string   `json:"queued"`
	LastPushAt  *time.Time `json:"lastPushAt,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

type queued struct {
	row Row
	seq uint64
}

// Engine mirrors local writes to a Remote. It is idle until Init and never
// returns sync failures to callers: they are logged, and failed pushes wait
// in a retry queue for the next network.online event.
type Engine struct {
	store    *storage.Store
	remote   Remote
	eventBus *event_bus.EventBus
	clock    utils.Clock
	// enabled is consulted before every push, e.g. the syncEnabled setting.
	enabled func(ctx context.Context) bool

	pushes  *debounce.Debouncer
	flushMu sync.Mutex
	// sendMu orders reading a local value and upserting it, so an older
	// value never reaches the remote after a newer one.
	sendMu sync.Mutex

	mu          sync.Mutex
	initialized bool
	pulled      bool
	account     *user.User
	queue       map[string]queued
	seq         uint64
	lastPushAt  *time.Time
	lastError   string
	unsub       []func()
}

// NewEngine creates an engine; a nil remote makes Init a no-op.
func NewEngine(
	store *storage.Store,
	remote Remote,
	eventBus *event_bus.EventBus,
	clock utils.Clock,
	delay time.Duration,
	enabled func(ctx context.Context) bool,
) *Engine {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if enabled == nil {
		enabled = func(context.Context) bool { return true }
	}
	return &Engine{
		store:    store,
		remote:   remote,
		eventBus: eventBus,
		clock:    clock,
		enabled:  enabled,
		pushes:   debounce.New(delay),
		queue:    make(map[string]queued),
	}
}

// Init subscribes to local writes and network transitions, then pulls once
// when a user is signed in.
func (e *Engine) Init(ctx context.Context) error {
	if e.remote == nil {
		log.Info("cloud sync: no remote configured, staying local")
		return nil
	}
	e.mu.Lock()
	if e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.initialized = true
	e.unsub = append(e.unsub,
		event_bus.SubscribeTyped[event_bus.KeyWritten](e.eventBus, event_bus.StorageKeyWritten,
			func(ev event_bus.EventT[event_bus.KeyWritten]) error {
				e.onKeyWritten(ev.Data.Key)
				return nil
			}),
		event_bus.SubscribeTyped[event_bus.Online](e.eventBus, event_bus.NetworkOnline,
			func(ev event_bus.EventT[event_bus.Online]) error {
				log.Debugf("cloud sync: network online (%s), flushing retry queue", ev.Data.Probe)
				e.FlushQueue(ev.Context())
				return nil
			}),
	)
	e.mu.Unlock()

	account, err := e.remote.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			log.Info("cloud sync: not signed in, skipping initial pull")
		} else {
			log.Warnf("cloud sync: failed to resolve user, skipping initial pull: %v", err)
			e.recordError(err)
		}
		return nil
	}
	e.mu.Lock()
	e.account = &account
	e.mu.Unlock()
	e.PullOnce(user.WithUser(ctx, account))
	return nil
}

// PullOnce adopts remote values for syncable keys that are missing or empty
// locally. It runs at most once per engine; a failed pull is not retried.
func (e *Engine) PullOnce(ctx context.Context) {
	e.mu.Lock()
	if e.pulled {
		e.mu.Unlock()
		return
	}
	e.pulled = true
	e.mu.Unlock()

	rows, err := e.remote.SelectAll(ctx)
	if err != nil {
		log.Errorf("cloud sync: initial pull failed: %v", err)
		e.recordError(err)
		return
	}

	var seeded []string
	for _, row := range rows {
		if !storage.Syncable(row.DataKey) || storage.IsEmptyJSON(row.Data) {
			continue
		}
		if local, found := e.store.GetRaw(ctx, row.DataKey); found && !storage.IsEmptyJSON(local) {
			continue
		}
		if e.store.Seed(ctx, row.DataKey, row.Data) {
			seeded = append(seeded, row.DataKey)
		}
	}
	log.Infof("cloud sync: pulled %d rows, seeded %d empty local keys", len(rows), len(seeded))
	if len(seeded) == 0 {
		return
	}
	err = e.eventBus.Publish(event_bus.NewEvent(ctx, event_bus.StorageKeysReplaced, event_bus.KeysReplaced{
		Keys:   seeded,
		Source: event_bus.SourceRemote,
	}))
	if err != nil {
		log.Warnf("cloud sync: seeded listeners failed: %v", err)
	}
}

func (e *Engine) onKeyWritten(key string) {
	if !storage.Syncable(key) {
		return
	}
	e.pushes.Trigger(key, func() { e.push(context.Background(), key) })
}

// push sends the value key holds when the quiet period ends, so a burst of
// writes costs one request carrying the latest value.
func (e *Engine) push(ctx context.Context, key string) {
	if !e.enabled(ctx) {
		log.Tracef("cloud sync: disabled, not pushing %s", key)
		return
	}
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	raw, found := e.store.GetRaw(ctx, key)
	if !found {
		return
	}
	row := Row{DataKey: key, Data: raw, UpdatedAt: e.clock.Now()}
	if err := e.upsert(ctx, row); err != nil {
		log.Warnf("cloud sync: push of %s failed, queued for retry: %v", key, err)
		e.enqueue(row, err)
		return
	}
	// The pushed value is the newest, whatever waited in the queue is stale.
	e.mu.Lock()
	delete(e.queue, key)
	e.mu.Unlock()
}

func (e *Engine) upsert(ctx context.Context, row Row) error {
	account, err := e.remote.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if err := e.remote.Upsert(user.WithUser(ctx, account), row); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.account = &account
	now := e.clock.Now()
	e.lastPushAt = &now
	e.lastError = ""
	return nil
}

func (e *Engine) enqueue(row Row, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	e.queue[row.DataKey] = queued{row: row, seq: e.seq}
	e.lastError = cause.Error()
}

// FlushQueue retries queued keys one by one, oldest first. A retry sends the
// value the key holds now, and a key pushed meanwhile is skipped. Keys that
// fail again stay queued.
func (e *Engine) FlushQueue(ctx context.Context) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	entries := make([]queued, 0, len(e.queue))
	for _, q := range e.queue {
		entries = append(entries, q)
	}
	e.mu.Unlock()
	slices.SortFunc(entries, func(a, b queued) int { return cmp.Compare(a.seq, b.seq) })

	for _, q := range entries {
		e.retry(ctx, q)
	}
}

func (e *Engine) retry(ctx context.Context, q queued) {
	key := q.row.DataKey
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	e.mu.Lock()
	current, ok := e.queue[key]
	e.mu.Unlock()
	if !ok || current.seq != q.seq {
		return
	}

	row := q.row
	if raw, found := e.store.GetRaw(ctx, key); found {
		row = Row{DataKey: key, Data: raw, UpdatedAt: e.clock.Now()}
	}
	if err := e.upsert(ctx, row); err != nil {
		log.Warnf("cloud sync: retry of %s failed: %v", key, err)
		e.recordError(err)
		return
	}
	e.mu.Lock()
	delete(e.queue, key)
	e.mu.Unlock()
}

// FlushPending pushes debounced writes immediately.
func (e *Engine) FlushPending() {
	e.pushes.Flush()
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	status := Status{
		Enabled:     e.remote != nil,
		Initialized: e.initialized,
		Pulled:      e.pulled,
		User:        e.account,
		Pending:     e.pushes.Pending(),
		Queued:      make([]string, 0, len(e.queue)),
		LastPushAt:  e.lastPushAt,
		LastError:   e.lastError,
	}
	for key := range e.queue {
		status.Queued = append(status.Queued, key)
	}
	slices.Sort(status.Pending)
	slices.Sort(status.Queued)
	return status
}

// Shutdown pushes pending writes once and stops listening. Rows still
// queued are dropped; the next pull does not restore them.
func (e *Engine) Shutdown(_ context.Context) {
	e.mu.Lock()
	unsub := e.unsub
	e.unsub = nil
	e.mu.Unlock()
	for _, u := range unsub {
		u()
	}
	e.pushes.Flush()
	e.pushes.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) > 0 {
		log.Warnf("cloud sync: shutting down with %d unsent rows", len(e.queue))
	}
}

func (e *Engine) recordError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastError = err.Error()
}
