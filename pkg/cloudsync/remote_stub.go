package cloudsync

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/klokku/ritual/pkg/user"
)

// RemoteStub keeps rows in memory per user and can simulate outages.
type RemoteStub struct {
	mu      sync.RWMutex
	account *user.User
	rows    map[string]map[string]Row
	offline bool
	upserts int
	// onUpsert runs before each upserted row is stored, outside the lock.
	onUpsert func(Row)
}

func NewRemoteStub() *RemoteStub {
	return &RemoteStub{rows: make(map[string]map[string]Row)}
}

func (r *RemoteStub) SignIn(u user.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.account = &u
}

func (r *RemoteStub) SignOut() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.account = nil
}

func (r *RemoteStub) SetOffline(offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline = offline
}

// Put stores a row for userUid without counting it as an upsert.
func (r *RemoteStub) Put(userUid string, row Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(userUid, row)
}

// OnUpsert registers fn to run before every upserted row is stored.
func (r *RemoteStub) OnUpsert(fn func(Row)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUpsert = fn
}

func (r *RemoteStub) Row(userUid, key string) (Row, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[userUid][key]
	return row, ok
}

func (r *RemoteStub) Upserts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.upserts
}

func (r *RemoteStub) CurrentUser(_ context.Context) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.offline {
		return user.User{}, errOffline
	}
	if r.account == nil {
		return user.User{}, ErrUnauthenticated
	}
	return *r.account, nil
}

func (r *RemoteStub) SelectAll(ctx context.Context) ([]Row, error) {
	uid, err := user.CurrentUid(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.offline {
		return nil, errOffline
	}
	rows := make([]Row, 0, len(r.rows[uid]))
	for _, row := range r.rows[uid] {
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b Row) int { return strings.Compare(a.DataKey, b.DataKey) })
	return rows, nil
}

func (r *RemoteStub) Upsert(ctx context.Context, rows ...Row) error {
	uid, err := user.CurrentUid(ctx)
	if err != nil {
		return err
	}
	r.mu.RLock()
	hook := r.onUpsert
	r.mu.RUnlock()
	if hook != nil {
		for _, row := range rows {
			hook(row)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offline {
		return errOffline
	}
	for _, row := range rows {
		r.put(uid, row)
		r.upserts++
	}
	return nil
}

func (r *RemoteStub) Ping(_ context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.offline {
		return errOffline
	}
	return nil
}

func (r *RemoteStub) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.account = nil
	r.rows = make(map[string]map[string]Row)
	r.offline = false
	r.upserts = 0
	r.onUpsert = nil
}

func (r *RemoteStub) put(userUid string, row Row) {
	if r.rows[userUid] == nil {
		r.rows[userUid] = make(map[string]Row)
	}
	r.rows[userUid][row.DataKey] = row
}

type offlineError struct{}

func (offlineError) Error() string { return "remote unreachable" }

var errOffline error = offlineError{}
