package reminder

import (
	"context"
	"sync"
	"time"
)

type Notification struct {
	Reminder Reminder
	At       time.Time
}

type NotifierStub struct {
	mu   sync.RWMutex
	sent []Notification
	err  error
}

func NewNotifierStub() *NotifierStub {
	return &NotifierStub{}
}

func (n *NotifierStub) Notify(_ context.Context, r Reminder, at time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, Notification{Reminder: r, At: at})
	return nil
}

// Fail makes every following Notify return err; nil restores delivery.
func (n *NotifierStub) Fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *NotifierStub) Sent() []Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]Notification(nil), n.sent...)
}

func (n *NotifierStub) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
	n.err = nil
}
