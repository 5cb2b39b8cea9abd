package storage

import (
	"context"
	"sync"
	"time"

	"github.com/klokku/ritual/internal/debounce"
	log "github.com/sirupsen/logrus"
)

// LiveSet keeps documents in memory while they are being edited and writes
// each one back once its edits go quiet. A document is read from the store
// on first use only, so a slow load can never overwrite newer edits.
type LiveSet[T any] struct {
	mu    sync.Mutex
	store *Store
	saver *debounce.Debouncer
	docs  map[string]*T
	load  func(ctx context.Context, key string) T
	clone func(T) T
}

// NewLiveSet creates a set whose documents are read with load and copied with
// clone before being written.
func NewLiveSet[T any](store *Store, delay time.Duration, load func(ctx context.Context, key string) T, clone func(T) T) *LiveSet[T] {
	return &LiveSet[T]{
		store: store,
		saver: debounce.New(delay),
		docs:  make(map[string]*T),
		load:  load,
		clone: clone,
	}
}

// View runs fn on the document under key without scheduling a write.
func (l *LiveSet[T]) View(ctx context.Context, key string, fn func(doc *T)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.get(ctx, key))
}

// Update runs fn on the document under key and schedules a write unless fn
// fails. fn must not call back into the set.
func (l *LiveSet[T]) Update(ctx context.Context, key string, fn func(doc *T) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc := l.get(ctx, key)
	if err := fn(doc); err != nil {
		return err
	}
	l.saver.Trigger(key, func() { l.persist(key) })
	return nil
}

// Flush writes every pending document now.
func (l *LiveSet[T]) Flush() {
	l.saver.Flush()
}

// Evict writes pending documents and drops those whose key matches.
func (l *LiveSet[T]) Evict(match func(key string) bool) {
	l.saver.Flush()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.docs {
		if match(key) {
			delete(l.docs, key)
		}
	}
}

// Forget drops documents replaced in the store by someone else. Pending
// writes for them are discarded.
func (l *LiveSet[T]) Forget(keys []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range keys {
		delete(l.docs, key)
	}
}

// Keys lists the documents currently held in memory.
func (l *LiveSet[T]) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]string, 0, len(l.docs))
	for k := range l.docs {
		keys = append(keys, k)
	}
	return keys
}

func (l *LiveSet[T]) Close() {
	l.saver.Flush()
	l.saver.Stop()
}

// get must be called with mu held.
func (l *LiveSet[T]) get(ctx context.Context, key string) *T {
	if doc, ok := l.docs[key]; ok {
		return doc
	}
	doc := l.load(ctx, key)
	l.docs[key] = &doc
	return &doc
}

func (l *LiveSet[T]) persist(key string) {
	l.mu.Lock()
	doc, ok := l.docs[key]
	if !ok {
		l.mu.Unlock()
		return
	}
	snapshot := l.clone(*doc)
	l.mu.Unlock()

	if !l.store.Set(context.Background(), key, snapshot) {
		log.Errorf("failed to persist %s", key)
	}
}
