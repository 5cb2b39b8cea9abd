package storage

import (
	"context"
	"encoding/json"
	"regexp"
	"slices"

	log "github.com/sirupsen/logrus"
)

// LegacyScanVersion identifies the legacy execution key layout handled by
// MigrateLegacyExecution. Bump it when another layout needs migrating.
const LegacyScanVersion = 1

// Older releases stored executions as exec_<routine>_<date>,
// execution-<routine>-<date> or execution_state:<routine>:<date>.
var legacyExecutionKey = regexp.MustCompile(`^(?:execution_state|execution|exec)[-_:](.+)[-_:](\d{4}-\d{2}-\d{2})$`)

// MigrateLegacyExecution copies the first usable (in key order) legacy execution document for
// routineId on date to its current key. The scan runs at most once per target
// key for the life of the store.
func (s *Store) MigrateLegacyExecution(ctx context.Context, routineId, date string) (json.RawMessage, bool) {
	target := ExecutionKey(routineId, date)

	s.mu.Lock()
	if s.legacyScanned[target] {
		s.mu.Unlock()
		return nil, false
	}
	s.legacyScanned[target] = true
	s.mu.Unlock()

	keys, err := s.backend.Keys(ctx)
	if err != nil {
		log.Warnf("legacy scan v%d for %s: listing keys failed: %v", LegacyScanVersion, target, err)
		return nil, false
	}
	// Backends list keys in no particular order.
	slices.Sort(keys)

	for _, key := range keys {
		m := legacyExecutionKey.FindStringSubmatch(key)
		if m == nil || m[1] != routineId || m[2] != date {
			continue
		}
		raw, ok := s.read(ctx, key)
		if !ok || !looksLikeExecution(raw) {
			continue
		}
		log.Infof("legacy scan v%d: migrating %s to %s", LegacyScanVersion, key, target)
		if !s.SetRaw(ctx, target, raw) {
			return nil, false
		}
		return raw, true
	}
	return nil, false
}

func looksLikeExecution(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	_, hasChecked := obj["checked"]
	_, hasCompleted := obj["completed"]
	return hasChecked || hasCompleted
}
