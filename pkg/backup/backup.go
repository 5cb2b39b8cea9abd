// Package backup exports routines, execution states and settings as one
// document and imports such a document back.
package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/klokku/ritual/pkg/routine"
	"github.com/klokku/ritual/pkg/storage"
)

const Version = 1

var ErrInvalidBackup = errors.New("invalid backup")

type BackupData struct {
	Version    int                        `json:"version"`
	ExportedAt time.Time                  `json:"exportedAt"`
	Routines   []routine.Routine          `json:"routines"`
	Executions map[string]json.RawMessage `json:"executions"`
	Settings   json.RawMessage            `json:"settings,omitempty"`
}

// rawBackup sees routines before decoding fills in missing ids.
type rawBackup struct {
	Version  *int `json:"version"`
	Routines []struct {
		Id   string `json:"id"`
		Name string `json:"name"`
	} `json:"routines"`
}

// Decode reads and validates a backup document.
func Decode(r io.Reader) (BackupData, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return BackupData{}, fmt.Errorf("failed to read backup: %w", err)
	}
	var raw rawBackup
	if err := json.Unmarshal(data, &raw); err != nil {
		return BackupData{}, invalid("not a JSON backup document: %v", err)
	}
	if raw.Version == nil {
		return BackupData{}, invalid("missing version")
	}
	for i, r := range raw.Routines {
		if strings.TrimSpace(r.Id) == "" {
			return BackupData{}, invalid("routine %d has no id", i)
		}
	}
	var backup BackupData
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&backup); err != nil {
		return BackupData{}, invalid("%v", err)
	}
	if err := backup.Validate(); err != nil {
		return BackupData{}, err
	}
	return backup, nil
}

func (b BackupData) Validate() error {
	if b.Version != Version {
		return invalid("unsupported version %d", b.Version)
	}
	var ids []string
	for i, r := range b.Routines {
		if strings.TrimSpace(r.Id) == "" {
			return invalid("routine %d has no id", i)
		}
		if strings.TrimSpace(r.Name) == "" {
			return invalid("routine %s has no name", r.Id)
		}
		if slices.Contains(ids, r.Id) {
			return invalid("duplicate routine id %s", r.Id)
		}
		ids = append(ids, r.Id)
	}
	for key, value := range b.Executions {
		if !storage.IsExecutionKey(key) {
			return invalid("%q is not an execution key", key)
		}
		if !isObject(value) {
			return invalid("execution %s is not an object", key)
		}
	}
	if len(b.Settings) > 0 && string(b.Settings) != "null" && !isObject(b.Settings) {
		return invalid("settings are not an object")
	}
	return nil
}

func isObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(raw, &obj) == nil && obj != nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidBackup, fmt.Sprintf(format, args...))
}
