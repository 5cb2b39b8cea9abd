package event_bus

import "encoding/json"

const (
	// StorageKeyWritten is published after a value was persisted under a key.
	StorageKeyWritten EventType = "storage.key.written"
	// NetworkOnline is published when the remote backend becomes reachable again.
	NetworkOnline EventType = "network.online"
	// DateRolledOver is published when the tracked calendar date changes.
	DateRolledOver EventType = "date.rolled_over"
	// StorageKeysReplaced is published after keys were overwritten in bulk
	// without going through Set, e.g. by remote seeding or a backup import.
	StorageKeysReplaced EventType = "storage.keys.replaced"
)

type KeyWritten struct {
	Key   string
	Value json.RawMessage
}

type Online struct {
	// Probe tells which component observed the transition.
	Probe string
}

type DateChanged struct {
	Previous string
	Current  string
}

const (
	SourceRemote = "remote"
	SourceBackup = "backup"
)

type KeysReplaced struct {
	Keys   []string
	Source string
}
