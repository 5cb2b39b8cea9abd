// Package cloudsync mirrors syncable local keys to a remote user_data table:
// one pull on startup seeds empty local keys, then every local write is
// pushed after a quiet period, last write wins per row.
package cloudsync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/klokku/ritual/pkg/user"
)

var ErrUnauthenticated = errors.New("not authenticated with the sync remote")

// Row is one (user, key) record of the remote user_data table.
type Row struct {
	DataKey   string          `json:"data_key"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Remote is the backend rows are mirrored to. SelectAll and Upsert act on
// behalf of the user stored in ctx (see user.WithUser).
type Remote interface {
	// CurrentUser returns ErrUnauthenticated when there is no signed-in user.
	CurrentUser(ctx context.Context) (user.User, error)
	SelectAll(ctx context.Context) ([]Row, error)
	Upsert(ctx context.Context, rows ...Row) error
	Ping(ctx context.Context) error
}
