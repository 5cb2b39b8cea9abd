package cloudsync

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/ritual/pkg/user"
)

// PostgresRemote talks to the user_data table directly. The account is fixed
// by configuration.
type PostgresRemote struct {
	db      *pgxpool.Pool
	account user.User
}

func NewPostgresRemote(db *pgxpool.Pool, userUid string) *PostgresRemote {
	return &PostgresRemote{db: db, account: user.User{Uid: userUid}}
}

func (p *PostgresRemote) CurrentUser(_ context.Context) (user.User, error) {
	if p.account.Uid == "" {
		return user.User{}, ErrUnauthenticated
	}
	return p.account, nil
}

func (p *PostgresRemote) SelectAll(ctx context.Context) ([]Row, error) {
	userUid, err := user.CurrentUid(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	query := "SELECT data_key, data, updated_at FROM user_data WHERE user_id = $1 ORDER BY data_key"
	rows, err := p.db.Query(ctx, query, userUid)
	if err != nil {
		return nil, fmt.Errorf("failed to select user data: %w", err)
	}
	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Row, error) {
		var r Row
		err := row.Scan(&r.DataKey, &r.Data, &r.UpdatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read user data: %w", err)
	}
	return result, nil
}

func (p *PostgresRemote) Upsert(ctx context.Context, rows ...Row) error {
	userUid, err := user.CurrentUid(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}

	const upsert = `
		INSERT INTO user_data (user_id, data_key, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, data_key)
		DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(upsert, userUid, r.DataKey, string(r.Data), r.UpdatedAt)
	}
	if err := p.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert user data: %w", err)
	}
	return nil
}

func (p *PostgresRemote) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}
