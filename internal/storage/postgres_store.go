package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"

	_ "github.com/lib/pq"
)

//go:embed migrations/001_create_kv_store.sql
var createKVStore string

type PostgresKV struct {
	db *sql.DB
}

func NewPostgresKV(ctx context.Context, dsn string) (*PostgresKV, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresKV{db: db}, nil
}

// Migrate creates the kv_store table if it is missing.
func (p *PostgresKV) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, createKVStore)
	return err
}

func (p *PostgresKV) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := p.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (p *PostgresKV) Save(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO kv_store(key, value, updated_at) VALUES($1,$2,now())
		 ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()`,
		key, value)
	return err
}

func (p *PostgresKV) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key=$1`, key)
	return err
}

func (p *PostgresKV) Close() error { return p.db.Close() }
