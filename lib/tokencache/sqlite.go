package tokencache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

const Schema = `create table if not exists token_cache (
	scope text not null primary key,
	access_token text not null,
	expires_at integer not null
);`

type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a sqlite database file at path and
// prepares the token table in it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("a path was not specified")
	}
	if path != ":memory:" {
		_, statErr := os.Stat(path)
		if os.IsNotExist(statErr) {
			f, err := os.Create(path)
			if err != nil {
				return nil, err
			}
			f.Close()
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite only allows one writer at a time
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return NewSQLiteStore(ctx, db)
}

func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	_, err := db.ExecContext(ctx, Schema)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, scope string) (Token, error) {
	row := s.db.QueryRowContext(
		ctx,
		"select access_token, expires_at from token_cache where scope = ?",
		scope,
	)
	var token Token
	var expiresAt int64
	err := row.Scan(&token.AccessToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, ErrNotFound
	}
	if err != nil {
		return Token{}, err
	}
	token.ExpiresAt = time.UnixMilli(expiresAt)
	return token, nil
}

func (s *SQLiteStore) Put(ctx context.Context, scope string, token Token) error {
	_, err := s.db.ExecContext(
		ctx,
		`insert into token_cache(scope, access_token, expires_at) values (?, ?, ?)
		on conflict(scope) do update set access_token = excluded.access_token, expires_at = excluded.expires_at`,
		scope, token.AccessToken, token.ExpiresAt.UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) Invalidate(ctx context.Context, scope string) error {
	_, err := s.db.ExecContext(ctx, "delete from token_cache where scope = ?", scope)
	return err
}

// PurgeExpired drops every token that expired before the given time and
// returns how many were removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "delete from token_cache where expires_at < ?", before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
