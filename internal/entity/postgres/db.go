// Package postgres is an alternate Entity Store backed by PostgreSQL,
// grounded on the teacher's internal/db/db.go (sql.Open("pgx", dsn) +
// AutoMigrate) and internal/user/repository.go's QueryRowContext/
// ExecContext idiom. It satisfies entity.Interface so it can replace the
// in-memory entity.Store behind ENTITY_STORE_DRIVER=postgres.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/openrooms/orc/internal/entity"
)

// Store wraps a *sql.DB opened against the pgx stdlib driver.
type Store struct {
	db *sql.DB
}

var _ entity.Interface = (*Store)(nil)

// Open connects to dsn and runs AutoMigrate.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.autoMigrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) autoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id VARCHAR(26) PRIMARY KEY,
			display_name VARCHAR(128) NOT NULL,
			photo_cid VARCHAR(52),
			bio VARCHAR(1024),
			status_text VARCHAR(80),
			status_emoji VARCHAR(16)
		)`,
		`CREATE TABLE IF NOT EXISTS rooms (
			room_id VARCHAR(26) PRIMARY KEY,
			name VARCHAR(128) NOT NULL,
			name_lower VARCHAR(128) UNIQUE NOT NULL,
			topic VARCHAR(512),
			visibility VARCHAR(10) NOT NULL,
			owner_id VARCHAR(26) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			pinned_message_ids TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS memberships (
			room_id VARCHAR(26) REFERENCES rooms(room_id) ON DELETE CASCADE,
			user_id VARCHAR(26) REFERENCES users(user_id) ON DELETE CASCADE,
			role VARCHAR(16) NOT NULL,
			PRIMARY KEY (room_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS room_bans (
			room_id VARCHAR(26) REFERENCES rooms(room_id) ON DELETE CASCADE,
			user_id VARCHAR(26) NOT NULL,
			PRIMARY KEY (room_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS room_mutes (
			room_id VARCHAR(26) REFERENCES rooms(room_id) ON DELETE CASCADE,
			user_id VARCHAR(26) NOT NULL,
			muted_until TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (room_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS uploads (
			cid VARCHAR(52) PRIMARY KEY,
			mime_hint VARCHAR(128),
			sha256 VARCHAR(64) NOT NULL,
			bytes_len INT NOT NULL,
			blob BYTEA NOT NULL
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("postgres: migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }
