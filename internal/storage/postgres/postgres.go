package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/good12834/shoestore/internal/storage"
	"github.com/good12834/shoestore/pkg/database"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema files at the root of an fs.FS, as
// database.RunMigrations expects.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migrate applies the snapshot schema.
func Migrate(ctx context.Context, db database.DBTX, logger *slog.Logger) error {
	return database.RunMigrations(ctx, db, Migrations(), logger)
}

const (
	selectSnapshot = `SELECT value FROM local_snapshots WHERE profile = $1 AND key = $2`
	upsertSnapshot = `
		INSERT INTO local_snapshots (profile, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (profile, key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	deleteSnapshot = `DELETE FROM local_snapshots WHERE profile = $1 AND key = $2`
)

// Storage implements storage.Storage using a PostgreSQL table keyed by
// (profile, key).
type Storage struct {
	db      database.DBTX
	profile string
}

var (
	_ storage.Storage = (*Storage)(nil)
	_ storage.Pinger  = (*Storage)(nil)
)

// New creates a PostgreSQL-backed storage for profile.
func New(db database.DBTX, profile string) *Storage {
	return &Storage{db: db, profile: profile}
}

// Get retrieves the value under key.
func (s *Storage) Get(ctx context.Context, key string) (value []byte, err error) {
	ctx, end := database.TraceQuery(ctx, "snapshots.get", selectSnapshot)
	defer func() { end(err) }()

	if err := s.db.QueryRow(ctx, selectSnapshot, s.profile, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.NotFound(key)
		}
		return nil, fmt.Errorf("get snapshot %s: %w", key, err)
	}
	return value, nil
}

// Set upserts the value under key.
func (s *Storage) Set(ctx context.Context, key string, value []byte) (err error) {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	ctx, end := database.TraceQuery(ctx, "snapshots.set", upsertSnapshot)
	defer func() { end(err) }()

	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.Exec(ctx, upsertSnapshot, s.profile, key, value); err != nil {
		return fmt.Errorf("set snapshot %s: %w", key, err)
	}
	return nil
}

// Remove deletes the row for key.
func (s *Storage) Remove(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, "snapshots.remove", deleteSnapshot)
	defer func() { end(err) }()

	if _, err := s.db.Exec(ctx, deleteSnapshot, s.profile, key); err != nil {
		return fmt.Errorf("remove snapshot %s: %w", key, err)
	}
	return nil
}

// Ping runs a trivial query.
func (s *Storage) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}
