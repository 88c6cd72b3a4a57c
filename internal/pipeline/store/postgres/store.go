// Package postgres implements the upload ledger on PostgreSQL. The unique
// constraint on content_hash is the exactly-once guard: a racing insert
// surfaces as storeerror.ErrConflict, never as a silent overwrite.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/rs/zerolog/log"

	"github.com/pixelpost/pixelpost/internal/common/apperrors"
	"github.com/pixelpost/pixelpost/internal/pipeline/store"
	"github.com/pixelpost/pixelpost/internal/pipeline/store/storeerror"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the PostgreSQL-backed upload ledger.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to the database, applies pending migrations, and returns a
// ready store.
func Open(ctx context.Context, dsn string) (*Store, apperrors.Error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, storeerror.ErrStore.MsgErr("failed to open database", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storeerror.ErrStore.MsgErr("failed to ping database", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, storeerror.ErrStore.MsgErr("failed to run migrations", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Lookup(ctx context.Context, hash string) (*store.UploadRecord, apperrors.Error) {
	if hash == "" {
		return nil, storeerror.ErrInvalidInput.Msg("content hash is required")
	}

	query := `
		SELECT id, content_hash, secondary_hash, generator, params, metadata,
		       artifact_path, secondary_path, status, error_message, created_at
		FROM uploads
		WHERE content_hash = $1
	`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, hash))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storeerror.ErrNotFound.Msg("no record for content hash")
		}
		log.Error().Err(err).Msg("failed to look up upload record")
		return nil, storeerror.ErrStore.Err(err)
	}
	return rec, nil
}

func (s *Store) IsDuplicate(ctx context.Context, artifactPath string) (store.DupCheck, apperrors.Error) {
	return store.CheckDuplicate(ctx, s, artifactPath)
}

func (s *Store) Save(ctx context.Context, rec *store.UploadRecord) (uuid.UUID, apperrors.Error) {
	if rec.ContentHash == "" {
		return uuid.Nil, storeerror.ErrInvalidInput.Msg("content hash is required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	params, err := json.Marshal(rec.Params)
	if err != nil {
		return uuid.Nil, storeerror.ErrInvalidInput.MsgErr("cannot encode params", err)
	}
	meta, err := json.Marshal(rec.Meta)
	if err != nil {
		return uuid.Nil, storeerror.ErrInvalidInput.MsgErr("cannot encode metadata", err)
	}

	query := `
		INSERT INTO uploads (id, content_hash, secondary_hash, generator, params,
		                     metadata, artifact_path, secondary_path, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err = s.db.QueryRowContext(ctx, query,
		rec.ID,
		rec.ContentHash,
		rec.SecondaryHash,
		rec.Generator,
		params,
		meta,
		rec.ArtifactPath,
		rec.SecondaryPath,
		rec.Status,
		rec.ErrorMessage,
	).Scan(&rec.CreatedAt)

	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			if pgErr.Code == "23505" { // unique_violation
				return uuid.Nil, storeerror.ErrConflict.Msg("record with this content hash already exists")
			}
		}
		log.Error().Err(err).Msg("failed to insert upload record")
		return uuid.Nil, storeerror.ErrStore.Err(err)
	}

	return rec.ID, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status store.Status, errMsg string) apperrors.Error {
	query := `
		UPDATE uploads
		SET status = $2, error_message = $3
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, status, errMsg)
	if err != nil {
		log.Error().Err(err).Msg("failed to update upload status")
		return storeerror.ErrStore.Err(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return storeerror.ErrStore.Err(err)
	}
	if rows == 0 {
		return storeerror.ErrNotFound.Msg("no record with given id")
	}
	return nil
}

func (s *Store) CountSuccessesOn(ctx context.Context, day time.Time) (int, apperrors.Error) {
	query := `
		SELECT COUNT(*)
		FROM uploads
		WHERE status = $1 AND (created_at AT TIME ZONE 'UTC')::date = $2
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, store.StatusSuccess, day.UTC().Format("2006-01-02")).Scan(&count)
	if err != nil {
		log.Error().Err(err).Msg("failed to count daily successes")
		return 0, storeerror.ErrStore.Err(err)
	}
	return count, nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]store.UploadRecord, apperrors.Error) {
	if limit <= 0 {
		return nil, storeerror.ErrInvalidInput.Msg("limit must be positive")
	}

	query := `
		SELECT id, content_hash, secondary_hash, generator, params, metadata,
		       artifact_path, secondary_path, status, error_message, created_at
		FROM uploads
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, storeerror.ErrStore.Err(err)
	}
	defer rows.Close()

	var records []store.UploadRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storeerror.ErrStore.Err(err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeerror.ErrStore.Err(err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*store.UploadRecord, error) {
	var rec store.UploadRecord
	var params, meta []byte

	err := row.Scan(
		&rec.ID,
		&rec.ContentHash,
		&rec.SecondaryHash,
		&rec.Generator,
		&params,
		&meta,
		&rec.ArtifactPath,
		&rec.SecondaryPath,
		&rec.Status,
		&rec.ErrorMessage,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(params, &rec.Params); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(meta, &rec.Meta); err != nil {
		return nil, err
	}
	return &rec, nil
}
