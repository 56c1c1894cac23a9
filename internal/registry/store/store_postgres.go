package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medguard/internal/registry/models"
	"medguard/pkg/platform/sentinel"
)

// PostgresStore persists registry entries in PostgreSQL. The patient
// and doctor indexes are plain columns; uniqueness on cid makes
// registration a no-op for an existing entry.
//
// Expected schema:
//
//	CREATE TABLE registry_entries (
//	    cid        TEXT PRIMARY KEY,
//	    owner      TEXT NOT NULL,
//	    type       TEXT NOT NULL,
//	    patient_id TEXT NOT NULL DEFAULT '',
//	    doctor_id  TEXT NOT NULL DEFAULT '',
//	    metadata   JSONB,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Register(ctx context.Context, e models.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO registry_entries (cid, owner, type, patient_id, doctor_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cid) DO NOTHING`,
		e.CID, strings.ToLower(e.Owner), string(e.Type),
		strings.ToLower(e.PatientID), strings.ToLower(e.DoctorID),
		e.Metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("registering entry: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, cid string) (models.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT cid, owner, type, patient_id, doctor_id, metadata, created_at
		FROM registry_entries WHERE cid = $1`, cid)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Entry{}, sentinel.ErrNotFound
		}
		return models.Entry{}, fmt.Errorf("finding entry: %w: %w", sentinel.ErrUnavailable, err)
	}
	return e, nil
}

func (s *PostgresStore) ListByPatient(ctx context.Context, address string) ([]models.Entry, error) {
	return s.list(ctx, "patient_id", address)
}

func (s *PostgresStore) ListByDoctor(ctx context.Context, address string) ([]models.Entry, error) {
	return s.list(ctx, "doctor_id", address)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, address string) ([]models.Entry, error) {
	return s.list(ctx, "owner", address)
}

func (s *PostgresStore) Remove(ctx context.Context, cid string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM registry_entries WHERE cid = $1`, cid)
	if err != nil {
		return fmt.Errorf("removing entry: %w: %w", sentinel.ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) list(ctx context.Context, column, address string) ([]models.Entry, error) {
	query := fmt.Sprintf(`
		SELECT cid, owner, type, patient_id, doctor_id, metadata, created_at
		FROM registry_entries WHERE %s = $1 ORDER BY created_at`, column)

	rows, err := s.pool.Query(ctx, query, strings.ToLower(address))
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()

	var out []models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing entries: %w: %w", sentinel.ErrUnavailable, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (models.Entry, error) {
	var (
		e       models.Entry
		rawType string
	)
	err := row.Scan(&e.CID, &e.Owner, &rawType, &e.PatientID, &e.DoctorID, &e.Metadata, &e.CreatedAt)
	if err != nil {
		return models.Entry{}, err
	}
	e.Type = models.ContentType(rawType)
	return e, nil
}
