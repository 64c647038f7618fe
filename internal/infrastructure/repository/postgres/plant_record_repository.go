package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

const schemaLockID int64 = 2026101801

// PlantRecordRepository stores flat metadata records in the plant_records table.
type PlantRecordRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewPlantRecordRepository(db *sql.DB) *PlantRecordRepository {
	return &PlantRecordRepository{db: db, now: time.Now}
}

func (r *PlantRecordRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS plant_records (
	key TEXT PRIMARY KEY,
	scientific_name TEXT NOT NULL DEFAULT '',
	vietnamese_name TEXT NOT NULL DEFAULT '',
	fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plant_records_vietnamese_name ON plant_records(vietnamese_name);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// LoadRecords implements ports.RecordSource.
func (r *PlantRecordRepository) LoadRecords(ctx context.Context) ([]domain.MetadataRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT key, fields
FROM plant_records
ORDER BY key
`)
	if err != nil {
		return nil, fmt.Errorf("query plant records: %w", err)
	}
	defer rows.Close()

	var out []domain.MetadataRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plant records: %w", err)
	}
	return out, nil
}

func (r *PlantRecordRepository) Get(ctx context.Context, key string) (domain.MetadataRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT key, fields
FROM plant_records
WHERE key = $1
`, key)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.MetadataRecord{}, domain.WrapError(domain.ErrNotFound, "get plant record", fmt.Errorf("key %s", key))
		}
		return domain.MetadataRecord{}, err
	}
	return rec, nil
}

// Upsert writes records in one transaction, replacing existing rows by key.
func (r *PlantRecordRepository) Upsert(ctx context.Context, records []domain.MetadataRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := r.now().UTC()
	for _, rec := range records {
		fieldsJSON, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("marshal fields: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO plant_records (key, scientific_name, vietnamese_name, fields, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (key) DO UPDATE
SET scientific_name = EXCLUDED.scientific_name,
	vietnamese_name = EXCLUDED.vietnamese_name,
	fields = EXCLUDED.fields,
	updated_at = EXCLUDED.updated_at
`, rec.Key, rec.ScientificName(), rec.VietnameseName(), fieldsJSON, now)
		if err != nil {
			return fmt.Errorf("upsert plant record %s: %w", rec.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.MetadataRecord, error) {
	var rec domain.MetadataRecord
	var fieldsRaw []byte
	if err := row.Scan(&rec.Key, &fieldsRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.MetadataRecord{}, err
		}
		return domain.MetadataRecord{}, fmt.Errorf("scan plant record: %w", err)
	}
	if err := json.Unmarshal(fieldsRaw, &rec.Fields); err != nil {
		return domain.MetadataRecord{}, fmt.Errorf("unmarshal fields: %w", err)
	}
	return rec, nil
}
