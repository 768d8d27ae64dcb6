package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OperationRecord is one row in the operation log.
type OperationRecord struct {
	ID             string
	Endpoint       string
	Status         string
	Model          string
	IdempotencyKey string
	Duplicate      bool
	DurationMs     int64
	Attempts       int
	Metadata       map[string]string
	CreatedAt      time.Time
}

// OperationStore persists completed operations for audit and replay inspection.
type OperationStore interface {
	Record(ctx context.Context, rec OperationRecord) error
	Lookup(ctx context.Context, id string) (*OperationRecord, error)
	RecentByEndpoint(ctx context.Context, ep string, limit int) ([]OperationRecord, error)
}

// PGStore implements OperationStore on PostgreSQL. A nil *PGStore is a no-op,
// so callers never need to branch on whether persistence is configured.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Record(ctx context.Context, rec OperationRecord) error {
	if s == nil || s.db == nil {
		return nil
	}

	var metaJSON []byte
	if len(rec.Metadata) > 0 {
		var err error
		metaJSON, err = json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal operation metadata: %w", err)
		}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO operations (id, endpoint, status, model, idempotency_key,
		       duplicate, duration_ms, attempts, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`, rec.ID, rec.Endpoint, rec.Status, rec.Model, rec.IdempotencyKey,
		rec.Duplicate, rec.DurationMs, rec.Attempts, metaJSON)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

func (s *PGStore) Lookup(ctx context.Context, id string) (*OperationRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	var rec OperationRecord
	var metaJSON []byte

	err := s.db.QueryRow(ctx, `
		SELECT id, endpoint, status, model, idempotency_key,
		       duplicate, duration_ms, attempts, metadata, created_at
		FROM operations
		WHERE id = $1
	`, id).Scan(
		&rec.ID,
		&rec.Endpoint,
		&rec.Status,
		&rec.Model,
		&rec.IdempotencyKey,
		&rec.Duplicate,
		&rec.DurationMs,
		&rec.Attempts,
		&metaJSON,
		&rec.CreatedAt,
	)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, fmt.Errorf("query operations: %w", err)
	}

	if len(metaJSON) > 0 {
		json.Unmarshal(metaJSON, &rec.Metadata)
	}

	return &rec, nil
}

func (s *PGStore) RecentByEndpoint(ctx context.Context, ep string, limit int) ([]OperationRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, endpoint, status, model, idempotency_key,
		       duplicate, duration_ms, attempts, metadata, created_at
		FROM operations
		WHERE endpoint = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ep, limit)
	if err != nil {
		return nil, fmt.Errorf("query operations by endpoint: %w", err)
	}
	defer rows.Close()

	var out []OperationRecord
	for rows.Next() {
		var rec OperationRecord
		var metaJSON []byte
		if err := rows.Scan(
			&rec.ID,
			&rec.Endpoint,
			&rec.Status,
			&rec.Model,
			&rec.IdempotencyKey,
			&rec.Duplicate,
			&rec.DurationMs,
			&rec.Attempts,
			&metaJSON,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan operation row: %w", err)
		}
		if len(metaJSON) > 0 {
			json.Unmarshal(metaJSON, &rec.Metadata)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
