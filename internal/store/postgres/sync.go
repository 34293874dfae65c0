package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
)

const syncColumns = `client_id, idempotency_key, completed, manifest, created_at, completed_at`

func scanSyncBatch(row scanner) (domain.SyncBatch, error) {
	var (
		b         domain.SyncBatch
		manifest  []byte
		completed sql.NullTime
	)
	if err := row.Scan(&b.ClientID, &b.IdempotencyKey, &b.Completed, &manifest, &b.CreatedAt, &completed); err != nil {
		return domain.SyncBatch{}, err
	}
	if len(manifest) > 0 {
		var m domain.SyncManifest
		if err := json.Unmarshal(manifest, &m); err != nil {
			return domain.SyncBatch{}, err
		}
		b.Manifest = &m
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.CompletedAt = timePtr(completed)
	return b, nil
}

// ReserveSyncBatch relies on the primary key to pick one winner per idempotency key.
func (s *Store) ReserveSyncBatch(ctx context.Context, batch domain.SyncBatch) (*domain.SyncBatch, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	saved, err := scanSyncBatch(s.db.QueryRowContext(ctx, `
		INSERT INTO sync_batches (client_id, idempotency_key, completed, manifest, created_at)
		VALUES ($1, $2, false, NULL, $3)
		ON CONFLICT (client_id, idempotency_key) DO NOTHING
		RETURNING `+syncColumns,
		batch.ClientID, batch.IdempotencyKey, utcNow(batch.CreatedAt)))
	if err == nil {
		return &saved, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, classify(err)
	}

	existing, err := scanSyncBatch(s.db.QueryRowContext(ctx, `
		SELECT `+syncColumns+` FROM sync_batches WHERE client_id = $1 AND idempotency_key = $2
	`, batch.ClientID, batch.IdempotencyKey))
	if err != nil {
		return nil, classify(err)
	}
	return &existing, store.ErrConflict
}

func (s *Store) CompleteSyncBatch(ctx context.Context, clientID string, key string, manifest domain.SyncManifest, at time.Time) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	payload, err := jsonValue(manifest)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_batches SET completed = true, manifest = $3, completed_at = $4
		WHERE client_id = $1 AND idempotency_key = $2
	`, clientID, key, payload, utcNow(at))
	if err != nil {
		return classify(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ReleaseSyncBatch(ctx context.Context, clientID string, key string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_batches WHERE client_id = $1 AND idempotency_key = $2 AND NOT completed
	`, clientID, key)
	return classify(err)
}

const auditColumns = `id, client_id, actor, action, entity_type, entity_id, detail, created_at`

func scanAudit(row scanner) (domain.AuditLog, error) {
	var a domain.AuditLog
	err := row.Scan(&a.ID, &a.ClientID, &a.Actor, &a.Action, &a.EntityType, &a.EntityID, &a.Detail, &a.CreatedAt)
	a.CreatedAt = a.CreatedAt.UTC()
	return a, err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (`+auditColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ClientID, entry.Actor, entry.Action, entry.EntityType, entry.EntityID, entry.Detail,
		utcNow(entry.CreatedAt))
	return classify(err)
}

func (s *Store) ListAuditLogs(ctx context.Context, clientID string, limit int) ([]domain.AuditLog, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+auditColumns+` FROM audit_logs
		WHERE client_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, clientID, sql.NullInt64{Int64: int64(limit), Valid: limit > 0})
	if err != nil {
		return nil, classify(err)
	}
	logs, err := collect(rows, scanAudit)
	return logs, classify(err)
}
