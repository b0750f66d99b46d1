package store

import (
	"context"
	"fmt"
	"time"

	"commerce-sync/internal/models"

	"github.com/google/uuid"
)

// CreateSyncLog appends one row to the sync ledger. Rows are never updated afterwards.
func (s *Store) CreateSyncLog(ctx context.Context, l *models.SyncLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_logs (id, tenant_id, entity_type, status, records_processed, records_failed,
			fetch_failed, error_message, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.TenantID, l.EntityType, l.Status, l.RecordsProcessed, l.RecordsFailed,
		l.FetchFailed, l.ErrorMessage, l.StartedAt, l.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}
	return nil
}

// ListSyncLogs returns a page of sync logs, newest first, plus the total matching count
func (s *Store) ListSyncLogs(ctx context.Context, tenantID string, filter models.SyncLogFilter) ([]models.SyncLog, int, error) {
	where := "WHERE tenant_id = $1"
	args := []interface{}{tenantID}
	if filter.EntityType != "" {
		where += " AND entity_type = $2"
		args = append(args, filter.EntityType)
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM sync_logs "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count sync logs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT * FROM sync_logs %s ORDER BY started_at DESC LIMIT $%d OFFSET $%d",
		where, len(args)+1, len(args)+2)
	args = append(args, limit, filter.Offset)

	logs := []models.SyncLog{}
	if err := s.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list sync logs: %w", err)
	}
	return logs, total, nil
}

type lastSync struct {
	EntityType  string    `db:"entity_type"`
	CompletedAt time.Time `db:"completed_at"`
}

// LastSuccessfulSyncs returns the latest successful completion time per entity type
func (s *Store) LastSuccessfulSyncs(ctx context.Context, tenantID string) (map[string]time.Time, error) {
	var rows []lastSync
	err := s.db.SelectContext(ctx, &rows, `
		SELECT entity_type, MAX(completed_at) AS completed_at
		FROM sync_logs
		WHERE tenant_id = $1 AND status = $2
		GROUP BY entity_type`,
		tenantID, models.SyncStatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("failed to get last successful syncs: %w", err)
	}

	result := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		result[r.EntityType] = r.CompletedAt
	}
	return result, nil
}
