package repository

import (
	"context"
	"strings"

	"github.com/aceylabs/finledger/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert is the only write path; the table has no update or delete.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_log_entries (
			id, actor_type, actor_id, action, target_table, record_id,
			old_values, new_values, outcome, request_id, ip_address, user_agent,
			occurred_at_unix, occurred_at_iso, integrity_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ActorType,
		entry.ActorID,
		entry.Action,
		entry.TargetTable,
		entry.RecordID,
		entry.OldValues,
		entry.NewValues,
		entry.Outcome,
		entry.RequestID,
		entry.IPAddress,
		entry.UserAgent,
		entry.OccurredAtUnix,
		entry.OccurredAtISO,
		entry.IntegrityHash,
		entry.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Entry, error) {
	var entries []*domain.Entry
	stmt := db.WithContext(ctx).Model(&domain.Entry{})

	if action := strings.TrimSpace(filter.Action); action != "" {
		stmt = stmt.Where("action = ?", action)
	}
	if table := strings.TrimSpace(filter.TargetTable); table != "" {
		stmt = stmt.Where("target_table = ?", table)
	}
	if recordID := strings.TrimSpace(filter.RecordID); recordID != "" {
		stmt = stmt.Where("record_id = ?", recordID)
	}
	if actorType := strings.TrimSpace(filter.ActorType); actorType != "" {
		stmt = stmt.Where("actor_type = ?", actorType)
	}
	if outcome := strings.TrimSpace(filter.Outcome); outcome != "" {
		stmt = stmt.Where("outcome = ?", outcome)
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
