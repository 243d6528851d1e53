package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/aceylabs/finledger/internal/audit/domain"
	"github.com/aceylabs/finledger/internal/auditctx"
	"github.com/aceylabs/finledger/internal/clock"
	"github.com/aceylabs/finledger/pkg/db/pagination"
	"github.com/aceylabs/finledger/pkg/integrity"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, change domain.Change) error {
	return s.RecordTx(ctx, s.db, change)
}

func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, change domain.Change) error {
	entry, err := s.buildEntry(ctx, change)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, tx, entry); err != nil {
		s.log.Warn("failed to write audit entry", zap.String("action", change.Action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) RecordRejected(ctx context.Context, change domain.Change, cause error) error {
	change.Outcome = "rejected"
	if change.NewValues == nil {
		change.NewValues = map[string]any{}
	}
	if cause != nil {
		change.NewValues["rejection_cause"] = cause.Error()
	}
	return s.RecordTx(ctx, s.db, change)
}

func (s *Service) buildEntry(ctx context.Context, change domain.Change) (*domain.Entry, error) {
	action := strings.TrimSpace(change.Action)
	if action == "" {
		return nil, domain.ErrInvalidAction
	}
	table := strings.TrimSpace(change.TargetTable)
	if table == "" {
		table = "unknown"
	}

	actorType, actorID := auditctx.ActorFromContext(ctx)
	if actorType == "" {
		actorType = string(domain.ActorTypeSystem)
	}
	outcome := strings.TrimSpace(change.Outcome)
	if outcome == "" {
		outcome = "success"
	}

	now := s.clock.Now()
	entry := &domain.Entry{
		ID:             s.genID.Generate(),
		ActorType:      actorType,
		ActorID:        normalizePointer(&actorID),
		Action:         action,
		TargetTable:    table,
		RecordID:       normalizePointer(&change.RecordID),
		OldValues:      datatypes.JSONMap(change.OldValues),
		NewValues:      datatypes.JSONMap(change.NewValues),
		Outcome:        outcome,
		OccurredAtUnix: now.Unix(),
		OccurredAtISO:  now.Format(time.RFC3339),
		CreatedAt:      now,
	}

	if requestID := auditctx.RequestIDFromContext(ctx); requestID != "" {
		entry.RequestID = &requestID
	}
	if ip := auditctx.IPAddressFromContext(ctx); ip != "" {
		entry.IPAddress = &ip
	}
	if ua := auditctx.UserAgentFromContext(ctx); ua != "" {
		entry.UserAgent = &ua
	}

	entry.IntegrityHash = EntryHash(entry)
	return entry, nil
}

// EntryHash covers the fields that must never change after insert.
func EntryHash(entry *domain.Entry) string {
	return integrity.Sum(
		integrity.Int64("id", int64(entry.ID)),
		integrity.String("actor_type", entry.ActorType),
		integrity.String("actor_id", deref(entry.ActorID)),
		integrity.String("action", entry.Action),
		integrity.String("target_table", entry.TargetTable),
		integrity.String("record_id", deref(entry.RecordID)),
		integrity.String("outcome", entry.Outcome),
		integrity.Int64("occurred_at_unix", entry.OccurredAtUnix),
		integrity.String("old_values", canonicalJSON(entry.OldValues)),
		integrity.String("new_values", canonicalJSON(entry.NewValues)),
	)
}

// canonicalJSON serializes a map with sorted keys so the hash does not
// depend on map iteration order.
func canonicalJSON(values map[string]any) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		val, _ := json.Marshal(values[k])
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.String()
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return domain.ListResponse{}, domain.ErrInvalidTimeRange
	}

	// Entries are only guaranteed to exist inside the retention window;
	// the query never reaches past it.
	horizon := s.clock.Now().AddDate(-domain.RetentionYears, 0, 0)
	if req.StartAt == nil || req.StartAt.Before(horizon) {
		req.StartAt = &horizon
	}

	var cursor *domain.Cursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		cursor = &domain.Cursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		Action:      req.Action,
		TargetTable: req.TargetTable,
		RecordID:    req.RecordID,
		ActorType:   req.ActorType,
		Outcome:     req.Outcome,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		Cursor:      cursor,
		Limit:       pageSize,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *domain.Entry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	entries := make([]domain.Entry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}

	resp := domain.ListResponse{Entries: entries}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
