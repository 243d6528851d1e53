package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/aceylabs/finledger/internal/audit/domain"
	"github.com/aceylabs/finledger/internal/authorization"
	"github.com/aceylabs/finledger/internal/clock"
	"github.com/aceylabs/finledger/internal/identity/domain"
)

const (
	apiKeyPrefix      = "flk_live_"
	apiKeySecretBytes = 32
)

var allowedRoles = map[string]bool{
	authorization.RoleAdmin:    true,
	authorization.RoleApprover: true,
	authorization.RoleOperator: true,
	authorization.RoleAuditor:  true,
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	AuthzSvc authorization.Service
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	authzSvc authorization.Service
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("identity.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		authzSvc: p.AuthzSvc,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.SecretResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		return nil, domain.ErrInvalidRole
	}
	// The automated system identity cannot be minted as a credential;
	// this keeps approval human-gated.
	if !allowedRoles[role] {
		return nil, domain.ErrRoleNotAllowed
	}

	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}

	id := s.genID.Generate()
	keyID := id.String()
	rawKey := fmt.Sprintf("%s%s_%s", apiKeyPrefix, keyID, hex.EncodeToString(secret))
	now := s.clock.Now()

	key := domain.APIKey{
		ID:        id,
		KeyID:     keyID,
		Name:      name,
		Role:      role,
		KeyHash:   domain.HashAPIKey(rawKey),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &key); err != nil {
			return err
		}
		return s.auditSvc.RecordTx(ctx, tx, auditdomain.Change{
			Action:      "api_key.created",
			TargetTable: domain.APIKey{}.TableName(),
			RecordID:    keyID,
			NewValues:   map[string]any{"name": name, "role": role},
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.authzSvc.GrantRole("api_key:"+keyID, role); err != nil {
		s.log.Error("failed to grant role for new api key", zap.String("key_id", keyID), zap.Error(err))
		return nil, err
	}

	return &domain.SecretResponse{KeyID: keyID, APIKey: rawKey}, nil
}

func (s *Service) Resolve(ctx context.Context, rawKey string) (*domain.Principal, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" || !strings.HasPrefix(rawKey, apiKeyPrefix) {
		return nil, domain.ErrInvalidAPIKey
	}

	key, err := s.repo.FindByHash(ctx, s.db, domain.HashAPIKey(rawKey))
	if err != nil {
		if err == domain.ErrNotFound {
			return nil, domain.ErrInvalidAPIKey
		}
		return nil, err
	}
	if !key.IsActive {
		return nil, domain.ErrKeyRevoked
	}
	if key.ExpiresAt != nil && s.clock.Now().After(*key.ExpiresAt) {
		return nil, domain.ErrKeyExpired
	}

	if err := s.repo.MarkUsed(ctx, s.db, int64(key.ID), s.clock.Now()); err != nil {
		s.log.Warn("failed to stamp api key usage", zap.Error(err))
	}

	return &domain.Principal{
		KeyID: key.KeyID,
		Name:  key.Name,
		Role:  key.Role,
	}, nil
}

func (s *Service) Revoke(ctx context.Context, keyID string) error {
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return domain.ErrInvalidKeyID
	}
	if err := s.repo.Deactivate(ctx, s.db, keyID); err != nil {
		return err
	}
	return s.auditSvc.Record(ctx, auditdomain.Change{
		Action:      "api_key.revoked",
		TargetTable: domain.APIKey{}.TableName(),
		RecordID:    keyID,
	})
}

func (s *Service) List(ctx context.Context) ([]domain.Response, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		item := &items[i]
		resp = append(resp, domain.Response{
			KeyID:      item.KeyID,
			Name:       item.Name,
			Role:       item.Role,
			IsActive:   item.IsActive,
			CreatedAt:  item.CreatedAt,
			LastUsedAt: item.LastUsedAt,
			ExpiresAt:  item.ExpiresAt,
		})
	}
	return resp, nil
}
