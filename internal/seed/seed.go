package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/aceylabs/finledger/internal/authorization"
	identitydomain "github.com/aceylabs/finledger/internal/identity/domain"
)

const bootstrapKeyID = "bootstrap-admin"

// EnsureBootstrapAdminKey seeds a known admin credential for local and
// self-hosted setups so the first operator can mint real keys. The raw
// key comes from the environment; only its hash is stored.
func EnsureBootstrapAdminKey(db *gorm.DB, authzSvc authorization.Service, rawKey string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if rawKey == "" {
		return nil
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing identitydomain.APIKey
		err := tx.WithContext(ctx).Where("key_id = ?", bootstrapKeyID).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		key := identitydomain.APIKey{
			ID:        node.Generate(),
			KeyID:     bootstrapKeyID,
			Name:      "Bootstrap Admin",
			Role:      authorization.RoleAdmin,
			KeyHash:   identitydomain.HashAPIKey(rawKey),
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(&key).Error
	})
	if err != nil {
		return err
	}

	subject := "api_key:" + bootstrapKeyID
	if err := authzSvc.GrantRole(subject, authorization.RoleAdmin); err != nil {
		return err
	}
	// The bootstrap key doubles as an approver so a single-operator
	// deployment can exercise the full batch lifecycle.
	return authzSvc.GrantRole(subject, authorization.RoleApprover)
}
