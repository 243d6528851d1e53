package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/aceylabs/finledger/internal/audit/domain"
)

//go:embed model.conf
var modelText string

const (
	ObjectEvent    = "event"
	ObjectPartner  = "partner"
	ObjectLedger   = "ledger"
	ObjectBatch    = "batch"
	ObjectFlag     = "flag"
	ObjectExport   = "export"
	ObjectAuditLog = "audit_log"
)

const (
	ActionEventRecord = "event.record"
	ActionEventVerify = "event.verify"

	ActionPartnerView   = "partner.view"
	ActionPartnerManage = "partner.manage"

	ActionLedgerView      = "ledger.view"
	ActionLedgerCalculate = "ledger.calculate"

	ActionBatchView     = "batch.view"
	ActionBatchCreate   = "batch.create"
	ActionBatchApprove  = "batch.approve"
	ActionBatchReject   = "batch.reject"
	ActionBatchProgress = "batch.progress"

	ActionFlagView    = "flag.view"
	ActionFlagResolve = "flag.resolve"

	ActionExportGenerate = "export.generate"

	ActionAuditLogView = "audit_log.view"
)

const (
	RoleAdmin    = "admin"
	RoleApprover = "approver"
	RoleOperator = "operator"
	RoleAuditor  = "auditor"
	RoleSystem   = "system"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

type Service interface {
	Authorize(ctx context.Context, actor string, object string, action string) error
	// GrantRole links a principal subject (for example "api_key:123") to
	// a role. The system role can never receive batch.approve.
	GrantRole(subject, role string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// seedPolicies installs the default role grants. batch.approve is
// granted to the approver role only: the automated system identity has
// no path to it, which keeps payout approval human-gated.
func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:" + RoleOperator, ObjectEvent, ActionEventRecord},
		{"role:" + RoleOperator, ObjectEvent, ActionEventVerify},
		{"role:" + RoleOperator, ObjectLedger, ActionLedgerView},
		{"role:" + RoleOperator, ObjectFlag, ActionFlagView},
		{"role:" + RoleOperator, ObjectFlag, ActionFlagResolve},
		{"role:" + RoleOperator, ObjectBatch, ActionBatchView},

		{"role:" + RoleAdmin, ObjectEvent, ActionEventRecord},
		{"role:" + RoleAdmin, ObjectEvent, ActionEventVerify},
		{"role:" + RoleAdmin, ObjectPartner, ActionPartnerView},
		{"role:" + RoleAdmin, ObjectPartner, ActionPartnerManage},
		{"role:" + RoleAdmin, ObjectLedger, ActionLedgerView},
		{"role:" + RoleAdmin, ObjectLedger, ActionLedgerCalculate},
		{"role:" + RoleAdmin, ObjectBatch, ActionBatchView},
		{"role:" + RoleAdmin, ObjectBatch, ActionBatchCreate},
		{"role:" + RoleAdmin, ObjectBatch, ActionBatchReject},
		{"role:" + RoleAdmin, ObjectBatch, ActionBatchProgress},
		{"role:" + RoleAdmin, ObjectFlag, ActionFlagView},
		{"role:" + RoleAdmin, ObjectFlag, ActionFlagResolve},
		{"role:" + RoleAdmin, ObjectExport, ActionExportGenerate},
		{"role:" + RoleAdmin, ObjectAuditLog, ActionAuditLogView},

		{"role:" + RoleApprover, ObjectBatch, ActionBatchView},
		{"role:" + RoleApprover, ObjectBatch, ActionBatchApprove},
		{"role:" + RoleApprover, ObjectBatch, ActionBatchReject},
		{"role:" + RoleApprover, ObjectLedger, ActionLedgerView},
		{"role:" + RoleApprover, ObjectExport, ActionExportGenerate},

		{"role:" + RoleAuditor, ObjectAuditLog, ActionAuditLogView},
		{"role:" + RoleAuditor, ObjectLedger, ActionLedgerView},
		{"role:" + RoleAuditor, ObjectFlag, ActionFlagView},
		{"role:" + RoleAuditor, ObjectBatch, ActionBatchView},

		{"role:" + RoleSystem, ObjectEvent, ActionEventRecord},
		{"role:" + RoleSystem, ObjectLedger, ActionLedgerView},
		{"role:" + RoleSystem, ObjectLedger, ActionLedgerCalculate},
	}
	for _, p := range policies {
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return err
		}
	}
	return nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := actor
	if actor == "system" || actor == "scheduler" {
		subject = "role:" + RoleSystem
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) GrantRole(subject, role string) error {
	subject = strings.TrimSpace(subject)
	role = strings.ToLower(strings.TrimSpace(role))
	if subject == "" || role == "" {
		return ErrInvalidActor
	}
	if role == RoleSystem && subject != "role:"+RoleSystem {
		// The system role is reserved for the process itself.
		return ErrForbidden
	}
	_, err := s.enforcer.AddGroupingPolicy(subject, "role:"+role)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor, object, action string) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.Record(ctx, auditdomain.Change{
		Action:      fmt.Sprintf("authorization.denied:%s", action),
		TargetTable: object,
		Outcome:     "denied",
		NewValues:   map[string]any{"actor": actor},
	})
	if err != nil {
		s.log.Warn("failed to audit denied authorization", zap.Error(err))
	}
}
