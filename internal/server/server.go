package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aceylabs/finledger/internal/anomaly"
	anomalydomain "github.com/aceylabs/finledger/internal/anomaly/domain"
	"github.com/aceylabs/finledger/internal/audit"
	auditdomain "github.com/aceylabs/finledger/internal/audit/domain"
	"github.com/aceylabs/finledger/internal/authorization"
	"github.com/aceylabs/finledger/internal/clock"
	"github.com/aceylabs/finledger/internal/config"
	"github.com/aceylabs/finledger/internal/event"
	eventdomain "github.com/aceylabs/finledger/internal/event/domain"
	"github.com/aceylabs/finledger/internal/export"
	exportdomain "github.com/aceylabs/finledger/internal/export/domain"
	"github.com/aceylabs/finledger/internal/identity"
	identitydomain "github.com/aceylabs/finledger/internal/identity/domain"
	"github.com/aceylabs/finledger/internal/ledger"
	ledgerdomain "github.com/aceylabs/finledger/internal/ledger/domain"
	"github.com/aceylabs/finledger/internal/migration"
	"github.com/aceylabs/finledger/internal/observability"
	obsmiddleware "github.com/aceylabs/finledger/internal/observability/logger"
	obstracing "github.com/aceylabs/finledger/internal/observability/tracing"
	"github.com/aceylabs/finledger/internal/partner"
	partnerdomain "github.com/aceylabs/finledger/internal/partner/domain"
	"github.com/aceylabs/finledger/internal/payout"
	payoutdomain "github.com/aceylabs/finledger/internal/payout/domain"
	"github.com/aceylabs/finledger/internal/ratelimit"
	"github.com/aceylabs/finledger/internal/scheduler"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	identity.Module,
	event.Module,
	partner.Module,
	anomaly.Module,
	ledger.Module,
	payout.Module,
	export.Module,
	ratelimit.Module,
	migration.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	db          *gorm.DB
	genID       *snowflake.Node
	clock       clock.Clock
	identitySvc identitydomain.Service
	authzSvc    authorization.Service
	auditSvc    auditdomain.Service
	eventSvc    eventdomain.Service
	partnerSvc  partnerdomain.Service
	ledgerSvc   ledgerdomain.Service
	anomalySvc  anomalydomain.Service
	batchSvc    payoutdomain.Service
	exportSvc   exportdomain.Service
	ledgerRepo  ledgerdomain.Repository
	limiter     *ratelimit.EventIngestLimiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	DB          *gorm.DB
	GenID       *snowflake.Node
	Clock       clock.Clock
	IdentitySvc identitydomain.Service
	AuthzSvc    authorization.Service
	AuditSvc    auditdomain.Service
	EventSvc    eventdomain.Service
	PartnerSvc  partnerdomain.Service
	LedgerSvc   ledgerdomain.Service
	AnomalySvc  anomalydomain.Service
	BatchSvc    payoutdomain.Service
	ExportSvc   exportdomain.Service
	LedgerRepo  ledgerdomain.Repository
	Limiter     *ratelimit.EventIngestLimiter
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		db:          p.DB,
		genID:       p.GenID,
		clock:       p.Clock,
		identitySvc: p.IdentitySvc,
		authzSvc:    p.AuthzSvc,
		auditSvc:    p.AuditSvc,
		eventSvc:    p.EventSvc,
		partnerSvc:  p.PartnerSvc,
		ledgerSvc:   p.LedgerSvc,
		anomalySvc:  p.AnomalySvc,
		batchSvc:    p.BatchSvc,
		exportSvc:   p.ExportSvc,
		ledgerRepo:  p.LedgerRepo,
		limiter:     p.Limiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.APIKeyRequired())

	api.POST("/events",
		s.RequireAction(authorization.ObjectEvent, authorization.ActionEventRecord),
		s.IngestThrottled(), s.RecordEvent)
	api.POST("/events/adjustments",
		s.RequireAction(authorization.ObjectEvent, authorization.ActionEventRecord),
		s.IngestThrottled(), s.RecordAdjustment)
	api.GET("/events",
		s.RequireAction(authorization.ObjectEvent, authorization.ActionEventVerify),
		s.ListEvents)
	api.GET("/events/:id",
		s.RequireAction(authorization.ObjectEvent, authorization.ActionEventVerify),
		s.GetEvent)
	api.GET("/events/:id/verify",
		s.RequireAction(authorization.ObjectEvent, authorization.ActionEventVerify),
		s.VerifyEvent)

	api.GET("/ledgers",
		s.RequireAction(authorization.ObjectLedger, authorization.ActionLedgerView),
		s.ListLedgers)
	api.GET("/ledgers/:id",
		s.RequireAction(authorization.ObjectLedger, authorization.ActionLedgerView),
		s.GetLedger)

	api.GET("/flags",
		s.RequireAction(authorization.ObjectFlag, authorization.ActionFlagView),
		s.ListFlags)
	api.GET("/flags/:id",
		s.RequireAction(authorization.ObjectFlag, authorization.ActionFlagView),
		s.GetFlag)
	api.POST("/flags/:id/resolve",
		s.RequireAction(authorization.ObjectFlag, authorization.ActionFlagResolve),
		s.ResolveFlag)

	api.GET("/batches",
		s.RequireAction(authorization.ObjectBatch, authorization.ActionBatchView),
		s.ListBatches)
	api.GET("/batches/:id",
		s.RequireAction(authorization.ObjectBatch, authorization.ActionBatchView),
		s.GetBatch)
	api.GET("/batches/:id/export",
		s.RequireAction(authorization.ObjectExport, authorization.ActionExportGenerate),
		s.ExportBatch)

	api.GET("/status", s.HealthSummary)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.APIKeyRequired())

	admin.POST("/partners",
		s.RequireAction(authorization.ObjectPartner, authorization.ActionPartnerManage),
		s.CreatePartner)
	admin.PATCH("/partners/:id",
		s.RequireAction(authorization.ObjectPartner, authorization.ActionPartnerManage),
		s.UpdatePartner)
	admin.GET("/partners",
		s.RequireAction(authorization.ObjectPartner, authorization.ActionPartnerView),
		s.ListPartners)
	admin.GET("/partners/:id",
		s.RequireAction(authorization.ObjectPartner, authorization.ActionPartnerView),
		s.GetPartner)

	admin.POST("/ledgers/calculate",
		s.RequireAction(authorization.ObjectLedger, authorization.ActionLedgerCalculate),
		s.CalculateLedgers)

	admin.POST("/batches",
		s.RequireAction(authorization.ObjectBatch, authorization.ActionBatchCreate),
		s.CreateBatch)
	// Approval authorization is enforced again inside the batch
	// service; the route guard is the first gate, not the only one.
	admin.POST("/batches/:id/approve",
		s.RequireAction(authorization.ObjectBatch, authorization.ActionBatchApprove),
		s.ApproveBatch)
	admin.POST("/batches/:id/reject",
		s.RequireAction(authorization.ObjectBatch, authorization.ActionBatchReject),
		s.RejectBatch)
	admin.POST("/batches/:id/processing",
		s.RequireAction(authorization.ObjectBatch, authorization.ActionBatchProgress),
		s.MarkBatchProcessing)
	admin.POST("/batches/:id/complete",
		s.RequireAction(authorization.ObjectBatch, authorization.ActionBatchProgress),
		s.ConfirmBatchCompleted)

	admin.GET("/audit-logs",
		s.RequireAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView),
		s.ListAuditLogs)

	admin.POST("/api-keys", s.RequireAdminRole(), s.CreateAPIKey)
	admin.GET("/api-keys", s.RequireAdminRole(), s.ListAPIKeys)
	admin.DELETE("/api-keys/:keyId", s.RequireAdminRole(), s.RevokeAPIKey)

	admin.POST("/dev/reset", s.RequireAdminRole(), s.DevReset)
}
