package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/schoolpay/internal/academic"
	academicdomain "github.com/smallbiznis/schoolpay/internal/academic/domain"
	"github.com/smallbiznis/schoolpay/internal/audit"
	auditdomain "github.com/smallbiznis/schoolpay/internal/audit/domain"
	"github.com/smallbiznis/schoolpay/internal/auth"
	authdomain "github.com/smallbiznis/schoolpay/internal/auth/domain"
	"github.com/smallbiznis/schoolpay/internal/authorization"
	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/smallbiznis/schoolpay/internal/fee"
	feedomain "github.com/smallbiznis/schoolpay/internal/fee/domain"
	"github.com/smallbiznis/schoolpay/internal/gateway"
	"github.com/smallbiznis/schoolpay/internal/gateway/paystack"
	"github.com/smallbiznis/schoolpay/internal/idempotency"
	"github.com/smallbiznis/schoolpay/internal/invoice"
	invoicedomain "github.com/smallbiznis/schoolpay/internal/invoice/domain"
	"github.com/smallbiznis/schoolpay/internal/invoicegen"
	"github.com/smallbiznis/schoolpay/internal/notification"
	"github.com/smallbiznis/schoolpay/internal/observability"
	obslogger "github.com/smallbiznis/schoolpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/schoolpay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/schoolpay/internal/observability/tracing"
	"github.com/smallbiznis/schoolpay/internal/payment"
	paymentdomain "github.com/smallbiznis/schoolpay/internal/payment/domain"
	"github.com/smallbiznis/schoolpay/internal/payment/liveevents"
	"github.com/smallbiznis/schoolpay/internal/payment/webhook"
	"github.com/smallbiznis/schoolpay/internal/platformbilling"
	platformdomain "github.com/smallbiznis/schoolpay/internal/platformbilling/domain"
	"github.com/smallbiznis/schoolpay/internal/platformmetrics"
	"github.com/smallbiznis/schoolpay/internal/ratelimit"
	"github.com/smallbiznis/schoolpay/internal/receipt"
	"github.com/smallbiznis/schoolpay/internal/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Domain carries every domain module the HTTP surface depends on. Config,
// observability, db and clock are supplied by the binary. One-shot CLI
// commands reuse it without the HTTP server.
var Domain = fx.Options(
	audit.Module,
	auth.Module,
	authorization.Module,
	academic.Module,
	fee.Module,
	invoice.Module,
	invoicegen.Module,
	payment.Module,
	reconcile.Module,
	receipt.Module,
	gateway.Module,
	paystack.Module,
	idempotency.Module,
	notification.Module,
	ratelimit.Module,
	platformbilling.Module,
	platformmetrics.Module,
)

var Module = fx.Module("http.server",
	Domain,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

const shutdownTimeout = 10 * time.Second

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	useWireFieldNames()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-Id"},
			ExposeHeaders:    []string{"X-Request-Id", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	authSvc     authdomain.Service
	authzSvc    authorization.Service
	auditSvc    auditdomain.Service
	academicSvc academicdomain.Service
	feeSvc      feedomain.Service
	invoiceSvc  invoicedomain.Service
	paymentSvc  paymentdomain.Service
	platformSvc platformdomain.Service
	generator   Generator
	webhooks    WebhookIngester
	liveEvents  *liveevents.Hub
	limiter     *ratelimit.Limiter
}

// Generator is the part of invoicegen the HTTP layer drives.
type Generator interface {
	Generate(ctx context.Context, req invoicegen.GenerateRequest) (invoicegen.GenerateResult, error)
}

type WebhookIngester interface {
	Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (webhook.Outcome, error)
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	AuthSvc     authdomain.Service
	AuthzSvc    authorization.Service
	AuditSvc    auditdomain.Service
	AcademicSvc academicdomain.Service
	FeeSvc      feedomain.Service
	InvoiceSvc  invoicedomain.Service
	PaymentSvc  paymentdomain.Service
	PlatformSvc platformdomain.Service
	Generator   *invoicegen.Generator
	Webhooks    *webhook.Ingester
	LiveEvents  *liveevents.Hub    `optional:"true"`
	Limiter     *ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http"),
		authSvc:     p.AuthSvc,
		authzSvc:    p.AuthzSvc,
		auditSvc:    p.AuditSvc,
		academicSvc: p.AcademicSvc,
		feeSvc:      p.FeeSvc,
		invoiceSvc:  p.InvoiceSvc,
		paymentSvc:  p.PaymentSvc,
		platformSvc: p.PlatformSvc,
		generator:   p.Generator,
		webhooks:    p.Webhooks,
		liveEvents:  p.LiveEvents,
		limiter:     p.Limiter,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.registerAuthRoutes()
	s.registerAPIRoutes()
	s.registerPlatformRoutes()
	s.registerPublicRoutes()
	s.registerWebhookRoutes()
	s.registerInternalRoutes()
	s.registerFallback()
}

func (s *Server) registerAuthRoutes() {
	group := s.engine.Group("/api/v1/auth")
	group.POST("/login", s.Login)
	group.POST("/refresh", s.Refresh)
	group.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", s.AuthRequired(), s.SchoolRequired())

	api.GET("/school", s.authorize(authorization.ActionAcademicRead), s.GetSchool)
	api.GET("/sessions", s.authorize(authorization.ActionAcademicRead), s.ListSessions)
	api.POST("/sessions", s.authorize(authorization.ActionAcademicManage), s.CreateSession)
	api.GET("/terms", s.authorize(authorization.ActionAcademicRead), s.ListTerms)
	api.POST("/terms", s.authorize(authorization.ActionAcademicManage), s.CreateTerm)
	api.GET("/classes", s.authorize(authorization.ActionAcademicRead), s.ListClasses)
	api.POST("/classes", s.authorize(authorization.ActionAcademicManage), s.CreateClass)
	api.GET("/students", s.authorize(authorization.ActionAcademicRead), s.ListStudents)
	api.POST("/students", s.authorize(authorization.ActionAcademicManage), s.CreateStudent)
	api.GET("/students/:id", s.authorize(authorization.ActionAcademicRead), s.GetStudent)
	api.PATCH("/students/:id", s.authorize(authorization.ActionAcademicManage), s.UpdateStudent)
	api.POST("/enrollments", s.authorize(authorization.ActionAcademicManage), s.Enroll)

	api.GET("/fee-structures", s.authorize(authorization.ActionFeeRead), s.ListFeeStructures)
	api.POST("/fee-structures", s.authorize(authorization.ActionFeeManage), s.CreateFeeStructure)
	api.GET("/fee-structures/:id", s.authorize(authorization.ActionFeeRead), s.GetFeeStructure)
	api.DELETE("/fee-structures/:id", s.authorize(authorization.ActionFeeManage), s.DeactivateFeeStructure)

	api.GET("/invoices", s.authorize(authorization.ActionInvoiceRead), s.ListInvoices)
	api.GET("/invoices/summary", s.authorize(authorization.ActionInvoiceRead), s.InvoiceSummary)
	api.GET("/invoices/debtors", s.authorize(authorization.ActionInvoiceRead), s.ListDebtors)
	api.POST("/invoices/generate", s.authorize(authorization.ActionInvoiceGenerate), s.SubscriptionRequired(), s.GenerateInvoices)
	api.POST("/invoices/reminders", s.authorize(authorization.ActionInvoiceRemind), s.SendReminders)
	api.GET("/invoices/:id", s.authorize(authorization.ActionInvoiceRead), s.GetInvoice)
	api.GET("/invoices/:id/payments", s.authorize(authorization.ActionPaymentRead), s.ListInvoicePayments)
	api.POST("/invoices/:id/waive", s.authorize(authorization.ActionInvoiceWaive), s.WaiveInvoice)
	api.POST("/invoices/:id/cancel", s.authorize(authorization.ActionInvoiceCancel), s.CancelInvoice)

	api.POST("/payments/cash", s.authorize(authorization.ActionPaymentCash), s.SubscriptionRequired(), s.RecordCash)
	api.POST("/payments/transfer", s.authorize(authorization.ActionPaymentTransfer), s.SubscriptionRequired(), s.RecordTransfer)
	api.POST("/payments/waiver", s.authorize(authorization.ActionPaymentWaiver), s.SubscriptionRequired(), s.RecordWaiver)
	api.GET("/payments/pending", s.authorize(authorization.ActionPaymentRead), s.ListPendingTransfers)
	api.GET("/payments/live", s.authorize(authorization.ActionPaymentRead), s.StreamPaymentEvents)
	api.GET("/payments/:id", s.authorize(authorization.ActionPaymentRead), s.GetPayment)
	api.GET("/payments/:id/receipt", s.authorize(authorization.ActionPaymentRead), s.DownloadReceipt)
	api.POST("/payments/:id/review", s.authorize(authorization.ActionPaymentApprove), s.SubscriptionRequired(), s.ReviewTransfer)
	api.POST("/payments/:id/void", s.authorize(authorization.ActionPaymentVoid), s.VoidPayment)
	api.POST("/payments/:id/proof", s.authorize(authorization.ActionPaymentTransfer), s.AttachProof)

	api.GET("/audit-logs", s.authorize(authorization.ActionAuditLogView), s.ListAuditLogs)

	api.GET("/users", s.authorize(authorization.ActionUserRead), s.ListUsers)
	api.POST("/users", s.authorize(authorization.ActionUserManage), s.CreateUser)
	api.PATCH("/users/:id", s.authorize(authorization.ActionUserManage), s.UpdateUser)
	api.DELETE("/users/:id", s.authorize(authorization.ActionUserManage), s.DeleteUser)
}

func (s *Server) registerPlatformRoutes() {
	platform := s.engine.Group("/api/v1/platform", s.AuthRequired(), s.PlatformAdminRequired())
	platform.POST("/schools", s.CreateSchool)
	platform.POST("/schools/:school_id/activate", s.ActivateSchool)
	platform.POST("/schools/:school_id/suspend", s.SuspendSchool)
	platform.POST("/schools/:school_id/users", s.CreateSchoolUser)
	platform.GET("/schools/:school_id/charges", s.ListPlatformCharges)
	platform.POST("/schools/:school_id/charges/:charge_id/paid", s.MarkPlatformChargePaid)
}

func (s *Server) registerPublicRoutes() {
	pay := s.engine.Group("/api/v1/pay/:token", s.payPageLimit())
	pay.GET("", s.GetPublicInvoice)
	pay.POST("/initialize", s.InitializeOnlinePayment)
	pay.POST("/transfer", s.SubmitPublicTransfer)
	pay.POST("/transfer/:payment_id/proof", s.AttachPublicProof)
	pay.GET("/status", s.GetPublicPaymentStatus)
	pay.GET("/receipt", s.DownloadPublicReceipt)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/api/v1/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal", s.InternalKeyRequired())
	internal.GET("/schools/:school_id/debtors", s.ListDebtorsForWorkflow)
	internal.GET("/overdue-invoices", s.ListOverdueInvoices)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
