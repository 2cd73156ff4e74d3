package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/schoolpay/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

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

// NewEnforcer loads the role policies from casbin_rule and adds any grant
// missing from the table. User to role links come from the access token on
// every request, so they stay in memory and are never written back.
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
	enforcer.EnableAutoSave(false)
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

// NewMemoryEnforcer holds the seeded role table without storage.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, subject Subject, object, action string) error {
	userID := strings.TrimSpace(subject.UserID)
	if userID == "" {
		return ErrInvalidActor
	}
	schoolID := strings.TrimSpace(subject.SchoolID)
	if schoolID == "" {
		return ErrInvalidSchool
	}
	object = strings.TrimSpace(object)
	action = strings.TrimSpace(action)
	if object == "" || action == "" {
		return ErrInvalidAction
	}
	role := strings.ToLower(strings.TrimSpace(subject.Role))
	if role == "" {
		s.auditDenied(ctx, subject, object, action)
		return ErrForbidden
	}

	sub := "user:" + userID
	domain := "school:" + schoolID
	if err := s.ensureGrouping(sub, "role:"+role, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(sub, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, subject, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping links sub to exactly one role in domain, replacing a stale
// link when the token carries a different role.
func (s *ServiceImpl) ensureGrouping(sub, roleName, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, sub, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]any, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(sub, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(sub, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, subject Subject, object, action string) {
	s.log.Info("authorization denied",
		zap.String("user_id", subject.UserID),
		zap.String("role", subject.Role),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.Record(ctx, nil, auditdomain.Entry{
		Action:     auditdomain.ActionAuthorizationDenied,
		TargetType: "authorization",
		TargetID:   object,
		Metadata: map[string]any{
			"object": object,
			"action": action,
			"role":   subject.Role,
		},
	})
	if err != nil {
		s.log.Warn("denial audit failed", zap.Error(err))
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	grants := map[string][]string{
		"school_admin": {
			ActionPaymentVoid, ActionPaymentWaiver,
			ActionInvoiceGenerate, ActionInvoiceWaive, ActionInvoiceCancel, ActionInvoiceRemind,
			ActionFeeManage, ActionAcademicManage, ActionAuditLogView, ActionUserManage,
			ActionPaymentCash, ActionPaymentApprove,
			ActionPaymentTransfer, ActionPaymentRead, ActionInvoiceRead, ActionFeeRead, ActionAcademicRead, ActionUserRead,
		},
		"bursar": {
			ActionPaymentCash, ActionPaymentApprove,
			ActionPaymentTransfer, ActionPaymentRead, ActionInvoiceRead, ActionFeeRead, ActionAcademicRead, ActionUserRead,
		},
		"staff": {
			ActionPaymentTransfer, ActionPaymentRead, ActionInvoiceRead, ActionFeeRead, ActionAcademicRead, ActionUserRead,
		},
	}

	for role, actions := range grants {
		for _, action := range actions {
			if _, err := enforcer.AddPolicy(fmt.Sprintf("role:%s", role), objectOf(action), action); err != nil {
				return err
			}
		}
	}
	return nil
}

func objectOf(action string) string {
	object, _, _ := strings.Cut(action, ".")
	return object
}
