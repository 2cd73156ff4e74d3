package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/schoolpay/internal/audit/domain"
	"github.com/smallbiznis/schoolpay/internal/auth/domain"
	"github.com/smallbiznis/schoolpay/internal/auth/password"
	"github.com/smallbiznis/schoolpay/internal/auth/token"
	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/observability/logger"
	"github.com/smallbiznis/schoolpay/internal/ratelimit"
	"github.com/smallbiznis/schoolpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Issuer  *token.Issuer
	Limiter *ratelimit.Limiter `optional:"true"`
	Audit   auditdomain.Service `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	issuer  *token.Issuer
	limiter *ratelimit.Limiter
	audit   auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("auth.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		issuer:  p.Issuer,
		limiter: p.Limiter,
		audit:   p.Audit,
	}
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	return s.createUser(ctx, s.db, req)
}

func (s *Service) createUser(ctx context.Context, tx *gorm.DB, req domain.CreateUserRequest) (*domain.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if len(strings.TrimSpace(req.Password)) < password.MinLength {
		return nil, domain.ErrWeakPassword
	}
	role := req.Role
	if role == "" {
		role = domain.RoleStaff
	}
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	if req.SchoolID == nil && !req.IsPlatformAdmin {
		return nil, domain.ErrInvalidRole
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	user := &domain.User{
		ID:              s.genID.Generate(),
		SchoolID:        req.SchoolID,
		Email:           email,
		PasswordHash:    hashed,
		FullName:        strings.TrimSpace(req.FullName),
		Role:            role,
		IsPlatformAdmin: req.IsPlatformAdmin,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, tx, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil || strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	allowed, err := s.limiter.AllowLogin(ctx, email)
	if err == nil && !allowed.Allowed {
		return nil, domain.ErrTooManyAttempts
	}

	log := logger.WithContext(ctx, s.log)
	user, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !password.Verify(req.Password, user.PasswordHash) {
		log.Info("login rejected")
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, domain.ErrUserInactive
	}

	pair, err := s.issuer.Issue(*user)
	if err != nil {
		return nil, err
	}
	log.Info("login succeeded", zap.String("user_id", user.ID.String()))
	return &domain.LoginResult{TokenPair: pair, User: user}, nil
}

// Refresh reloads the user so a deactivated account or a changed role takes
// effect at the next refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	userID, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrInvalidToken
	}
	if !user.IsActive {
		return nil, domain.ErrUserInactive
	}
	pair, err := s.issuer.Issue(*user)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

func (s *Service) Authenticate(ctx context.Context, accessToken string) (*domain.Principal, error) {
	return s.issuer.VerifyAccess(accessToken)
}

func (s *Service) CurrentUser(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrInvalidToken
	}
	return user, nil
}

func normalizeEmail(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return "", err
	}
	return addr.Address, nil
}
