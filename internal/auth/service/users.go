package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/schoolpay/internal/audit/domain"
	"github.com/smallbiznis/schoolpay/internal/auth/domain"
	"github.com/smallbiznis/schoolpay/internal/observability/logger"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) ListSchoolUsers(ctx context.Context) ([]domain.User, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.repo.ListBySchool(ctx, s.db, scope.SchoolID())
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

func (s *Service) CreateSchoolUser(ctx context.Context, req domain.CreateSchoolUserRequest) (*domain.User, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	schoolID := scope.SchoolID()

	var user *domain.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.createUser(ctx, tx, domain.CreateUserRequest{
			SchoolID: &schoolID,
			Email:    req.Email,
			Password: req.Password,
			FullName: req.FullName,
			Role:     req.Role,
		})
		if err != nil {
			return err
		}
		user = created
		return s.record(ctx, tx, auditdomain.ActionUserCreated, user, map[string]any{
			"email": user.Email,
			"role":  string(user.Role),
		})
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("school user created",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

// UpdateSchoolUser applies a partial change. An admin cannot deactivate
// their own account or change their own role.
func (s *Service) UpdateSchoolUser(ctx context.Context, req domain.UpdateSchoolUserRequest) (*domain.User, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseUserID(req.ID)
	if err != nil {
		return nil, err
	}
	if req.Empty() {
		return nil, domain.ErrNoChanges
	}
	if req.Role != nil && !req.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	if id == req.ActorID && (req.Role != nil || (req.IsActive != nil && !*req.IsActive)) {
		return nil, domain.ErrSelfModification
	}

	var user *domain.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindInSchool(ctx, tx, scope.SchoolID(), id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrUserNotFound
		}

		changes := map[string]any{}
		if req.FullName != nil {
			name := strings.TrimSpace(*req.FullName)
			if name != current.FullName {
				changes["full_name"] = name
				current.FullName = name
			}
		}
		if req.Role != nil && *req.Role != current.Role {
			changes["role"] = string(*req.Role)
			changes["previous_role"] = string(current.Role)
			current.Role = *req.Role
		}
		if req.IsActive != nil && *req.IsActive != current.IsActive {
			changes["is_active"] = *req.IsActive
			current.IsActive = *req.IsActive
		}
		user = current
		if len(changes) == 0 {
			return nil
		}

		current.UpdatedAt = s.clock.Now()
		updated, err := s.repo.UpdateInSchool(ctx, tx, current)
		if err != nil {
			return err
		}
		if !updated {
			return domain.ErrUserNotFound
		}
		return s.record(ctx, tx, auditdomain.ActionUserUpdated, current, changes)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) DeleteSchoolUser(ctx context.Context, req domain.DeleteSchoolUserRequest) error {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return err
	}
	id, err := parseUserID(req.ID)
	if err != nil {
		return err
	}
	if id == req.ActorID {
		return domain.ErrSelfModification
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindInSchool(ctx, tx, scope.SchoolID(), id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrUserNotFound
		}
		deleted, err := s.repo.DeleteInSchool(ctx, tx, scope.SchoolID(), id)
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrUserNotFound
		}
		return s.record(ctx, tx, auditdomain.ActionUserDeleted, current, map[string]any{
			"email": current.Email,
			"role":  string(current.Role),
		})
	})
	if err != nil {
		return err
	}

	logger.WithContext(ctx, s.log).Info("school user deleted", zap.String("user_id", id.String()))
	return nil
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, action string, user *domain.User, metadata map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, tx, auditdomain.Entry{
		Action:     action,
		TargetType: "user",
		TargetID:   user.ID.String(),
		Metadata:   metadata,
	})
}

func parseUserID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, domain.ErrUserNotFound
	}
	return id, nil
}
