package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolpay/internal/auth/domain"
	"gorm.io/gorm"
)

const userColumns = `id, school_id, email, password_hash, full_name, role, is_platform_admin, is_active, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return r.findOne(ctx, db, `LOWER(email) = ?`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) ListBySchool(ctx context.Context, db *gorm.DB, schoolID snowflake.ID) ([]domain.User, error) {
	var users []domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT `+userColumns+`
		 FROM users
		 WHERE school_id = ? AND is_platform_admin = FALSE
		 ORDER BY created_at ASC, id ASC`,
		schoolID,
	).Scan(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repo) FindInSchool(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*domain.User, error) {
	return r.findOne(ctx, db, `id = ? AND school_id = ? AND is_platform_admin = FALSE`, id, schoolID)
}

func (r *repo) UpdateInSchool(ctx context.Context, db *gorm.DB, user *domain.User) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE users
		 SET full_name = ?, role = ?, is_active = ?, updated_at = ?
		 WHERE id = ? AND school_id = ? AND is_platform_admin = FALSE`,
		user.FullName, user.Role, user.IsActive, user.UpdatedAt,
		user.ID, user.SchoolID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) DeleteInSchool(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM users WHERE id = ? AND school_id = ? AND is_platform_admin = FALSE`,
		id, schoolID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT `+userColumns+`
		 FROM users
		 WHERE `+where+`
		 LIMIT 1`,
		args...,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}
