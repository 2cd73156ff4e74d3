package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	// Authenticate verifies an access token without touching the database.
	Authenticate(ctx context.Context, accessToken string) (*Principal, error)
	CurrentUser(ctx context.Context, id snowflake.ID) (*User, error)

	// School user management. The school comes from the tenant scope on ctx.
	ListSchoolUsers(ctx context.Context) ([]User, error)
	CreateSchoolUser(ctx context.Context, req CreateSchoolUserRequest) (*User, error)
	UpdateSchoolUser(ctx context.Context, req UpdateSchoolUserRequest) (*User, error)
	DeleteSchoolUser(ctx context.Context, req DeleteSchoolUserRequest) error
}

type CreateUserRequest struct {
	SchoolID        *snowflake.ID
	Email           string
	Password        string
	FullName        string
	Role            Role
	IsPlatformAdmin bool
}

type CreateSchoolUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	Role     Role   `json:"role" binding:"required"`
}

// UpdateSchoolUserRequest changes only the fields that are set.
type UpdateSchoolUserRequest struct {
	ID       string       `json:"-"`
	ActorID  snowflake.ID `json:"-"`
	FullName *string      `json:"full_name"`
	Role     *Role        `json:"role"`
	IsActive *bool        `json:"is_active"`
}

func (r UpdateSchoolUserRequest) Empty() bool {
	return r.FullName == nil && r.Role == nil && r.IsActive == nil
}

type DeleteSchoolUserRequest struct {
	ID      string
	ActorID snowflake.ID
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type LoginResult struct {
	TokenPair
	User *User `json:"user"`
}
