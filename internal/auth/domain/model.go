// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleSchoolAdmin Role = "school_admin"
	RoleBursar      Role = "bursar"
	RoleStaff       Role = "staff"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSchoolAdmin, RoleBursar, RoleStaff:
		return true
	default:
		return false
	}
}

// User represents a staff account. Platform admins have no school.
type User struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	SchoolID        *snowflake.ID `json:"school_id,omitempty"`
	Email           string        `gorm:"uniqueIndex" json:"email"`
	PasswordHash    string        `json:"-"`
	FullName        string        `json:"full_name"`
	Role            Role          `json:"role"`
	IsPlatformAdmin bool          `json:"is_platform_admin"`
	IsActive        bool          `json:"is_active"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Principal is the identity a verified access token carries.
type Principal struct {
	UserID          snowflake.ID
	SchoolID        snowflake.ID
	Role            Role
	IsPlatformAdmin bool
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
