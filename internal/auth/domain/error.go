package domain

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUserExists         = errors.New("user_already_exists")
	ErrUserInactive       = errors.New("user_inactive")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrTokenExpired       = errors.New("token_expired")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrWeakPassword       = errors.New("weak_password")
	ErrTooManyAttempts    = errors.New("too_many_login_attempts")
	ErrMissingSecret      = errors.New("auth_jwt_secret_missing")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrNoChanges          = errors.New("no_changes")
	ErrSelfModification   = errors.New("cannot_modify_own_account")
)
