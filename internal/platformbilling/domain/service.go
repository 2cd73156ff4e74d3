package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/schoolpay/internal/tenancy"
)

type Service interface {
	// EnsureCharge raises the term's charge once. Later calls for the same
	// label return the existing charge unchanged.
	EnsureCharge(ctx context.Context, target tenancy.PlatformTarget, termLabel string, activeStudents int) (*Charge, error)
	List(ctx context.Context, target tenancy.PlatformTarget) ([]Charge, error)
	MarkPaid(ctx context.Context, target tenancy.PlatformTarget, chargeID string) (*Charge, error)
}

var (
	ErrNotFound         = errors.New("platform_charge_not_found")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidTermLabel = errors.New("invalid_term_label")
	ErrInvalidCount     = errors.New("invalid_student_count")
	ErrSchoolNotFound   = errors.New("school_not_found")
	ErrAlreadyPaid      = errors.New("platform_charge_already_paid")
)
