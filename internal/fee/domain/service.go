package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type LineItemInput struct {
	Name        string          `json:"name" binding:"required"`
	Category    Category        `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	IsMandatory *bool           `json:"is_mandatory"`
}

type CreateFeeStructureRequest struct {
	ClassID string          `json:"class_id" binding:"required"`
	TermID  string          `json:"term_id" binding:"required"`
	Name    string          `json:"name"`
	Items   []LineItemInput `json:"items" binding:"required,min=1,dive"`
}

type Service interface {
	Create(ctx context.Context, req CreateFeeStructureRequest) (FeeStructure, error)
	Get(ctx context.Context, id string) (FeeStructure, error)
	List(ctx context.Context, termID string) ([]FeeStructure, error)
	Deactivate(ctx context.Context, id string) error
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidCategory    = errors.New("invalid_category")
	ErrEmptyStructure     = errors.New("empty_fee_structure")
	ErrFeeStructureExists = errors.New("fee_structure_exists")
)
