package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolpay/internal/fee/domain"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertStructure(ctx context.Context, db *gorm.DB, scope tenancy.Scope, structure *domain.FeeStructure) error {
	tx := db.WithContext(ctx)
	if err := scope.Create(tx, structure); err != nil {
		return err
	}
	if len(structure.Items) == 0 {
		return nil
	}
	for i := range structure.Items {
		structure.Items[i].FeeStructureID = structure.ID
		if err := scope.Stamp(&structure.Items[i]); err != nil {
			return err
		}
	}
	return tx.Create(&structure.Items).Error
}

func (r *repo) FindStructure(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*domain.FeeStructure, error) {
	var item domain.FeeStructure
	err := db.WithContext(ctx).Raw(
		`SELECT id, school_id, class_id, term_id, name, is_active, created_at, updated_at
		 FROM fee_structures
		 WHERE school_id = ? AND id = ?
		 LIMIT 1`,
		scope.SchoolID(),
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	if err := r.loadItems(ctx, db, scope, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, scope tenancy.Scope, classID, termID snowflake.ID) (*domain.FeeStructure, error) {
	var item domain.FeeStructure
	err := db.WithContext(ctx).Raw(
		`SELECT id, school_id, class_id, term_id, name, is_active, created_at, updated_at
		 FROM fee_structures
		 WHERE school_id = ? AND class_id = ? AND term_id = ? AND is_active = ?
		 LIMIT 1`,
		scope.SchoolID(),
		classID,
		termID,
		true,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	if err := r.loadItems(ctx, db, scope, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) ListStructures(ctx context.Context, db *gorm.DB, scope tenancy.Scope, termID snowflake.ID) ([]domain.FeeStructure, error) {
	query := `SELECT id, school_id, class_id, term_id, name, is_active, created_at, updated_at
		 FROM fee_structures
		 WHERE school_id = ?`
	args := []any{scope.SchoolID()}
	if termID != 0 {
		query += ` AND term_id = ?`
		args = append(args, termID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var items []domain.FeeStructure
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	for i := range items {
		if err := r.loadItems(ctx, db, scope, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID, at time.Time) error {
	return scope.Update(db.WithContext(ctx), "fee_structures", id, map[string]any{"is_active": false, "updated_at": at})
}

func (r *repo) loadItems(ctx context.Context, db *gorm.DB, scope tenancy.Scope, structure *domain.FeeStructure) error {
	var items []domain.FeeLineItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, school_id, fee_structure_id, name, category, amount, is_mandatory, sort_order
		 FROM fee_line_items
		 WHERE school_id = ? AND fee_structure_id = ?
		 ORDER BY sort_order ASC, id ASC`,
		scope.SchoolID(),
		structure.ID,
	).Scan(&items).Error
	if err != nil {
		return err
	}
	structure.Items = items
	return nil
}
