// Package receipt numbers confirmed payments and renders their receipts.
package receipt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSequenceUnavailable = errors.New("receipt_sequence_unavailable")

type sequenceRow struct {
	SchoolID  snowflake.ID `gorm:"column:school_id;primaryKey;autoIncrement:false"`
	LastValue int64        `gorm:"column:last_value"`
	UpdatedAt time.Time    `gorm:"column:updated_at"`
}

func (sequenceRow) TableName() string { return "receipt_sequences" }

// Sequence hands out receipt numbers from receipt_sequences. One counter
// exists per school and it is never reset; the year in the number is only a
// label taken from the confirmation date in Lagos.
type Sequence struct{}

func NewSequence() *Sequence {
	return &Sequence{}
}

// Next must run inside the transaction that confirms the payment. The
// UPDATE holds the school's counter row until that transaction ends, so two
// confirmations can never read the same value.
func (s *Sequence) Next(ctx context.Context, tx *gorm.DB, scope tenancy.Scope, at time.Time) (string, error) {
	if !scope.Valid() {
		return "", tenancy.ErrMissingTenant
	}
	conn := tx.WithContext(ctx)

	if err := conn.
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "school_id"}}, DoNothing: true}).
		Create(&sequenceRow{SchoolID: scope.SchoolID(), UpdatedAt: at}).Error; err != nil {
		return "", err
	}

	result := conn.Exec(
		`UPDATE receipt_sequences SET last_value = last_value + 1, updated_at = ? WHERE school_id = ?`,
		at,
		scope.SchoolID(),
	)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", ErrSequenceUnavailable
	}

	var value int64
	if err := conn.Raw(
		`SELECT last_value FROM receipt_sequences WHERE school_id = ?`,
		scope.SchoolID(),
	).Scan(&value).Error; err != nil {
		return "", err
	}
	if value <= 0 {
		return "", ErrSequenceUnavailable
	}
	return Format(at, value), nil
}

// Format renders RCP/{year}/{n:06d} with the year in Africa/Lagos.
func Format(at time.Time, n int64) string {
	return fmt.Sprintf("RCP/%d/%06d", at.In(clock.Lagos).Year(), n)
}

// Filename is the download name for a receipt number.
func Filename(receiptNumber string) string {
	return strings.ReplaceAll(receiptNumber, "/", "-") + ".pdf"
}
