package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryTuition   Category = "tuition"
	CategoryBooks     Category = "books"
	CategoryUniform   Category = "uniform"
	CategoryTransport Category = "transport"
	CategoryFeeding   Category = "feeding"
	CategoryExam      Category = "exam"
	CategoryOther     Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryTuition, CategoryBooks, CategoryUniform, CategoryTransport, CategoryFeeding, CategoryExam, CategoryOther:
		return true
	}
	return false
}

// FeeStructure is the billing template for one class in one term.
type FeeStructure struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	SchoolID  snowflake.ID  `json:"school_id"`
	ClassID   snowflake.ID  `json:"class_id"`
	TermID    snowflake.ID  `json:"term_id"`
	Name      string        `json:"name"`
	IsActive  bool          `json:"is_active"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Items     []FeeLineItem `gorm:"-" json:"items"`
}

func (FeeStructure) TableName() string { return "fee_structures" }

func (f *FeeStructure) SetSchoolID(id snowflake.ID) { f.SchoolID = id }

type FeeLineItem struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	SchoolID       snowflake.ID    `json:"school_id"`
	FeeStructureID snowflake.ID    `json:"fee_structure_id"`
	Name           string          `json:"name"`
	Category       Category        `json:"category"`
	Amount         decimal.Decimal `json:"amount"`
	IsMandatory    bool            `json:"is_mandatory"`
	SortOrder      int             `json:"sort_order"`
}

func (FeeLineItem) TableName() string { return "fee_line_items" }

func (i *FeeLineItem) SetSchoolID(id snowflake.ID) { i.SchoolID = id }

// Billable returns the items an invoice should carry.
func (f FeeStructure) Billable(includeOptional bool) []FeeLineItem {
	out := make([]FeeLineItem, 0, len(f.Items))
	for _, item := range f.Items {
		if item.IsMandatory || includeOptional {
			out = append(out, item)
		}
	}
	return out
}

// Total sums the amounts of items.
func Total(items []FeeLineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Amount)
	}
	return sum
}
