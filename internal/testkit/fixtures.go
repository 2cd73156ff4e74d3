package testkit

import (
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Fixture seeds rows with raw SQL so it can be shared by every package's
// tests without importing their domain types.
type Fixture struct {
	t    testing.TB
	DB   *gorm.DB
	Node *snowflake.Node
	Now  time.Time
}

func NewFixture(t testing.TB) *Fixture {
	t.Helper()
	return &Fixture{
		t:    t,
		DB:   OpenDB(t),
		Node: Node(t),
		Now:  time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC),
	}
}

func (f *Fixture) T() testing.TB { return f.t }

func (f *Fixture) exec(sql string, args ...any) {
	f.t.Helper()
	if err := f.DB.Exec(sql, args...).Error; err != nil {
		f.t.Fatalf("seed: %v", err)
	}
}

func (f *Fixture) School(name string) snowflake.ID {
	return f.SchoolWithReferral(name, "0")
}

func (f *Fixture) SchoolWithReferral(name, referralPct string) snowflake.ID {
	f.t.Helper()
	id := f.Node.Generate()
	f.exec(`INSERT INTO schools (id, name, slug, subscription_status, referral_discount_pct, created_at, updated_at)
		VALUES (?, ?, ?, 'active', ?, ?, ?)`,
		id, name, fmt.Sprintf("school-%d", id), referralPct, f.Now, f.Now)
	return id
}

func (f *Fixture) Session(schoolID snowflake.ID, name string) snowflake.ID {
	f.t.Helper()
	id := f.Node.Generate()
	f.exec(`INSERT INTO academic_sessions (id, school_id, name, start_date, end_date, is_current, created_at)
		VALUES (?, ?, ?, ?, ?, TRUE, ?)`,
		id, schoolID, name,
		time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
		f.Now)
	return id
}

// Term inserts a term starting startMonth months after September 2024.
func (f *Fixture) Term(schoolID, sessionID snowflake.ID, name string, startMonth int) snowflake.ID {
	f.t.Helper()
	id := f.Node.Generate()
	start := time.Date(2024, time.September+time.Month(startMonth), 1, 0, 0, 0, 0, time.UTC)
	f.exec(`INSERT INTO terms (id, school_id, session_id, name, start_date, end_date, due_date, is_current, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, FALSE, ?)`,
		id, schoolID, sessionID, name, start, start.AddDate(0, 3, 0), start.AddDate(0, 0, 21), f.Now)
	return id
}

func (f *Fixture) Class(schoolID snowflake.ID, name string) snowflake.ID {
	f.t.Helper()
	id := f.Node.Generate()
	f.exec(`INSERT INTO classes (id, school_id, name, level, created_at) VALUES (?, ?, ?, '', ?)`,
		id, schoolID, name, f.Now)
	return id
}

func (f *Fixture) Student(schoolID snowflake.ID, admission, scholarshipPct string) snowflake.ID {
	f.t.Helper()
	id := f.Node.Generate()
	f.exec(`INSERT INTO students (id, school_id, admission_number, first_name, last_name, status,
			scholarship_percent, guardian_name, guardian_phone, guardian_email, created_at, updated_at)
		VALUES (?, ?, ?, 'Ada', 'Obi', 'active', ?, 'Mrs Obi', '+2348030000000', 'obi@example.com', ?, ?)`,
		id, schoolID, admission, scholarshipPct, f.Now, f.Now)
	return id
}

func (f *Fixture) SetStudentStatus(studentID snowflake.ID, status string) {
	f.t.Helper()
	f.exec(`UPDATE students SET status = ? WHERE id = ?`, status, studentID)
}

func (f *Fixture) Enroll(schoolID, studentID, classID, sessionID snowflake.ID) snowflake.ID {
	f.t.Helper()
	id := f.Node.Generate()
	f.exec(`INSERT INTO enrollments (id, school_id, student_id, class_id, session_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, 'active', ?)`,
		id, schoolID, studentID, classID, sessionID, f.Now)
	return id
}

// FeeItem describes one line of a seeded fee structure.
type FeeItem struct {
	Name      string
	Category  string
	Amount    string
	Mandatory bool
}

func (f *Fixture) FeeStructure(schoolID, classID, termID snowflake.ID, items ...FeeItem) snowflake.ID {
	f.t.Helper()
	id := f.Node.Generate()
	f.exec(`INSERT INTO fee_structures (id, school_id, class_id, term_id, name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'Fees', TRUE, ?, ?)`,
		id, schoolID, classID, termID, f.Now, f.Now)
	for i, item := range items {
		category := item.Category
		if category == "" {
			category = "tuition"
		}
		f.exec(`INSERT INTO fee_line_items (id, school_id, fee_structure_id, name, category, amount, is_mandatory, sort_order)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.Node.Generate(), schoolID, id, item.Name, category, item.Amount, item.Mandatory, i)
	}
	return id
}

// Invoice inserts an invoice with total and amount_paid already set.
func (f *Fixture) Invoice(schoolID, studentID, termID, classID snowflake.ID, total, paid, status string) snowflake.ID {
	f.t.Helper()
	id := f.Node.Generate()
	f.exec(`INSERT INTO invoices (id, school_id, student_id, term_id, class_id, subtotal, discount_amount,
			arrears_amount, late_fee_amount, total_amount, amount_paid, currency, status, payment_token,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '0', '0', '0', ?, ?, 'NGN', ?, ?, ?, ?)`,
		id, schoolID, studentID, termID, classID, total, total, paid, status, fmt.Sprintf("tok-%d", id), f.Now, f.Now)
	return id
}

// Payment inserts a payment row with explicit state columns.
func (f *Fixture) Payment(schoolID, invoiceID, studentID snowflake.ID, amount, method, status, approval string, voided bool) snowflake.ID {
	f.t.Helper()
	id := f.Node.Generate()
	f.exec(`INSERT INTO payments (id, school_id, invoice_id, student_id, amount, currency, payment_method, status,
			approval_status, is_voided, payment_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'NGN', ?, ?, ?, ?, ?, ?, ?)`,
		id, schoolID, invoiceID, studentID, amount, method, status, approval, voided, f.Now, f.Now, f.Now)
	return id
}

// InvoiceToken returns the payment token of a seeded invoice.
func (f *Fixture) InvoiceToken(invoiceID snowflake.ID) string {
	f.t.Helper()
	var token string
	if err := f.DB.Raw(`SELECT payment_token FROM invoices WHERE id = ?`, invoiceID).Scan(&token).Error; err != nil {
		f.t.Fatalf("invoice token: %v", err)
	}
	return token
}

// User inserts an active user with an already hashed password.
func (f *Fixture) User(schoolID snowflake.ID, email, passwordHash, role string, platformAdmin bool) snowflake.ID {
	f.t.Helper()
	id := f.Node.Generate()
	var school any
	if schoolID != 0 {
		school = schoolID
	}
	f.exec(`INSERT INTO users (id, school_id, email, password_hash, full_name, role, is_platform_admin, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'Test User', ?, ?, TRUE, ?, ?)`,
		id, school, email, passwordHash, role, platformAdmin, f.Now, f.Now)
	return id
}

// Count returns the number of rows matching where in table.
func (f *Fixture) Count(table, where string, args ...any) int64 {
	f.t.Helper()
	var n int64
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	if err := f.DB.Raw(query, args...).Scan(&n).Error; err != nil {
		f.t.Fatalf("count %s: %v", table, err)
	}
	return n
}
