// Package testkit opens in-memory sqlite databases shaped like the postgres
// schema and seeds the rows most tests need.
package testkit

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// Money columns are TEXT so decimal strings round-trip exactly. Check
// constraints, foreign keys and row-level security live only in postgres.
var schema = []string{
	`CREATE TABLE schools (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		subscription_status TEXT NOT NULL DEFAULT 'active',
		referral_discount_pct TEXT NOT NULL DEFAULT '0',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE users (
		id BIGINT PRIMARY KEY,
		school_id BIGINT,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'staff',
		is_platform_admin BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE academic_sessions (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		is_current BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		UNIQUE (school_id, name)
	)`,
	`CREATE TABLE terms (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		session_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		due_date DATETIME,
		is_current BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		UNIQUE (session_id, name)
	)`,
	`CREATE TABLE classes (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		level TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		UNIQUE (school_id, name)
	)`,
	`CREATE TABLE students (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		admission_number TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		scholarship_percent TEXT NOT NULL DEFAULT '0',
		guardian_name TEXT NOT NULL DEFAULT '',
		guardian_phone TEXT NOT NULL DEFAULT '',
		guardian_email TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (school_id, admission_number)
	)`,
	`CREATE TABLE enrollments (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		student_id BIGINT NOT NULL,
		class_id BIGINT NOT NULL,
		session_id BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		UNIQUE (student_id, session_id)
	)`,
	`CREATE TABLE fee_structures (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		class_id BIGINT NOT NULL,
		term_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_fee_structures_class_term ON fee_structures (school_id, class_id, term_id) WHERE is_active`,
	`CREATE TABLE fee_line_items (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		fee_structure_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'tuition',
		amount TEXT NOT NULL,
		is_mandatory BOOLEAN NOT NULL DEFAULT TRUE,
		sort_order INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE invoices (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		student_id BIGINT NOT NULL,
		term_id BIGINT NOT NULL,
		class_id BIGINT NOT NULL,
		subtotal TEXT NOT NULL DEFAULT '0',
		discount_amount TEXT NOT NULL DEFAULT '0',
		arrears_amount TEXT NOT NULL DEFAULT '0',
		late_fee_amount TEXT NOT NULL DEFAULT '0',
		total_amount TEXT NOT NULL DEFAULT '0',
		amount_paid TEXT NOT NULL DEFAULT '0',
		currency TEXT NOT NULL DEFAULT 'NGN',
		status TEXT NOT NULL DEFAULT 'unpaid',
		payment_token TEXT NOT NULL UNIQUE,
		due_date DATETIME,
		notes TEXT NOT NULL DEFAULT '',
		generated_by BIGINT,
		generated_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (student_id, term_id)
	)`,
	`CREATE TABLE invoice_line_items (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		invoice_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		is_mandatory BOOLEAN NOT NULL DEFAULT TRUE,
		sort_order INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE payments (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		invoice_id BIGINT NOT NULL,
		student_id BIGINT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'NGN',
		payment_method TEXT NOT NULL,
		status TEXT NOT NULL,
		approval_status TEXT NOT NULL,
		is_voided BOOLEAN NOT NULL DEFAULT FALSE,
		void_reason TEXT,
		voided_by BIGINT,
		voided_at DATETIME,
		reference TEXT,
		receipt_number TEXT,
		proof_url TEXT,
		narration TEXT NOT NULL DEFAULT '',
		collection_point TEXT NOT NULL DEFAULT '',
		recorded_by BIGINT,
		approved_by BIGINT,
		approved_at DATETIME,
		review_notes TEXT NOT NULL DEFAULT '',
		payment_date DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CONSTRAINT ux_payments_reference UNIQUE (school_id, reference),
		CONSTRAINT ux_payments_receipt_number UNIQUE (school_id, receipt_number)
	)`,
	`CREATE TABLE receipt_sequences (
		school_id BIGINT PRIMARY KEY,
		last_value BIGINT NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE idempotency_cache (
		kind TEXT NOT NULL,
		cache_key TEXT NOT NULL,
		payload TEXT,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (kind, cache_key)
	)`,
	`CREATE TABLE platform_charges (
		id BIGINT PRIMARY KEY,
		school_id BIGINT NOT NULL,
		term_label TEXT NOT NULL,
		active_student_count INT NOT NULL,
		billable_student_count INT NOT NULL,
		price_per_student TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		discount_pct TEXT NOT NULL DEFAULT '0',
		discount_amount TEXT NOT NULL DEFAULT '0',
		amount_due TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'NGN',
		status TEXT NOT NULL DEFAULT 'pending',
		paid_at DATETIME,
		due_date DATETIME NOT NULL,
		grace_end_date DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (school_id, term_label)
	)`,
	`CREATE TABLE activity_log (
		id BIGINT PRIMARY KEY,
		school_id BIGINT,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		ip_address TEXT,
		request_id TEXT,
		created_at DATETIME NOT NULL
	)`,
}

// OpenDB returns a fresh shared-cache in-memory database with the full schema.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// A single connection keeps the in-memory database alive and serializes
	// writers the way row locks would on postgres.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

// Node returns a snowflake node for test ids.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(int64(dbSeq.Add(1) % 1024))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}
