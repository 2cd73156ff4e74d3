package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolpay/internal/academic/domain"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertSchool(ctx context.Context, db *gorm.DB, school *domain.School) error {
	return db.WithContext(ctx).Create(school).Error
}

func (r *repo) FindSchool(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.School, error) {
	var item domain.School
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, subscription_status, referral_discount_pct, created_at, updated_at
		 FROM schools
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateSchoolSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.SubscriptionStatus, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE schools SET subscription_status = ?, updated_at = ? WHERE id = ?`,
		status,
		at,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertSession(ctx context.Context, db *gorm.DB, scope tenancy.Scope, session *domain.Session) error {
	return scope.Create(db.WithContext(ctx), session)
}

func (r *repo) FindSession(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*domain.Session, error) {
	var item domain.Session
	err := db.WithContext(ctx).Raw(
		`SELECT id, school_id, name, start_date, end_date, is_current, created_at
		 FROM academic_sessions
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
	return &item, nil
}

func (r *repo) ListSessions(ctx context.Context, db *gorm.DB, scope tenancy.Scope) ([]domain.Session, error) {
	var items []domain.Session
	err := db.WithContext(ctx).Raw(
		`SELECT id, school_id, name, start_date, end_date, is_current, created_at
		 FROM academic_sessions
		 WHERE school_id = ?
		 ORDER BY start_date DESC`,
		scope.SchoolID(),
	).Scan(&items).Error
	return items, err
}

func (r *repo) InsertTerm(ctx context.Context, db *gorm.DB, scope tenancy.Scope, term *domain.Term) error {
	return scope.Create(db.WithContext(ctx), term)
}

func (r *repo) FindTerm(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*domain.Term, error) {
	var item domain.Term
	err := db.WithContext(ctx).Raw(
		`SELECT id, school_id, session_id, name, start_date, end_date, due_date, is_current, created_at
		 FROM terms
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
	return &item, nil
}

func (r *repo) ListTerms(ctx context.Context, db *gorm.DB, scope tenancy.Scope, sessionID snowflake.ID) ([]domain.Term, error) {
	query := `SELECT id, school_id, session_id, name, start_date, end_date, due_date, is_current, created_at
		 FROM terms
		 WHERE school_id = ?`
	args := []any{scope.SchoolID()}
	if sessionID != 0 {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY start_date ASC`

	var items []domain.Term
	err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error
	return items, err
}

func (r *repo) FindPreviousTerm(ctx context.Context, db *gorm.DB, scope tenancy.Scope, term domain.Term) (*domain.Term, error) {
	var item domain.Term
	err := db.WithContext(ctx).Raw(
		`SELECT id, school_id, session_id, name, start_date, end_date, due_date, is_current, created_at
		 FROM terms
		 WHERE school_id = ? AND session_id = ? AND id <> ? AND start_date < ?
		 ORDER BY start_date DESC
		 LIMIT 1`,
		scope.SchoolID(),
		term.SessionID,
		term.ID,
		term.StartDate,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertClass(ctx context.Context, db *gorm.DB, scope tenancy.Scope, class *domain.Class) error {
	return scope.Create(db.WithContext(ctx), class)
}

func (r *repo) FindClass(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*domain.Class, error) {
	var item domain.Class
	err := db.WithContext(ctx).Raw(
		`SELECT id, school_id, name, level, created_at
		 FROM classes
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
	return &item, nil
}

func (r *repo) ListClasses(ctx context.Context, db *gorm.DB, scope tenancy.Scope) ([]domain.Class, error) {
	var items []domain.Class
	err := db.WithContext(ctx).Raw(
		`SELECT id, school_id, name, level, created_at
		 FROM classes
		 WHERE school_id = ?
		 ORDER BY name ASC`,
		scope.SchoolID(),
	).Scan(&items).Error
	return items, err
}

func (r *repo) InsertStudent(ctx context.Context, db *gorm.DB, scope tenancy.Scope, student *domain.Student) error {
	return scope.Create(db.WithContext(ctx), student)
}

func (r *repo) FindStudent(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID) (*domain.Student, error) {
	var item domain.Student
	err := db.WithContext(ctx).Raw(
		`SELECT id, school_id, admission_number, first_name, last_name, status, scholarship_percent,
			guardian_name, guardian_phone, guardian_email, created_at, updated_at
		 FROM students
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
	return &item, nil
}

func (r *repo) ListStudents(ctx context.Context, db *gorm.DB, scope tenancy.Scope, filter domain.StudentFilter) ([]domain.Student, error) {
	query := `SELECT s.id, s.school_id, s.admission_number, s.first_name, s.last_name, s.status,
			s.scholarship_percent, s.guardian_name, s.guardian_phone, s.guardian_email,
			s.created_at, s.updated_at
		 FROM students s`
	args := []any{}
	if filter.ClassID != 0 {
		query += ` JOIN enrollments e ON e.student_id = s.id AND e.school_id = s.school_id AND e.status = 'active' AND e.class_id = ?`
		args = append(args, filter.ClassID)
	}
	query += ` WHERE s.school_id = ?`
	args = append(args, scope.SchoolID())
	if filter.Status != "" {
		query += ` AND s.status = ?`
		args = append(args, filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query += ` AND (LOWER(s.first_name) LIKE ? OR LOWER(s.last_name) LIKE ? OR LOWER(s.admission_number) LIKE ?)`
		args = append(args, like, like, like)
	}
	query += ` ORDER BY s.last_name ASC, s.first_name ASC`

	var items []domain.Student
	err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error
	return items, err
}

func (r *repo) UpdateStudent(ctx context.Context, db *gorm.DB, scope tenancy.Scope, id snowflake.ID, updates map[string]any) error {
	return scope.Update(db.WithContext(ctx), "students", id, updates)
}

func (r *repo) InsertEnrollment(ctx context.Context, db *gorm.DB, scope tenancy.Scope, enrollment *domain.Enrollment) error {
	return scope.Create(db.WithContext(ctx), enrollment)
}

func (r *repo) ListBillableEnrollments(ctx context.Context, db *gorm.DB, scope tenancy.Scope, sessionID snowflake.ID) ([]domain.BillableEnrollment, error) {
	var items []domain.BillableEnrollment
	err := db.WithContext(ctx).Raw(
		`SELECT e.id AS enrollment_id, e.student_id, e.class_id,
			s.status AS student_status, s.scholarship_percent
		 FROM enrollments e
		 JOIN students s ON s.id = e.student_id AND s.school_id = e.school_id
		 WHERE e.school_id = ? AND e.session_id = ? AND e.status = ?
		 ORDER BY e.id ASC`,
		scope.SchoolID(),
		sessionID,
		domain.EnrollmentActive,
	).Scan(&items).Error
	return items, err
}
