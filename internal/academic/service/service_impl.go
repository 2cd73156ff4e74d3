package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolpay/internal/academic/domain"
	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

var hundred = decimal.NewFromInt(100)

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("academic.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) CreateSchool(ctx context.Context, req domain.CreateSchoolRequest) (domain.School, error) {
	name := strings.TrimSpace(req.Name)
	if len(name) < 3 {
		return domain.School{}, domain.ErrInvalidName
	}
	if req.ReferralDiscountPct.IsNegative() || req.ReferralDiscountPct.GreaterThan(hundred) {
		return domain.School{}, domain.ErrInvalidScholarship
	}

	now := s.clock.Now()
	school := domain.School{
		ID:                  s.genID.Generate(),
		Name:                name,
		Slug:                slug.Make(name),
		SubscriptionStatus:  domain.SubscriptionTrial,
		ReferralDiscountPct: req.ReferralDiscountPct,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.InsertSchool(ctx, s.db, &school); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.School{}, domain.ErrDuplicateName
		}
		return domain.School{}, err
	}

	s.log.Info("school created", zap.String("school_id", school.ID.String()), zap.String("slug", school.Slug))
	return school, nil
}

func (s *Service) GetSchool(ctx context.Context) (domain.School, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return domain.School{}, err
	}
	item, err := s.repo.FindSchool(ctx, s.db, scope.SchoolID())
	if err != nil {
		return domain.School{}, err
	}
	if item == nil {
		return domain.School{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) SetSubscriptionStatus(ctx context.Context, target tenancy.PlatformTarget, status domain.SubscriptionStatus) (domain.School, error) {
	if !status.Valid() {
		return domain.School{}, domain.ErrInvalidSubscription
	}
	schoolID := target.SchoolID()
	if schoolID == 0 {
		return domain.School{}, tenancy.ErrMissingTargetSchool
	}

	var school *domain.School
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.UpdateSchoolSubscription(ctx, tx, schoolID, status, s.clock.Now())
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrNotFound
		}
		school, err = s.repo.FindSchool(ctx, tx, schoolID)
		return err
	})
	if err != nil {
		return domain.School{}, err
	}
	if school == nil {
		return domain.School{}, domain.ErrNotFound
	}

	s.log.Info("school subscription changed",
		zap.String("school_id", schoolID.String()),
		zap.String("subscription_status", string(status)),
	)
	return *school, nil
}

func (s *Service) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (domain.Session, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Session{}, domain.ErrInvalidName
	}
	if !req.EndDate.After(req.StartDate) {
		return domain.Session{}, domain.ErrInvalidDateRange
	}

	session := domain.Session{
		ID:        s.genID.Generate(),
		Name:      name,
		StartDate: req.StartDate.UTC(),
		EndDate:   req.EndDate.UTC(),
		IsCurrent: req.IsCurrent,
		CreatedAt: s.clock.Now(),
	}
	err = scope.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		if session.IsCurrent {
			if err := tx.Exec(`UPDATE academic_sessions SET is_current = ? WHERE school_id = ?`, false, scope.SchoolID()).Error; err != nil {
				return err
			}
		}
		return s.repo.InsertSession(ctx, tx, scope, &session)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Session{}, domain.ErrDuplicateName
		}
		return domain.Session{}, err
	}
	return session, nil
}

func (s *Service) ListSessions(ctx context.Context) ([]domain.Session, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSessions(ctx, s.db, scope)
}

func (s *Service) CreateTerm(ctx context.Context, req domain.CreateTermRequest) (domain.Term, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return domain.Term{}, err
	}
	sessionID, err := parseID(req.SessionID)
	if err != nil {
		return domain.Term{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Term{}, domain.ErrInvalidName
	}
	if !req.EndDate.After(req.StartDate) {
		return domain.Term{}, domain.ErrInvalidDateRange
	}

	session, err := s.repo.FindSession(ctx, s.db, scope, sessionID)
	if err != nil {
		return domain.Term{}, err
	}
	if session == nil {
		return domain.Term{}, domain.ErrNotFound
	}

	term := domain.Term{
		ID:        s.genID.Generate(),
		SessionID: session.ID,
		Name:      name,
		StartDate: req.StartDate.UTC(),
		EndDate:   req.EndDate.UTC(),
		IsCurrent: req.IsCurrent,
		CreatedAt: s.clock.Now(),
	}
	if req.DueDate != nil {
		due := req.DueDate.UTC()
		term.DueDate = &due
	}

	err = scope.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		if term.IsCurrent {
			if err := tx.Exec(`UPDATE terms SET is_current = ? WHERE school_id = ?`, false, scope.SchoolID()).Error; err != nil {
				return err
			}
		}
		return s.repo.InsertTerm(ctx, tx, scope, &term)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Term{}, domain.ErrDuplicateName
		}
		return domain.Term{}, err
	}
	return term, nil
}

func (s *Service) ListTerms(ctx context.Context, sessionID string) ([]domain.Term, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	var id snowflake.ID
	if strings.TrimSpace(sessionID) != "" {
		if id, err = parseID(sessionID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListTerms(ctx, s.db, scope, id)
}

func (s *Service) CreateClass(ctx context.Context, req domain.CreateClassRequest) (domain.Class, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return domain.Class{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Class{}, domain.ErrInvalidName
	}
	class := domain.Class{
		ID:        s.genID.Generate(),
		Name:      name,
		Level:     strings.TrimSpace(req.Level),
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertClass(ctx, s.db, scope, &class); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Class{}, domain.ErrDuplicateName
		}
		return domain.Class{}, err
	}
	return class, nil
}

func (s *Service) ListClasses(ctx context.Context) ([]domain.Class, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListClasses(ctx, s.db, scope)
}

func (s *Service) CreateStudent(ctx context.Context, req domain.CreateStudentRequest) (domain.Student, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return domain.Student{}, err
	}
	admission := strings.TrimSpace(req.AdmissionNumber)
	first := strings.TrimSpace(req.FirstName)
	last := strings.TrimSpace(req.LastName)
	if admission == "" || first == "" || last == "" {
		return domain.Student{}, domain.ErrInvalidName
	}
	if !validPercent(req.ScholarshipPercent) {
		return domain.Student{}, domain.ErrInvalidScholarship
	}

	now := s.clock.Now()
	student := domain.Student{
		ID:                 s.genID.Generate(),
		AdmissionNumber:    admission,
		FirstName:          first,
		LastName:           last,
		Status:             domain.StudentActive,
		ScholarshipPercent: req.ScholarshipPercent.Round(2),
		GuardianName:       strings.TrimSpace(req.GuardianName),
		GuardianPhone:      strings.TrimSpace(req.GuardianPhone),
		GuardianEmail:      strings.ToLower(strings.TrimSpace(req.GuardianEmail)),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.InsertStudent(ctx, s.db, scope, &student); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Student{}, domain.ErrDuplicateAdmission
		}
		return domain.Student{}, err
	}
	return student, nil
}

func (s *Service) UpdateStudent(ctx context.Context, req domain.UpdateStudentRequest) (domain.Student, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return domain.Student{}, err
	}
	id, err := parseID(req.ID)
	if err != nil {
		return domain.Student{}, err
	}

	updates := map[string]any{"updated_at": s.clock.Now()}
	if req.Status != nil {
		switch *req.Status {
		case domain.StudentActive, domain.StudentGraduated, domain.StudentWithdrawn, domain.StudentSuspended:
			updates["status"] = *req.Status
		default:
			return domain.Student{}, domain.ErrInvalidStudentStatus
		}
	}
	if req.ScholarshipPercent != nil {
		if !validPercent(*req.ScholarshipPercent) {
			return domain.Student{}, domain.ErrInvalidScholarship
		}
		updates["scholarship_percent"] = req.ScholarshipPercent.Round(2)
	}
	if req.GuardianPhone != nil {
		updates["guardian_phone"] = strings.TrimSpace(*req.GuardianPhone)
	}
	if req.GuardianEmail != nil {
		updates["guardian_email"] = strings.ToLower(strings.TrimSpace(*req.GuardianEmail))
	}

	if err := s.repo.UpdateStudent(ctx, s.db, scope, id, updates); err != nil {
		if errors.Is(err, tenancy.ErrNotFound) {
			return domain.Student{}, domain.ErrNotFound
		}
		return domain.Student{}, err
	}
	return s.GetStudent(ctx, req.ID)
}

func (s *Service) GetStudent(ctx context.Context, id string) (domain.Student, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return domain.Student{}, err
	}
	studentID, err := parseID(id)
	if err != nil {
		return domain.Student{}, err
	}
	item, err := s.repo.FindStudent(ctx, s.db, scope, studentID)
	if err != nil {
		return domain.Student{}, err
	}
	if item == nil {
		return domain.Student{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) ListStudents(ctx context.Context, req domain.ListStudentsRequest) ([]domain.Student, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	filter := domain.StudentFilter{
		Status: domain.StudentStatus(strings.TrimSpace(req.Status)),
		Search: req.Search,
	}
	if strings.TrimSpace(req.ClassID) != "" {
		if filter.ClassID, err = parseID(req.ClassID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListStudents(ctx, s.db, scope, filter)
}

func (s *Service) Enroll(ctx context.Context, req domain.EnrollRequest) (domain.Enrollment, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return domain.Enrollment{}, err
	}
	studentID, err := parseID(req.StudentID)
	if err != nil {
		return domain.Enrollment{}, err
	}
	classID, err := parseID(req.ClassID)
	if err != nil {
		return domain.Enrollment{}, err
	}
	sessionID, err := parseID(req.SessionID)
	if err != nil {
		return domain.Enrollment{}, err
	}

	// Each referenced row must belong to the caller's school.
	student, err := s.repo.FindStudent(ctx, s.db, scope, studentID)
	if err != nil {
		return domain.Enrollment{}, err
	}
	class, err := s.repo.FindClass(ctx, s.db, scope, classID)
	if err != nil {
		return domain.Enrollment{}, err
	}
	session, err := s.repo.FindSession(ctx, s.db, scope, sessionID)
	if err != nil {
		return domain.Enrollment{}, err
	}
	if student == nil || class == nil || session == nil {
		return domain.Enrollment{}, domain.ErrNotFound
	}

	enrollment := domain.Enrollment{
		ID:        s.genID.Generate(),
		StudentID: student.ID,
		ClassID:   class.ID,
		SessionID: session.ID,
		Status:    domain.EnrollmentActive,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertEnrollment(ctx, s.db, scope, &enrollment); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Enrollment{}, domain.ErrAlreadyEnrolled
		}
		return domain.Enrollment{}, err
	}
	return enrollment, nil
}

func validPercent(v decimal.Decimal) bool {
	return !v.IsNegative() && !v.GreaterThan(hundred)
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
