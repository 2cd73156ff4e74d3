package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolpay/internal/academic/domain"
	"github.com/smallbiznis/schoolpay/internal/academic/repository"
	"github.com/smallbiznis/schoolpay/internal/academic/service"
	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(f *testkit.Fixture) domain.Service {
	return service.New(service.Params{
		DB:    f.DB,
		Log:   zap.NewNop(),
		GenID: f.Node,
		Clock: clock.NewFakeClock(f.Now),
		Repo:  repository.Provide(),
	})
}

func TestCreateSchoolSlugifiesName(t *testing.T) {
	f := testkit.NewFixture(t)
	svc := newService(f)

	school, err := svc.CreateSchool(context.Background(), domain.CreateSchoolRequest{Name: "Greenfield Academy, Lekki"})
	require.NoError(t, err)
	assert.Equal(t, "greenfield-academy-lekki", school.Slug)
	assert.Equal(t, domain.SubscriptionTrial, school.SubscriptionStatus)

	_, err = svc.CreateSchool(context.Background(), domain.CreateSchoolRequest{Name: "Greenfield Academy Lekki"})
	assert.ErrorIs(t, err, domain.ErrDuplicateName)
}

func TestStudentLifecycle(t *testing.T) {
	f := testkit.NewFixture(t)
	svc := newService(f)
	schoolID := f.School("Greenfield")
	ctx := tenancy.WithSchool(context.Background(), schoolID)

	student, err := svc.CreateStudent(ctx, domain.CreateStudentRequest{
		AdmissionNumber:    "GF/001",
		FirstName:          "Chidi",
		LastName:           "Okeke",
		ScholarshipPercent: decimal.NewFromInt(10),
		GuardianPhone:      " +2348012345678 ",
	})
	require.NoError(t, err)
	assert.Equal(t, schoolID, student.SchoolID)
	assert.Equal(t, "+2348012345678", student.GuardianPhone)

	_, err = svc.CreateStudent(ctx, domain.CreateStudentRequest{AdmissionNumber: "GF/001", FirstName: "A", LastName: "B"})
	assert.ErrorIs(t, err, domain.ErrDuplicateAdmission)

	_, err = svc.CreateStudent(ctx, domain.CreateStudentRequest{
		AdmissionNumber:    "GF/002",
		FirstName:          "A",
		LastName:           "B",
		ScholarshipPercent: decimal.NewFromInt(101),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidScholarship)

	withdrawn := domain.StudentWithdrawn
	updated, err := svc.UpdateStudent(ctx, domain.UpdateStudentRequest{ID: student.ID.String(), Status: &withdrawn})
	require.NoError(t, err)
	assert.Equal(t, domain.StudentWithdrawn, updated.Status)

	got, err := svc.ListStudents(ctx, domain.ListStudentsRequest{Search: "oke"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, student.ID, got[0].ID)
}

func TestStudentIsInvisibleToOtherSchool(t *testing.T) {
	f := testkit.NewFixture(t)
	svc := newService(f)
	schoolA := f.School("School A")
	schoolB := f.School("School B")
	studentB := f.Student(schoolB, "B-001", "0")

	ctxA := tenancy.WithSchool(context.Background(), schoolA)
	_, err := svc.GetStudent(ctxA, studentB.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	phone := "000"
	_, err = svc.UpdateStudent(ctxA, domain.UpdateStudentRequest{ID: studentB.String(), GuardianPhone: &phone})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetStudent(context.Background(), studentB.String())
	assert.ErrorIs(t, err, tenancy.ErrMissingTenant)
}

func TestTermsAndEnrollment(t *testing.T) {
	f := testkit.NewFixture(t)
	svc := newService(f)
	schoolID := f.School("Greenfield")
	ctx := tenancy.WithSchool(context.Background(), schoolID)

	session, err := svc.CreateSession(ctx, domain.CreateSessionRequest{
		Name:      "2024/2025",
		StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
		IsCurrent: true,
	})
	require.NoError(t, err)

	_, err = svc.CreateTerm(ctx, domain.CreateTermRequest{
		SessionID: session.ID.String(),
		Name:      "First Term",
		StartDate: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)

	for i, name := range []string{"First Term", "Second Term"} {
		start := time.Date(2024, time.Month(9+4*i), 1, 0, 0, 0, 0, time.UTC)
		_, err := svc.CreateTerm(ctx, domain.CreateTermRequest{
			SessionID: session.ID.String(),
			Name:      name,
			StartDate: start,
			EndDate:   start.AddDate(0, 3, 0),
		})
		require.NoError(t, err)
	}
	terms, err := svc.ListTerms(ctx, session.ID.String())
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, "First Term", terms[0].Name)

	class, err := svc.CreateClass(ctx, domain.CreateClassRequest{Name: "JSS1"})
	require.NoError(t, err)
	studentID := f.Student(schoolID, "GF/010", "0")

	req := domain.EnrollRequest{StudentID: studentID.String(), ClassID: class.ID.String(), SessionID: session.ID.String()}
	enrollment, err := svc.Enroll(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentActive, enrollment.Status)

	_, err = svc.Enroll(ctx, req)
	assert.ErrorIs(t, err, domain.ErrAlreadyEnrolled)
}

func TestEnrollRejectsForeignStudent(t *testing.T) {
	f := testkit.NewFixture(t)
	svc := newService(f)
	schoolA := f.School("School A")
	schoolB := f.School("School B")
	sessionA := f.Session(schoolA, "2024/2025")
	classA := f.Class(schoolA, "JSS1")
	studentB := f.Student(schoolB, "B-001", "0")

	ctx := tenancy.WithSchool(context.Background(), schoolA)
	_, err := svc.Enroll(ctx, domain.EnrollRequest{
		StudentID: studentB.String(),
		ClassID:   classA.String(),
		SessionID: sessionA.String(),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPlatformSuspendAndActivate(t *testing.T) {
	f := testkit.NewFixture(t)
	svc := newService(f)
	school, err := svc.CreateSchool(context.Background(), domain.CreateSchoolRequest{Name: "Greenfield Academy"})
	require.NoError(t, err)
	target, err := tenancy.NewPlatformTarget(true, school.ID)
	require.NoError(t, err)

	suspended, err := svc.SetSubscriptionStatus(context.Background(), target, domain.SubscriptionSuspended)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionSuspended, suspended.SubscriptionStatus)
	assert.True(t, suspended.SubscriptionStatus.Blocked())

	active, err := svc.SetSubscriptionStatus(context.Background(), target, domain.SubscriptionActive)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionActive, active.SubscriptionStatus)
	assert.EqualValues(t, 1, f.Count("schools", "id = ? AND subscription_status = ?", school.ID, "active"))

	_, err = svc.SetSubscriptionStatus(context.Background(), target, domain.SubscriptionStatus("paused"))
	assert.ErrorIs(t, err, domain.ErrInvalidSubscription)

	missing, err := tenancy.NewPlatformTarget(true, f.Node.Generate())
	require.NoError(t, err)
	_, err = svc.SetSubscriptionStatus(context.Background(), missing, domain.SubscriptionSuspended)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
