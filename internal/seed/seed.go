package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	academicdomain "github.com/smallbiznis/schoolpay/internal/academic/domain"
	authdomain "github.com/smallbiznis/schoolpay/internal/auth/domain"
	feedomain "github.com/smallbiznis/schoolpay/internal/fee/domain"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

var ErrInvalidFixture = errors.New("invalid_fixture")

// Fixture describes one school worth of development data.
type Fixture struct {
	School   SchoolFixture    `yaml:"school"`
	Admin    AdminFixture     `yaml:"admin"`
	Session  SessionFixture   `yaml:"session"`
	Classes  []ClassFixture   `yaml:"classes"`
	Students []StudentFixture `yaml:"students"`
	Fees     []FeeFixture     `yaml:"fees"`
}

type SchoolFixture struct {
	Name                string `yaml:"name"`
	ReferralDiscountPct string `yaml:"referral_discount_pct"`
}

type AdminFixture struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	FullName string `yaml:"full_name"`
}

type SessionFixture struct {
	Name  string        `yaml:"name"`
	Start string        `yaml:"start"`
	End   string        `yaml:"end"`
	Terms []TermFixture `yaml:"terms"`
}

type TermFixture struct {
	Name    string `yaml:"name"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
	Due     string `yaml:"due"`
	Current bool   `yaml:"current"`
}

type ClassFixture struct {
	Name  string `yaml:"name"`
	Level string `yaml:"level"`
}

type StudentFixture struct {
	AdmissionNumber string `yaml:"admission_number"`
	FirstName       string `yaml:"first_name"`
	LastName        string `yaml:"last_name"`
	Class           string `yaml:"class"`
	Scholarship     string `yaml:"scholarship_percent"`
	GuardianName    string `yaml:"guardian_name"`
	GuardianPhone   string `yaml:"guardian_phone"`
	GuardianEmail   string `yaml:"guardian_email"`
}

type FeeFixture struct {
	Class string        `yaml:"class"`
	Term  string        `yaml:"term"`
	Name  string        `yaml:"name"`
	Items []FeeItemYAML `yaml:"items"`
}

type FeeItemYAML struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Amount   string `yaml:"amount"`
	Optional bool   `yaml:"optional"`
}

// Result reports what a load created.
type Result struct {
	School   academicdomain.School
	AdminID  string
	Terms    map[string]academicdomain.Term
	Classes  map[string]academicdomain.Class
	Students int
	Fees     int
}

func Parse(raw []byte) (Fixture, error) {
	var out Fixture
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return Fixture{}, fmt.Errorf("%w: %v", ErrInvalidFixture, err)
	}
	if strings.TrimSpace(out.School.Name) == "" || strings.TrimSpace(out.Session.Name) == "" {
		return Fixture{}, fmt.Errorf("%w: school and session names are required", ErrInvalidFixture)
	}
	return out, nil
}

func ParseFile(path string) (Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, err
	}
	return Parse(raw)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Academic academicdomain.Service
	Fees     feedomain.Service
	Auth     authdomain.Service
}

// Loader writes fixtures through the domain services so seeded rows pass
// the same validation as API traffic.
type Loader struct {
	log      *zap.Logger
	academic academicdomain.Service
	fees     feedomain.Service
	auth     authdomain.Service
}

func NewLoader(p Params) *Loader {
	return &Loader{
		log:      p.Log.Named("seed"),
		academic: p.Academic,
		fees:     p.Fees,
		auth:     p.Auth,
	}
}

func (l *Loader) Load(ctx context.Context, f Fixture) (Result, error) {
	res := Result{
		Terms:   make(map[string]academicdomain.Term),
		Classes: make(map[string]academicdomain.Class),
	}

	referral, err := optionalDecimal(f.School.ReferralDiscountPct)
	if err != nil {
		return res, err
	}
	school, err := l.academic.CreateSchool(ctx, academicdomain.CreateSchoolRequest{
		Name:                f.School.Name,
		ReferralDiscountPct: referral,
	})
	if err != nil {
		return res, fmt.Errorf("create school: %w", err)
	}
	res.School = school
	ctx = tenancy.WithSchool(ctx, school.ID)

	if f.Admin.Email != "" {
		user, err := l.auth.CreateUser(ctx, authdomain.CreateUserRequest{
			SchoolID: &school.ID,
			Email:    f.Admin.Email,
			Password: f.Admin.Password,
			FullName: f.Admin.FullName,
			Role:     authdomain.RoleSchoolAdmin,
		})
		if err != nil {
			return res, fmt.Errorf("create admin: %w", err)
		}
		res.AdminID = user.ID.String()
	}

	session, err := l.loadSession(ctx, f.Session, res.Terms)
	if err != nil {
		return res, err
	}

	for _, c := range f.Classes {
		class, err := l.academic.CreateClass(ctx, academicdomain.CreateClassRequest{Name: c.Name, Level: c.Level})
		if err != nil {
			return res, fmt.Errorf("create class %s: %w", c.Name, err)
		}
		res.Classes[c.Name] = class
	}

	for _, s := range f.Students {
		if err := l.loadStudent(ctx, s, session, res.Classes); err != nil {
			return res, err
		}
		res.Students++
	}

	for _, fee := range f.Fees {
		if err := l.loadFee(ctx, fee, res.Terms, res.Classes); err != nil {
			return res, err
		}
		res.Fees++
	}

	l.log.Info("fixture loaded",
		zap.String("school_id", school.ID.String()),
		zap.String("slug", school.Slug),
		zap.Int("students", res.Students),
		zap.Int("fee_structures", res.Fees),
	)
	return res, nil
}

func (l *Loader) loadSession(ctx context.Context, f SessionFixture, terms map[string]academicdomain.Term) (academicdomain.Session, error) {
	start, err := parseDate(f.Start)
	if err != nil {
		return academicdomain.Session{}, err
	}
	end, err := parseDate(f.End)
	if err != nil {
		return academicdomain.Session{}, err
	}
	session, err := l.academic.CreateSession(ctx, academicdomain.CreateSessionRequest{
		Name:      f.Name,
		StartDate: start,
		EndDate:   end,
		IsCurrent: true,
	})
	if err != nil {
		return session, fmt.Errorf("create session: %w", err)
	}

	for _, t := range f.Terms {
		req := academicdomain.CreateTermRequest{
			SessionID: session.ID.String(),
			Name:      t.Name,
			IsCurrent: t.Current,
		}
		if req.StartDate, err = parseDate(t.Start); err != nil {
			return session, err
		}
		if req.EndDate, err = parseDate(t.End); err != nil {
			return session, err
		}
		if t.Due != "" {
			due, err := parseDate(t.Due)
			if err != nil {
				return session, err
			}
			req.DueDate = &due
		}
		term, err := l.academic.CreateTerm(ctx, req)
		if err != nil {
			return session, fmt.Errorf("create term %s: %w", t.Name, err)
		}
		terms[t.Name] = term
	}
	return session, nil
}

func (l *Loader) loadStudent(ctx context.Context, f StudentFixture, session academicdomain.Session, classes map[string]academicdomain.Class) error {
	scholarship, err := optionalDecimal(f.Scholarship)
	if err != nil {
		return err
	}
	student, err := l.academic.CreateStudent(ctx, academicdomain.CreateStudentRequest{
		AdmissionNumber:    f.AdmissionNumber,
		FirstName:          f.FirstName,
		LastName:           f.LastName,
		ScholarshipPercent: scholarship,
		GuardianName:       f.GuardianName,
		GuardianPhone:      f.GuardianPhone,
		GuardianEmail:      f.GuardianEmail,
	})
	if err != nil {
		return fmt.Errorf("create student %s: %w", f.AdmissionNumber, err)
	}
	if f.Class == "" {
		return nil
	}
	class, ok := classes[f.Class]
	if !ok {
		return fmt.Errorf("%w: student %s references unknown class %q", ErrInvalidFixture, f.AdmissionNumber, f.Class)
	}
	_, err = l.academic.Enroll(ctx, academicdomain.EnrollRequest{
		StudentID: student.ID.String(),
		ClassID:   class.ID.String(),
		SessionID: session.ID.String(),
	})
	if err != nil {
		return fmt.Errorf("enroll %s: %w", f.AdmissionNumber, err)
	}
	return nil
}

func (l *Loader) loadFee(ctx context.Context, f FeeFixture, terms map[string]academicdomain.Term, classes map[string]academicdomain.Class) error {
	class, ok := classes[f.Class]
	if !ok {
		return fmt.Errorf("%w: fee references unknown class %q", ErrInvalidFixture, f.Class)
	}
	term, ok := terms[f.Term]
	if !ok {
		return fmt.Errorf("%w: fee references unknown term %q", ErrInvalidFixture, f.Term)
	}

	items := make([]feedomain.LineItemInput, 0, len(f.Items))
	for _, it := range f.Items {
		amount, err := decimal.NewFromString(it.Amount)
		if err != nil {
			return fmt.Errorf("%w: item %s amount %q", ErrInvalidFixture, it.Name, it.Amount)
		}
		mandatory := !it.Optional
		items = append(items, feedomain.LineItemInput{
			Name:        it.Name,
			Category:    feedomain.Category(it.Category),
			Amount:      amount,
			IsMandatory: &mandatory,
		})
	}

	_, err := l.fees.Create(ctx, feedomain.CreateFeeStructureRequest{
		ClassID: class.ID.String(),
		TermID:  term.ID.String(),
		Name:    f.Name,
		Items:   items,
	})
	if err != nil {
		return fmt.Errorf("create fee structure %s/%s: %w", f.Class, f.Term, err)
	}
	return nil
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidFixture, value)
	}
	return t.UTC(), nil
}

func optionalDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: decimal %q", ErrInvalidFixture, value)
	}
	return d, nil
}
