package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	academicdomain "github.com/smallbiznis/schoolpay/internal/academic/domain"
	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/fee/domain"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/smallbiznis/schoolpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	AcademicRepo academicdomain.Repository
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	academicRepo academicdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("fee.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		academicRepo: p.AcademicRepo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateFeeStructureRequest) (domain.FeeStructure, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return domain.FeeStructure{}, err
	}
	classID, err := parseID(req.ClassID)
	if err != nil {
		return domain.FeeStructure{}, err
	}
	termID, err := parseID(req.TermID)
	if err != nil {
		return domain.FeeStructure{}, err
	}
	if len(req.Items) == 0 {
		return domain.FeeStructure{}, domain.ErrEmptyStructure
	}

	class, err := s.academicRepo.FindClass(ctx, s.db, scope, classID)
	if err != nil {
		return domain.FeeStructure{}, err
	}
	term, err := s.academicRepo.FindTerm(ctx, s.db, scope, termID)
	if err != nil {
		return domain.FeeStructure{}, err
	}
	if class == nil || term == nil {
		return domain.FeeStructure{}, domain.ErrNotFound
	}

	now := s.clock.Now()
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = class.Name + " " + term.Name
	}
	structure := domain.FeeStructure{
		ID:        s.genID.Generate(),
		ClassID:   class.ID,
		TermID:    term.ID,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		Items:     make([]domain.FeeLineItem, 0, len(req.Items)),
	}
	for i, in := range req.Items {
		item, err := s.lineItem(in, i)
		if err != nil {
			return domain.FeeStructure{}, err
		}
		structure.Items = append(structure.Items, item)
	}

	err = scope.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		existing, err := s.repo.FindActive(ctx, tx, scope, class.ID, term.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrFeeStructureExists
		}
		return s.repo.InsertStructure(ctx, tx, scope, &structure)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.FeeStructure{}, domain.ErrFeeStructureExists
		}
		return domain.FeeStructure{}, err
	}

	s.log.Info("fee structure created",
		zap.String("fee_structure_id", structure.ID.String()),
		zap.String("total", domain.Total(structure.Items).StringFixed(2)),
	)
	return structure, nil
}

func (s *Service) lineItem(in domain.LineItemInput, order int) (domain.FeeLineItem, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.FeeLineItem{}, domain.ErrEmptyStructure
	}
	if in.Amount.IsNegative() || !in.Amount.Equal(in.Amount.Round(2)) {
		return domain.FeeLineItem{}, domain.ErrInvalidAmount
	}
	category := in.Category
	if category == "" {
		category = domain.CategoryTuition
	}
	if !category.Valid() {
		return domain.FeeLineItem{}, domain.ErrInvalidCategory
	}
	mandatory := true
	if in.IsMandatory != nil {
		mandatory = *in.IsMandatory
	}
	return domain.FeeLineItem{
		ID:          s.genID.Generate(),
		Name:        name,
		Category:    category,
		Amount:      in.Amount.Round(2),
		IsMandatory: mandatory,
		SortOrder:   order,
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.FeeStructure, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return domain.FeeStructure{}, err
	}
	structureID, err := parseID(id)
	if err != nil {
		return domain.FeeStructure{}, err
	}
	item, err := s.repo.FindStructure(ctx, s.db, scope, structureID)
	if err != nil {
		return domain.FeeStructure{}, err
	}
	if item == nil {
		return domain.FeeStructure{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, termID string) ([]domain.FeeStructure, error) {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	var id snowflake.ID
	if strings.TrimSpace(termID) != "" {
		if id, err = parseID(termID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListStructures(ctx, s.db, scope, id)
}

// Deactivate retires a structure so a replacement can be created. Invoices
// already generated keep their own line-item snapshot.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	scope, err := tenancy.FromContext(ctx)
	if err != nil {
		return err
	}
	structureID, err := parseID(id)
	if err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, s.db, scope, structureID, s.clock.Now()); err != nil {
		if errors.Is(err, tenancy.ErrNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
