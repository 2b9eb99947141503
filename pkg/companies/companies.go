// Package companies manages the company hierarchy and resolves which
// companies a user may see.
package companies

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"finchat/models"
	"finchat/pkg/access"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("company not found")
	ErrCycle         = errors.New("parent link would create a cycle")
	ErrDuplicateName = errors.New("company name already exists")
	ErrInvalid       = errors.New("invalid company")
)

var currencyRE = regexp.MustCompile(`^[A-Z]{3}$`)

// IndexDropper forgets everything derived from a company's facts.
type IndexDropper interface {
	Drop(companyID uint) error
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	index IndexDropper
}

func New(db *gorm.DB, log *zap.Logger, index IndexDropper) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, log: log.Named("companies"), index: index}
}

type Input struct {
	Name            string `json:"name"`
	Currency        string `json:"currency"`
	ParentCompanyID *uint  `json:"parent_company_id"`
}

func (in *Input) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalid)
	}
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = "USD"
	}
	if !currencyRE.MatchString(in.Currency) {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalid)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in Input) (*models.Company, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if in.ParentCompanyID != nil {
		if _, err := get(db, *in.ParentCompanyID); err != nil {
			return nil, fmt.Errorf("parent: %w", err)
		}
	}
	var n int64
	db.Model(&models.Company{}).Where("name = ?", in.Name).Count(&n)
	if n > 0 {
		return nil, ErrDuplicateName
	}
	c := models.Company{Name: in.Name, Currency: in.Currency, ParentCompanyID: in.ParentCompanyID}
	if err := db.Omit("Parent").Create(&c).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("create company: %w", err)
	}
	s.log.Info("company created", zap.Uint("company_id", c.ID), zap.String("name", c.Name))
	return &c, nil
}

// Update replaces name, currency and parent. A company cannot become its own
// ancestor.
func (s *Service) Update(ctx context.Context, id uint, in Input) (*models.Company, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	var out *models.Company
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := get(tx, id)
		if err != nil {
			return err
		}
		if in.ParentCompanyID != nil {
			if err := checkParent(tx, id, *in.ParentCompanyID); err != nil {
				return err
			}
		}
		var n int64
		tx.Model(&models.Company{}).Where("name = ? AND id <> ?", in.Name, id).Count(&n)
		if n > 0 {
			return ErrDuplicateName
		}
		err = tx.Model(c).Select("Name", "Currency", "ParentCompanyID").Updates(models.Company{
			Name:            in.Name,
			Currency:        in.Currency,
			ParentCompanyID: in.ParentCompanyID,
		}).Error
		if err != nil {
			return fmt.Errorf("update company: %w", err)
		}
		c.Name, c.Currency, c.ParentCompanyID = in.Name, in.Currency, in.ParentCompanyID
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// checkParent walks up from parentID; reaching id means a cycle.
func checkParent(tx *gorm.DB, id, parentID uint) error {
	if parentID == id {
		return ErrCycle
	}
	seen := map[uint]bool{id: true}
	cur := parentID
	for {
		if seen[cur] {
			return ErrCycle
		}
		seen[cur] = true
		p, err := get(tx, cur)
		if err != nil {
			return fmt.Errorf("parent: %w", err)
		}
		if p.ParentCompanyID == nil {
			return nil
		}
		cur = *p.ParentCompanyID
	}
}

// Delete removes the company with its facts and upload batches in one
// transaction. Children lose their parent and users lose their assignment.
// The company's retrieval index is dropped afterwards.
func (s *Service) Delete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := get(tx, id); err != nil {
			return err
		}
		if err := tx.Where("company_id = ?", id).Delete(&models.FinancialFact{}).Error; err != nil {
			return fmt.Errorf("delete facts: %w", err)
		}
		if err := tx.Where("company_id = ?", id).Delete(&models.UploadBatch{}).Error; err != nil {
			return fmt.Errorf("delete batches: %w", err)
		}
		if err := tx.Where("company_id = ?", id).Delete(&models.ReportedYear{}).Error; err != nil {
			return fmt.Errorf("delete years: %w", err)
		}
		if err := tx.Model(&models.Company{}).Where("parent_company_id = ?", id).Update("parent_company_id", nil).Error; err != nil {
			return fmt.Errorf("detach children: %w", err)
		}
		if err := tx.Model(&models.User{}).Where("company_id = ?", id).Update("company_id", nil).Error; err != nil {
			return fmt.Errorf("detach users: %w", err)
		}
		if err := tx.Delete(&models.Company{}, id).Error; err != nil {
			return fmt.Errorf("delete company: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.Drop(id); err != nil {
			s.log.Warn("drop retrieval index failed", zap.Uint("company_id", id), zap.Error(err))
		}
	}
	s.log.Info("company deleted", zap.Uint("company_id", id))
	return nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Company, error) {
	return get(s.db.WithContext(ctx), id)
}

func get(db *gorm.DB, id uint) (*models.Company, error) {
	var c models.Company
	if err := db.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// List returns the companies visible to p, ordered by id.
func (s *Service) List(ctx context.Context, p access.Principal) ([]models.Company, error) {
	q := s.db.WithContext(ctx).Model(&models.Company{}).Order("id asc")
	if !p.AllCompanies {
		if len(p.CompanyIDs) == 0 {
			return []models.Company{}, nil
		}
		q = q.Where("id IN ?", p.CompanyIDs)
	}
	var out []models.Company
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	return out, nil
}

// AuthorizedIDs resolves the scope of a role: admin sees everything, ceo its
// own company plus direct children, analyst its own company only.
func (s *Service) AuthorizedIDs(ctx context.Context, role string, companyID *uint) (ids []uint, all bool, err error) {
	switch role {
	case models.RoleAdmin:
		return nil, true, nil
	case models.RoleCEO:
		if companyID == nil {
			return nil, false, nil
		}
		ids = []uint{*companyID}
		var children []uint
		err := s.db.WithContext(ctx).Model(&models.Company{}).
			Where("parent_company_id = ?", *companyID).
			Order("id asc").
			Pluck("id", &children).Error
		if err != nil {
			return nil, false, fmt.Errorf("load subsidiaries: %w", err)
		}
		return append(ids, children...), false, nil
	default:
		if companyID == nil {
			return nil, false, nil
		}
		return []uint{*companyID}, false, nil
	}
}

// Principal builds the access scope for a user whose Role is loaded.
func (s *Service) Principal(ctx context.Context, u models.User) (access.Principal, error) {
	p := access.Principal{UserID: u.ID, Username: u.Username, Role: u.Role.Name, CompanyID: u.CompanyID}
	ids, all, err := s.AuthorizedIDs(ctx, p.Role, u.CompanyID)
	if err != nil {
		return access.Principal{}, err
	}
	p.CompanyIDs, p.AllCompanies = ids, all
	return p, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint")
}
