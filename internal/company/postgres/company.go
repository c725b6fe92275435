package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/company"
	companyDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/company"
	"github.com/frahmantamala/expense-approval/internal/user"
)

type CompanyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

func (r *CompanyRepository) GetByID(ctx context.Context, id int64) (*company.Company, error) {
	var row companyDatamodel.Company
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("get company %d: %w", id, err)
	}
	return company.FromDataModel(&row), nil
}

func (r *CompanyRepository) Update(ctx context.Context, c *company.Company) error {
	res := r.db.WithContext(ctx).Model(&companyDatamodel.Company{}).
		Where("id = ?", c.ID).
		Updates(map[string]interface{}{"name": c.Name, "country": c.Country})
	if res.Error != nil {
		return fmt.Errorf("update company %d: %w", c.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return internal.ErrCompanyNotFound
	}
	return nil
}

func (r *CompanyRepository) CreateWithAdmin(ctx context.Context, c *company.Company, admin *user.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		companyRow := company.ToDataModel(c)
		companyRow.AdminUserID = nil
		if err := tx.Create(companyRow).Error; err != nil {
			return fmt.Errorf("create company: %w", err)
		}

		admin.CompanyID = companyRow.ID
		userRow := user.ToDataModel(admin)
		if err := tx.Create(userRow).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return internal.ErrEmailTaken
			}
			return fmt.Errorf("create admin user: %w", err)
		}

		if err := tx.Model(companyRow).Update("admin_user_id", userRow.ID).Error; err != nil {
			return fmt.Errorf("link company admin: %w", err)
		}
		companyRow.AdminUserID = &userRow.ID

		*c = *company.FromDataModel(companyRow)
		*admin = *user.FromDataModel(userRow)
		return nil
	})
}
