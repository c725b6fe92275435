package company

import (
	"time"

	companyDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/company"
)

type Company struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Country      string    `json:"country"`
	BaseCurrency string    `json:"base_currency"`
	AdminUserID  *int64    `json:"admin_user_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UpdateCompanyDTO changes descriptive fields only. The base currency is fixed
// at registration because stored base amounts depend on it.
type UpdateCompanyDTO struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Country *string `json:"country,omitempty" validate:"omitempty,min=2,max=100"`
}

func ToDataModel(c *Company) *companyDatamodel.Company {
	return &companyDatamodel.Company{
		ID:           c.ID,
		Name:         c.Name,
		Country:      c.Country,
		BaseCurrency: c.BaseCurrency,
		AdminUserID:  c.AdminUserID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func FromDataModel(c *companyDatamodel.Company) *Company {
	return &Company{
		ID:           c.ID,
		Name:         c.Name,
		Country:      c.Country,
		BaseCurrency: c.BaseCurrency,
		AdminUserID:  c.AdminUserID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
