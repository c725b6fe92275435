package company

import "time"

type Company struct {
	ID           int64     `gorm:"primaryKey"`
	Name         string    `gorm:"column:name;not null"`
	Country      string    `gorm:"column:country;not null"`
	BaseCurrency string    `gorm:"column:base_currency;size:3;not null"`
	AdminUserID  *int64    `gorm:"column:admin_user_id"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Company) TableName() string {
	return "companies"
}
