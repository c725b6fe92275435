package auth

import "strings"

type RegisterDTO struct {
	Name        string `json:"name" validate:"required,max=200"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	CompanyName string `json:"company_name,omitempty" validate:"omitempty,max=200"`
	Country     string `json:"country" validate:"required,max=100"`
}

func (d *RegisterDTO) normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.TrimSpace(d.Email)
	d.CompanyName = strings.TrimSpace(d.CompanyName)
	d.Country = strings.TrimSpace(d.Country)
}

type LoginDTO struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (d *LoginDTO) normalize() {
	d.Email = strings.TrimSpace(d.Email)
}

type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}
