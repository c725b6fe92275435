package user

// CreateUserDTO is the admin request for adding a user to their company.
type CreateUserDTO struct {
	Name      string `json:"name" validate:"required,max=200"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	Role      string `json:"role" validate:"required,oneof=employee manager"`
	ManagerID *int64 `json:"manager_id,omitempty"`
}

// UpdateUserDTO carries optional changes. Nil fields are left alone.
type UpdateUserDTO struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=employee manager"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// AssignManagerDTO sets or clears (null) the manager link.
type AssignManagerDTO struct {
	ManagerID *int64 `json:"manager_id"`
}
