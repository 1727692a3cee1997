package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the position a user holds inside the platform
type Role string

const (
	RoleEmployee   Role = "Employee"
	RoleAdmin      Role = "Admin"
	RoleSuperAdmin Role = "SuperAdmin"
)

// Permissions an Admin can hold. Employees and SuperAdmins carry an empty set.
const (
	PermissionInviteEmployees          = "InviteEmployees"
	PermissionManageBillingInformation = "ManageBillingInformation"
	PermissionSetPermissionsForOthers  = "SetPermissionsForOthers"
)

// AllAdminPermissions is granted to the admin who registers a company.
var AllAdminPermissions = StringList{
	PermissionInviteEmployees,
	PermissionManageBillingInformation,
	PermissionSetPermissionsForOthers,
}

// User represents a platform user. Rows are created either by direct signup
// (SuperAdmin) or as placeholder accounts by the invitation pipeline
// (email + role, isEnrolled=false) and completed later by the invitee.
type User struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	Issuer          *string    `json:"issuer,omitempty" gorm:"uniqueIndex"`
	Email           string     `json:"email" gorm:"uniqueIndex;not null"`
	Firstname       string     `json:"firstname"`
	Lastname        string     `json:"lastname"`
	Username        string     `json:"username"`
	Avatar          *string    `json:"avatar,omitempty"`
	Phone           *string    `json:"phone,omitempty"`
	RecoveringEmail *string    `json:"recovering_email,omitempty"`
	Country         *string    `json:"country,omitempty"`
	DateOfBirth     *time.Time `json:"date_of_birth,omitempty"`
	StartOfWork     *time.Time `json:"start_of_work,omitempty"`

	Role         Role       `json:"role" gorm:"type:varchar(20);not null;default:'Employee'"`
	Permissions  StringList `json:"permissions" gorm:"type:text"`
	IsEnrolled   bool       `json:"is_enrolled" gorm:"default:false"`
	IsFired      bool       `json:"is_fired" gorm:"default:false"`
	FiringReason *string    `json:"firing_reason,omitempty"`

	Kudos      int        `json:"kudos" gorm:"default:0"`
	Xpub       *string    `json:"xpub,omitempty"`
	Addresses  StringList `json:"addresses" gorm:"type:text"`
	CustomerID *string    `json:"customer_id,omitempty"`

	CompanyID *uuid.UUID `json:"company_id,omitempty" gorm:"type:uuid;index"`
	InviterID *uuid.UUID `json:"inviter_id,omitempty" gorm:"type:uuid"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Company *Company `json:"company,omitempty" gorm:"foreignKey:CompanyID"`
	Cards   []Card   `json:"cards,omitempty" gorm:"foreignKey:UserID"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// HasPermission reports whether the user's permission set contains perm.
// Only meaningful for Admins.
func (u *User) HasPermission(perm string) bool {
	return u.Permissions.Contains(perm)
}

// IsActive reports whether the user may act on guarded routes. SuperAdmins
// are always active; everyone else must be enrolled and not fired.
func (u *User) IsActive() bool {
	if u.Role == RoleSuperAdmin {
		return true
	}
	return u.IsEnrolled && !u.IsFired
}
