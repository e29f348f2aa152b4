package school

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

type (
	Status   string
	PlanType string
	Role     string
)

// Statuses
const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// Plans
const (
	PlanBasic      PlanType = "BASIC"
	PlanPro        PlanType = "PRO"
	PlanEnterprise PlanType = "ENTERPRISE"
)

// Roles
const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

const (
	DefaultPlan         = PlanBasic
	DefaultMaxUsers     = 100
	MaxUsersLimit       = 10000
	DefaultPrimaryColor = "#3B82F6"
)

// Plan describes an entry of the plan catalogue.
type Plan struct {
	Name     string   `json:"name"`
	Value    PlanType `json:"value"`
	MaxUsers int      `json:"max_users"`
}

var Plans = []Plan{
	{Name: "Basic", Value: PlanBasic, MaxUsers: DefaultMaxUsers},
	{Name: "Pro", Value: PlanPro, MaxUsers: 1000},
	{Name: "Enterprise", Value: PlanEnterprise, MaxUsers: MaxUsersLimit},
}

// School is a tenant.
type School struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Subdomain    string    `json:"subdomain"`
	Description  string    `json:"description"`
	LogoURL      string    `json:"logo_url,omitempty"`
	PrimaryColor string    `json:"primary_color"`
	AdminUserID  string    `json:"admin_user_id"`
	Status       Status    `json:"status"`
	PlanType     PlanType  `json:"plan_type"`
	MaxUsers     int       `json:"max_users"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// Host returns the public host name of the school under rootDomain.
func (s School) Host(rootDomain string) string {
	return s.Subdomain + "." + rootDomain
}

// Membership links a user to a school with exactly one role.
type Membership struct {
	UserID    string    `json:"user_id"`
	SchoolID  string    `json:"school_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type Stats struct {
	UserCount  int `json:"user_count"`
	ClassCount int `json:"class_count"`
}

// Tenant is a school as seen by one of its members.
type Tenant struct {
	School
	Stats
	Role Role   `json:"role"`
	URL  string `json:"url"`
}

// NewSchool contains information needed to provision a new School.
type NewSchool struct {
	Name         string   `json:"name" validate:"required"`
	Subdomain    string   `json:"subdomain" validate:"required,min=3,subdomain"`
	Description  string   `json:"description"`
	LogoURL      string   `json:"logo_url" validate:"omitempty,url"`
	PrimaryColor string   `json:"primary_color" validate:"omitempty,hexcolor"`
	PlanType     PlanType `json:"plan_type" validate:"required,oneof=BASIC PRO ENTERPRISE"`
	MaxUsers     *int     `json:"max_users" validate:"required,min=1,max=10000"`
}

// NormalizeSubdomain lowercases s and drops every character other than a-z, 0-9 and '-'.
func NormalizeSubdomain(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, strings.ToLower(s))
}

// Clean trims the fields, normalizes the subdomain and applies the defaults.
func (ns *NewSchool) Clean() {
	ns.Name = core.CleanString(ns.Name)
	ns.Subdomain = NormalizeSubdomain(ns.Subdomain)
	ns.Description = core.CleanString(ns.Description)
	ns.LogoURL = core.CleanString(ns.LogoURL)
	ns.PrimaryColor = core.CleanString(ns.PrimaryColor)
	if ns.PrimaryColor == "" {
		ns.PrimaryColor = DefaultPrimaryColor
	}
	ns.PlanType = PlanType(strings.ToUpper(core.CleanString(string(ns.PlanType))))
	if ns.PlanType == "" {
		ns.PlanType = DefaultPlan
	}
	if ns.MaxUsers == nil {
		maxUsers := DefaultMaxUsers
		ns.MaxUsers = &maxUsers
	}
}

func (ns *NewSchool) Validate(validate *validator.Validate) error {
	ns.Clean()
	return validate.Struct(ns)
}

type QueryFilter struct {
	Search string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
