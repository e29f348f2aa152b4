package user

import (
	"strings"
	"time"

	"github.com/trezcool/shule/core"
)

// User mirrors an identity-provider account inside the tenant store.
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email,omitempty"`
	FirstName  string    `json:"first_name,omitempty"`
	LastName   string    `json:"last_name,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// DisplayName falls back to the email when no name is known.
func (u User) DisplayName() string {
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Email
}

// Person is what loggers attach to error reports.
func (u User) Person() core.Person {
	return core.Person{ID: u.ExternalID, Username: u.FullName(), Email: u.Email}
}

// Profile holds the optional fields copied from the identity provider on first sight.
type Profile struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ImageURL  string `json:"image_url"`
}

func (p *Profile) Clean() {
	p.Email = core.CleanString(p.Email, true /* lower */)
	p.FirstName = core.CleanString(p.FirstName)
	p.LastName = core.CleanString(p.LastName)
	p.ImageURL = core.CleanString(p.ImageURL)
}

// IsComplete reports whether every profile field is set.
func (p Profile) IsComplete() bool {
	return p.Email != "" && p.FirstName != "" && p.LastName != "" && p.ImageURL != ""
}

// Merge fills the empty fields of p from other.
func (p Profile) Merge(other Profile) Profile {
	if p.Email == "" {
		p.Email = other.Email
	}
	if p.FirstName == "" {
		p.FirstName = other.FirstName
	}
	if p.LastName == "" {
		p.LastName = other.LastName
	}
	if p.ImageURL == "" {
		p.ImageURL = other.ImageURL
	}
	return p
}
