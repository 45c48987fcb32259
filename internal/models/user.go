package models

import "time"

type UserRole string

const (
	UserRoleEmployee UserRole = "Employee"
	UserRoleAdmin    UserRole = "Admin"
	UserRoleManager  UserRole = "Manager"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleEmployee, UserRoleAdmin, UserRoleManager:
		return true
	}
	return false
}

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// PasswordHistoryEntry is one previously used password hash.
type PasswordHistoryEntry struct {
	Hash      string    `json:"hash"`
	ChangedAt time.Time `json:"changedAt"`
}

type User struct {
	ID               string
	Email            string
	FirstName        string
	LastName         string
	Gender           Gender
	MobileNumber     string
	City             string
	Role             UserRole
	PasswordHash     string
	PasswordHistory  []PasswordHistoryEntry
	ResetTokenHash   *string
	ResetTokenExpiry *time.Time
	LastLogin        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasLiveResetToken reports whether tokenHash matches an unexpired reset window.
func (u User) HasLiveResetToken(tokenHash string, now time.Time) bool {
	if u.ResetTokenHash == nil || u.ResetTokenExpiry == nil {
		return false
	}
	return *u.ResetTokenHash == tokenHash && u.ResetTokenExpiry.After(now)
}

// ProfilePatch carries the administrator-editable fields; nil means unchanged.
type ProfilePatch struct {
	Email        *string
	FirstName    *string
	LastName     *string
	Gender       *Gender
	MobileNumber *string
	City         *string
	Role         *UserRole
}

func (p ProfilePatch) Apply(u *User) {
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Gender != nil {
		u.Gender = *p.Gender
	}
	if p.MobileNumber != nil {
		u.MobileNumber = *p.MobileNumber
	}
	if p.City != nil {
		u.City = *p.City
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
}
