package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

// Roles
const (
	// RoleViewer grants read access to partners, partnerships and agreements.
	RoleViewer = "viewer"

	// ADRIAcronym is the acronym of the entity whose managers have full rights.
	ADRIAcronym = "ADRI"
)

var (
	AllRoles = []string{RoleViewer}

	Roles = []Role{
		{Name: "Partnership viewer", Value: RoleViewer},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Manager is a partnership management role on a UCL entity, scoped to some partnership types.
type Manager struct {
	ID            int      `json:"id"`
	EntityID      int      `json:"entity_id"`
	EntityAcronym string   `json:"entity_acronym"`
	WithChild     bool     `json:"with_child"`
	Scopes        []string `json:"scopes"`
}

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Phone        string    `json:"phone"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	Managers     []Manager `json:"managers"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// FullName returns "LAST_NAME, First name", or the username when no name is set.
func (u User) FullName() string {
	last := strings.ToUpper(u.LastName)
	switch {
	case last != "" && u.FirstName != "":
		return last + ", " + u.FirstName
	case last != "":
		return last
	case u.FirstName != "":
		return u.FirstName
	}
	return u.Username
}

func (u User) HasRole(role string) bool {
	return core.ContainsString(u.Roles, role)
}

// IsADRI reports whether the user manages the ADRI entity.
func (u User) IsADRI() bool {
	for _, m := range u.Managers {
		if m.EntityAcronym == ADRIAcronym {
			return true
		}
	}
	return false
}

// IsFacultyManager reports whether the user has any manager role.
func (u User) IsFacultyManager() bool {
	return len(u.Managers) > 0
}

func (u User) IsViewer() bool {
	return u.HasRole(RoleViewer)
}

// CanAccess reports whether the user may browse partners, partnerships and agreements.
func (u User) CanAccess() bool {
	return u.IsFacultyManager() || u.IsViewer()
}

// HasScope reports whether one of the manager rows grants the partnership type.
func (u User) HasScope(partnershipType string) bool {
	for _, m := range u.Managers {
		if core.ContainsString(m.Scopes, partnershipType) {
			return true
		}
	}
	return false
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name" validate:"required"`
	Phone           string   `json:"phone"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	return validate.Struct(nu)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

type GetFilter struct {
	ID              int
	Username        string
	Email           string
	UsernameOrEmail string
}

type QueryFilter struct {
	Search   string `query:"q"`
	IDs      []int  `query:"id"`
	IsActive *bool  `query:"is_active"`
	Limit    uint64 `query:"limit"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// Match applies the filter to a single user.
// Search does a case-insensitive match on one of Username, Email, FirstName or LastName.
func (qf *QueryFilter) Match(usr User) bool {
	if qf == nil {
		return true
	}
	if qf.Search != "" {
		s := strings.ToLower(qf.Search)
		if !(strings.Contains(strings.ToLower(usr.Username), s) ||
			strings.Contains(strings.ToLower(usr.Email), s) ||
			strings.Contains(strings.ToLower(usr.FirstName), s) ||
			strings.Contains(strings.ToLower(usr.LastName), s)) {
			return false
		}
	}
	if len(qf.IDs) > 0 && !core.ContainsInt(qf.IDs, usr.ID) {
		return false
	}
	if qf.IsActive != nil && usr.IsActive != *qf.IsActive {
		return false
	}
	return true
}
