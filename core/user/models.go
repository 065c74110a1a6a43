package user

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/sumitkpand3y/log-book-api/core"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("user not found")
	ErrEmailExists = core.NewConflictError("a user with this email already exists")
)

// Role is fixed at creation; only the roster sync may rewrite it.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleTeacher Role = "TEACHER"
	RoleLearner Role = "LEARNER"
)

var AllRoles = []Role{RoleAdmin, RoleTeacher, RoleLearner}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleLearner:
		return true
	}
	return false
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash []byte    `json:"-"`
	Phone        string    `json:"phone,omitempty"`
	City         string    `json:"city,omitempty"`
	Country      string    `json:"country,omitempty"`
	Address      string    `json:"address,omitempty"`
	ExternalID   string    `json:"external_id,omitempty"`
	KYCVerified  bool      `json:"kyc_verified"`
	StudentID    string    `json:"student_id,omitempty"`
	LastLogin    time.Time `json:"last_login"` // UTC
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
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

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u *User) IsLearner() bool { return u.Role == RoleLearner }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Role            Role   `json:"role" validate:"required,userrole"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Phone           string `json:"phone" validate:"omitempty,max=20"`
	City            string `json:"city" validate:"omitempty,max=100"`
	Country         string `json:"country" validate:"omitempty,max=100"`
	Address         string `json:"address" validate:"omitempty,max=255"`
	StudentID       string `json:"student_id" validate:"omitempty,max=64"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkEmailUniqueness(nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string `json:"name"`
	Phone           string `json:"phone" validate:"omitempty,max=20"`
	City            string `json:"city" validate:"omitempty,max=100"`
	Country         string `json:"country" validate:"omitempty,max=100"`
	Address         string `json:"address" validate:"omitempty,max=255"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	return validate.Struct(uu)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Role        Role      `query:"role"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

type Repository interface {
	CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (User, error)
	GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (User, error)
	GetUserByExternalID(ctx context.Context, externalID string, exec ...core.DBExecutor) (User, error)
	// FilterUsers applies AND operation on available QueryFilter fields.
	// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
	FilterUsers(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
	UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	SetLastLogin(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error
}

// RegisterValidators registers the user-specific validation tags.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	registerValidators(validate, translator)
}
