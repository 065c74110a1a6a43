package user

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/sumitkpand3y/log-book-api/core"
)

type Service struct {
	repo   Repository
	logger core.Logger
}

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (svc *Service) checkEmailUniqueness(email string) error {
	_, err := svc.repo.GetUserByEmail(context.Background(), email)
	if err == nil {
		return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	}
	if errors.Cause(err) == ErrNotFound {
		return nil
	}
	return errors.Wrap(err, "checking email uniqueness")
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Email:     nu.Email,
		Role:      nu.Role,
		Phone:     nu.Phone,
		City:      nu.City,
		Country:   nu.Country,
		Address:   nu.Address,
		StudentID: nu.StudentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.FilterUsers(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.Name = uu.Name
	if uu.Phone != "" {
		usr.Phone = uu.Phone
	}
	if uu.City != "" {
		usr.City = uu.City
	}
	if uu.Country != "" {
		usr.Country = uu.Country
	}
	if uu.Address != "" {
		usr.Address = uu.Address
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	now := time.Now().UTC()
	if err := svc.repo.SetLastLogin(ctx, usr.ID, now); err != nil {
		return usr, errors.Wrap(err, "setting last login")
	}
	usr.LastLogin = now
	return usr, nil
}

// GetOrCreate finds a user by external id or email, creating an unset-password
// account when absent. Used by the roster sync; repeated calls with the same
// upstream record are no-ops.
func (svc *Service) GetOrCreate(ctx context.Context, email, name string, role Role, externalID string) (User, error) {
	email = core.CleanString(email, true /* lower */)

	if externalID != "" {
		if usr, err := svc.repo.GetUserByExternalID(ctx, externalID); err == nil {
			return usr, nil
		} else if errors.Cause(err) != ErrNotFound {
			return User{}, errors.Wrap(err, "finding user by external id")
		}
	}
	if usr, err := svc.repo.GetUserByEmail(ctx, email); err == nil {
		if externalID != "" && usr.ExternalID == "" {
			usr.ExternalID = externalID
			usr.UpdatedAt = time.Now().UTC()
			return svc.repo.UpdateUser(ctx, usr)
		}
		return usr, nil
	} else if errors.Cause(err) != ErrNotFound {
		return User{}, errors.Wrap(err, "finding user by email")
	}

	now := time.Now().UTC()
	usr := User{
		Name:       name,
		Email:      email,
		Role:       role,
		ExternalID: externalID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return svc.repo.CreateUser(ctx, usr)
}
