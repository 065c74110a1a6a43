package user_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/user"
	"github.com/sumitkpand3y/log-book-api/services/logger"
	"github.com/sumitkpand3y/log-book-api/storage/inmem"
)

func newValidator(t *testing.T) *validator.Validate {
	t.Helper()
	validate, trans := core.NewValidator()
	user.RegisterValidators(validate, trans)
	return validate
}

func validNewUser() user.NewUser {
	return user.NewUser{
		Name:            "Amina Diallo",
		Email:           "amina@example.test",
		Role:            user.RoleLearner,
		Password:        "Vg7#plainspoken",
		PasswordConfirm: "Vg7#plainspoken",
	}
}

func failedTags(t *testing.T, err error) []string {
	t.Helper()
	var vErrs validator.ValidationErrors
	require.ErrorAs(t, err, &vErrs)
	tags := make([]string, len(vErrs))
	for i, fe := range vErrs {
		tags[i] = fe.Tag()
	}
	return tags
}

func TestNewUserValidate(t *testing.T) {
	validate := newValidator(t)
	svc := user.NewService(inmem.NewUserRepository(), logger.NewStdLogger(false))

	tests := []struct {
		name    string
		mutate  func(nu *user.NewUser)
		wantTag string
	}{
		{name: "ok"},
		{
			name: "password too short",
			mutate: func(nu *user.NewUser) {
				nu.Password = "Vg7#pla"
				nu.PasswordConfirm = nu.Password
			},
			wantTag: "pwdminlen",
		},
		{
			name: "password with whitespace",
			mutate: func(nu *user.NewUser) {
				nu.Password = "Vg7# plainspoken"
				nu.PasswordConfirm = nu.Password
			},
			wantTag: "pwdnospace",
		},
		{
			name: "password all numeric",
			mutate: func(nu *user.NewUser) {
				nu.Password = "4815162342"
				nu.PasswordConfirm = nu.Password
			},
			wantTag: "pwdnotallnum",
		},
		{
			name: "password missing uppercase",
			mutate: func(nu *user.NewUser) {
				nu.Password = "vg7#plainspoken"
				nu.PasswordConfirm = nu.Password
			},
			wantTag: "pwdcplx",
		},
		{
			name: "password missing special character",
			mutate: func(nu *user.NewUser) {
				nu.Password = "Vg7plainspoken"
				nu.PasswordConfirm = nu.Password
			},
			wantTag: "pwdcplx",
		},
		{
			name: "password similar to name",
			mutate: func(nu *user.NewUser) {
				nu.Password = "Amina.Diallo1"
				nu.PasswordConfirm = nu.Password
			},
			wantTag: "pwdtoosim",
		},
		{
			name:    "password confirmation mismatch",
			mutate:  func(nu *user.NewUser) { nu.PasswordConfirm = "Vg7#plainsp0ken" },
			wantTag: "eqfield",
		},
		{
			name:    "unknown role",
			mutate:  func(nu *user.NewUser) { nu.Role = user.Role("SUPERVISOR") },
			wantTag: "userrole",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := validNewUser()
			if tt.mutate != nil {
				tt.mutate(&nu)
			}
			err := nu.Validate(validate, svc)
			if tt.wantTag == "" {
				require.NoError(t, err)
				return
			}
			assert.Contains(t, failedTags(t, err), tt.wantTag)
		})
	}
}

func TestNewUserValidateEmailTaken(t *testing.T) {
	validate := newValidator(t)
	repo := inmem.NewUserRepository()
	svc := user.NewService(repo, logger.NewStdLogger(false))

	_, err := repo.CreateUser(context.Background(), user.User{Email: "amina@example.test"})
	require.NoError(t, err)

	nu := validNewUser()
	err = nu.Validate(validate, svc)

	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Fields, 1)
	assert.Equal(t, "email", vErr.Fields[0].Field)
}

func TestUpdateUserValidate(t *testing.T) {
	validate := newValidator(t)
	orig := user.User{Name: "Amina Diallo"}

	t.Run("password optional", func(t *testing.T) {
		uu := user.UpdateUser{Phone: "+221 77 000 0000"}
		require.NoError(t, uu.Validate(orig, validate))
		assert.Equal(t, orig.Name, uu.Name)
	})

	t.Run("provided password still checked", func(t *testing.T) {
		uu := user.UpdateUser{Password: "weak", PasswordConfirm: "weak"}
		err := uu.Validate(orig, validate)
		assert.Contains(t, failedTags(t, err), "pwdminlen")
	})

	t.Run("confirmation required with password", func(t *testing.T) {
		uu := user.UpdateUser{Password: "Vg7#plainspoken"}
		err := uu.Validate(orig, validate)
		assert.Contains(t, failedTags(t, err), "required_with")
	})
}
