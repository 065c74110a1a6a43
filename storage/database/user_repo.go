package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/user"
)

var userUniqueConstraints = map[string]error{
	"users_email_key":       user.ErrEmailExists,
	"users_external_id_key": core.NewConflictError("a user with this external id already exists"),
}

const userColumns = `id, email, name, role, password_hash, phone, city, country, address,
external_id, kyc_verified, student_id, last_login, created_at, updated_at`

type userRow struct {
	ID           string      `db:"id"`
	Email        string      `db:"email"`
	Name         string      `db:"name"`
	Role         string      `db:"role"`
	PasswordHash []byte      `db:"password_hash"`
	Phone        string      `db:"phone"`
	City         string      `db:"city"`
	Country      string      `db:"country"`
	Address      string      `db:"address"`
	ExternalID   null.String `db:"external_id"`
	KYCVerified  bool        `db:"kyc_verified"`
	StudentID    string      `db:"student_id"`
	LastLogin    null.Time   `db:"last_login"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (row userRow) toUser() user.User {
	return user.User{
		ID:           row.ID,
		Email:        row.Email,
		Name:         row.Name,
		Role:         user.Role(row.Role),
		PasswordHash: row.PasswordHash,
		Phone:        row.Phone,
		City:         row.City,
		Country:      row.Country,
		Address:      row.Address,
		ExternalID:   row.ExternalID.String,
		KYCVerified:  row.KYCVerified,
		StudentID:    row.StudentID,
		LastLogin:    row.LastLogin.Time,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

type UserRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*UserRepository)(nil)

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (repo *UserRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	query := fmt.Sprintf(`INSERT INTO users (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`, userColumns)

	_, err := executor(repo.db, exec).ExecContext(ctx, query,
		usr.ID, usr.Email, usr.Name, string(usr.Role), usr.PasswordHash,
		usr.Phone, usr.City, usr.Country, usr.Address,
		null.NewString(usr.ExternalID, usr.ExternalID != ""),
		usr.KYCVerified, usr.StudentID,
		null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()),
		usr.CreatedAt, usr.UpdatedAt,
	)
	if err != nil {
		return user.User{}, errors.Wrap(trapUniqueErr(err, userUniqueConstraints), "creating user")
	}
	return usr, nil
}

func (repo *UserRepository) GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getUser(ctx, "id = $1", id, exec)
}

func (repo *UserRepository) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getUser(ctx, "email = $1", email, exec)
}

func (repo *UserRepository) GetUserByExternalID(ctx context.Context, externalID string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getUser(ctx, "external_id = $1", externalID, exec)
}

func (repo *UserRepository) getUser(ctx context.Context, cond string, arg interface{}, exec []core.DBExecutor) (user.User, error) {
	var row userRow
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s`, userColumns, cond)
	if err := executor(repo.db, exec).GetContext(ctx, &row, query, arg); err != nil {
		return user.User{}, errors.Wrap(trapNoRowsErr(err, user.ErrNotFound), "getting user")
	}
	return row.toUser(), nil
}

func (repo *UserRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	where := []string{"TRUE"}
	var args []interface{}

	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", len(args), len(args)))
	}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if !filter.CreatedFrom.IsZero() {
		args = append(args, filter.CreatedFrom)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.CreatedTo.IsZero() {
		args = append(args, filter.CreatedTo)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY %s`,
		userColumns, strings.Join(where, " AND "), orderBy(ordering, "created_at DESC"))

	var rows []userRow
	if err := executor(repo.db, exec).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	users := make([]user.User, len(rows))
	for i, row := range rows {
		users[i] = row.toUser()
	}
	return users, nil
}

func (repo *UserRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	query := `UPDATE users
SET name = $2, role = $3, password_hash = $4, phone = $5, city = $6, country = $7,
    address = $8, external_id = $9, kyc_verified = $10, student_id = $11, updated_at = $12
WHERE id = $1`

	res, err := executor(repo.db, exec).ExecContext(ctx, query,
		usr.ID, usr.Name, string(usr.Role), usr.PasswordHash,
		usr.Phone, usr.City, usr.Country, usr.Address,
		null.NewString(usr.ExternalID, usr.ExternalID != ""),
		usr.KYCVerified, usr.StudentID, usr.UpdatedAt,
	)
	if err != nil {
		return user.User{}, errors.Wrap(trapUniqueErr(err, userUniqueConstraints), "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *UserRepository) SetLastLogin(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error {
	res, err := executor(repo.db, exec).ExecContext(ctx,
		`UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return errors.Wrap(err, "setting last login")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}

// orderBy renders an ORDER BY clause from the requested ordering, falling back
// to the given default. Field names come from service code, never user input.
func orderBy(ordering []core.DBOrdering, fallback string) string {
	if len(ordering) == 0 {
		return fallback
	}
	parts := make([]string, len(ordering))
	for i, ord := range ordering {
		parts[i] = ord.String()
	}
	return strings.Join(parts, ", ")
}
