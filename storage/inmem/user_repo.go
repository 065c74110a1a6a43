package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/user"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[string]user.User
}

var _ user.Repository = (*UserRepository)(nil)

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]user.User)}
}

func (repo *UserRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, existing := range repo.users {
		if strings.EqualFold(existing.Email, usr.Email) {
			return user.User{}, user.ErrEmailExists
		}
	}
	if usr.ID == "" {
		usr.ID = newID()
	}
	repo.users[usr.ID] = usr
	return usr, nil
}

func (repo *UserRepository) GetUserByID(_ context.Context, id string, _ ...core.DBExecutor) (user.User, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	usr, ok := repo.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *UserRepository) GetUserByEmail(_ context.Context, email string, _ ...core.DBExecutor) (user.User, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	for _, usr := range repo.users {
		if strings.EqualFold(usr.Email, email) {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *UserRepository) GetUserByExternalID(_ context.Context, externalID string, _ ...core.DBExecutor) (user.User, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	for _, usr := range repo.users {
		if usr.ExternalID != "" && usr.ExternalID == externalID {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *UserRepository) FilterUsers(_ context.Context, filter user.QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]user.User, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	var users []user.User
	for _, usr := range repo.users {
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(usr.Name), s) && !strings.Contains(strings.ToLower(usr.Email), s) {
				continue
			}
		}
		if filter.Role != "" && usr.Role != filter.Role {
			continue
		}
		if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		users = append(users, usr)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (repo *UserRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.users[usr.ID] = usr
	return usr, nil
}

// lookup takes the lock itself, for use by LogRepository.
func (repo *UserRepository) lookup(id string) (user.User, bool) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	usr, ok := repo.users[id]
	return usr, ok
}

func (repo *UserRepository) SetLastLogin(_ context.Context, id string, at time.Time, _ ...core.DBExecutor) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	usr, ok := repo.users[id]
	if !ok {
		return user.ErrNotFound
	}
	usr.LastLogin = at
	repo.users[id] = usr
	return nil
}
