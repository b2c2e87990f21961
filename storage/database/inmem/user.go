package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) table() *userTable {
	return repo.db.user
}

// withManagers must be called with the table lock held.
func (repo *userRepository) withManagers(usr user.User) user.User {
	mgrs := repo.table().managers[usr.ID]
	usr.Managers = make([]user.Manager, 0, len(mgrs))
	for _, m := range mgrs {
		m.EntityAcronym = repo.db.acronym(m.EntityID)
		usr.Managers = append(usr.Managers, m)
	}
	return usr
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.table().table))
	for _, u := range repo.table().table {
		users = append(users, repo.withManagers(*u))
	}
	return users
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email string, excludedUsers []user.User, _ ...core.DBExecutor) error {
	repo.table().mutex.RLock()
	defer repo.table().mutex.RUnlock()

	excluded := make([]int, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded = append(excluded, u.ID)
	}
	for _, usr := range repo.table().table {
		if core.ContainsInt(excluded, usr.ID) {
			continue
		}
		if (username != "" && usr.Username == username) || (email != "" && usr.Email == email) {
			return user.ErrUserExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.table().mutex.Lock()
	defer repo.table().mutex.Unlock()

	repo.table().pkCount++
	usr.ID = repo.table().pkCount
	usr.Managers = nil
	repo.table().table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]user.User, error) {
	repo.table().mutex.RLock()
	defer repo.table().mutex.RUnlock()

	users := make([]user.User, 0)
	for _, usr := range repo.query() {
		if filter.Match(usr) {
			users = append(users, usr)
		}
	}
	sortUsers(users, ordering)
	if filter != nil && filter.Limit > 0 && uint64(len(users)) > filter.Limit {
		users = users[:filter.Limit]
	}
	return users, nil
}

func sortUsers(users []user.User, ordering []core.DBOrdering) {
	keys := map[string]func(u user.User) string{
		"username":  func(u user.User) string { return u.Username },
		"email":     func(u user.User) string { return u.Email },
		"last_name": func(u user.User) string { return strings.ToLower(u.LastName) },
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, o := range ordering {
			key, ok := keys[o.Field]
			if !ok {
				continue
			}
			a, b := key(users[i]), key(users[j])
			if a == b {
				continue
			}
			return (a < b) == o.Ascending
		}
		return users[i].ID < users[j].ID
	})
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.table().mutex.RLock()
	defer repo.table().mutex.RUnlock()

	if filter.ID != 0 {
		if usr, ok := repo.table().table[filter.ID]; ok {
			return repo.withManagers(*usr), nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.query() {
		switch {
		case filter.Username != "" && usr.Username == filter.Username,
			filter.Email != "" && usr.Email == filter.Email,
			filter.UsernameOrEmail != "" && (usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail):
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.table().mutex.Lock()
	defer repo.table().mutex.Unlock()

	if _, ok := repo.table().table[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	stored := usr
	stored.Managers = nil
	repo.table().table[usr.ID] = &stored
	return repo.withManagers(stored), nil
}

func (repo *userRepository) SetManager(_ context.Context, userID int, mgr user.Manager, _ ...core.DBExecutor) (user.Manager, error) {
	repo.table().mutex.Lock()
	defer repo.table().mutex.Unlock()

	if _, ok := repo.table().table[userID]; !ok {
		return user.Manager{}, user.ErrNotFound
	}
	mgr.EntityAcronym = repo.db.acronym(mgr.EntityID)
	mgrs := repo.table().managers[userID]
	for i, m := range mgrs {
		if m.EntityID == mgr.EntityID {
			mgr.ID = m.ID
			mgrs[i] = mgr
			return mgr, nil
		}
	}
	repo.table().mgrCount++
	mgr.ID = repo.table().mgrCount
	repo.table().managers[userID] = append(mgrs, mgr)
	return mgr, nil
}

func (repo *userRepository) RemoveManager(_ context.Context, userID, entityID int, _ ...core.DBExecutor) error {
	repo.table().mutex.Lock()
	defer repo.table().mutex.Unlock()

	mgrs := repo.table().managers[userID]
	for i, m := range mgrs {
		if m.EntityID == entityID {
			repo.table().managers[userID] = append(mgrs[:i], mgrs[i+1:]...)
			return nil
		}
	}
	return user.ErrNotFound
}
