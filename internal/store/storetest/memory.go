// Package storetest provides an in-memory user repository for tests of
// packages that sit on top of the store.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/restful-users/apiserver/internal/store"
)

// MemoryUserRepository keeps users in a slice in insertion order. It
// satisfies the same contract as store.UserRepository and counts writes so
// tests can assert that a rejected operation did not touch the store.
type MemoryUserRepository struct {
	mu      sync.Mutex
	users   []store.UserEntity
	nextID  int64
	saves   int
	deletes int
}

func NewMemoryUserRepository(seed ...store.UserEntity) *MemoryUserRepository {
	repo := &MemoryUserRepository{}
	for _, user := range seed {
		if user.ID > repo.nextID {
			repo.nextID = user.ID
		}
	}
	for _, user := range seed {
		if user.ID == 0 {
			repo.nextID++
			user.ID = repo.nextID
		}
		repo.users = append(repo.users, cloneEntity(user))
	}
	return repo
}

// Saves returns how many times Save has been called.
func (r *MemoryUserRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// Deletes returns how many times DeleteByID has been called.
func (r *MemoryUserRepository) Deletes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deletes
}

func (r *MemoryUserRepository) FindAll(ctx context.Context) ([]store.UserEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]store.UserEntity, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, cloneEntity(user))
	}
	return users, nil
}

func (r *MemoryUserRepository) FindPage(ctx context.Context, offset, limit int, by store.Sort) ([]store.UserEntity, int64, error) {
	all, _ := r.FindAll(ctx)
	sort.SliceStable(all, func(i, j int) bool {
		cmp := compareField(all[i], all[j], by.Field)
		if by.Desc {
			return cmp > 0
		}
		return cmp < 0
	})

	total := int64(len(all))
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []store.UserEntity{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func compareField(a, b store.UserEntity, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "username":
		return strings.Compare(a.Username, b.Username)
	case "email":
		return strings.Compare(a.Email, b.Email)
	default:
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	}
}

func (r *MemoryUserRepository) FindByID(ctx context.Context, id int64) (store.UserEntity, error) {
	return r.find(func(u store.UserEntity) bool { return u.ID == id })
}

func (r *MemoryUserRepository) FindByUsername(ctx context.Context, username string) (store.UserEntity, error) {
	return r.find(func(u store.UserEntity) bool { return u.Username == username })
}

func (r *MemoryUserRepository) FindByEmail(ctx context.Context, email string) (store.UserEntity, error) {
	return r.find(func(u store.UserEntity) bool { return u.Email == email })
}

func (r *MemoryUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(func(u store.UserEntity) bool { return u.Username == username }), nil
}

func (r *MemoryUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(func(u store.UserEntity) bool { return u.Email == email }), nil
}

func (r *MemoryUserRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	return r.exists(func(u store.UserEntity) bool { return u.ID == id }), nil
}

func (r *MemoryUserRepository) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

func (r *MemoryUserRepository) Save(ctx context.Context, user store.UserEntity) (store.UserEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++

	for _, existing := range r.users {
		if existing.ID == user.ID {
			continue
		}
		if existing.Username == user.Username || existing.Email == user.Email {
			return store.UserEntity{}, store.ErrDuplicate
		}
	}

	now := time.Now()
	user.UpdatedAt = now
	if user.ID == 0 {
		r.nextID++
		user.ID = r.nextID
		user.CreatedAt = now
		r.users = append(r.users, cloneEntity(user))
		return cloneEntity(user), nil
	}

	for i := range r.users {
		if r.users[i].ID == user.ID {
			r.users[i] = cloneEntity(user)
			return cloneEntity(user), nil
		}
	}
	return store.UserEntity{}, store.ErrNotFound
}

func (r *MemoryUserRepository) DeleteByID(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++

	for i := range r.users {
		if r.users[i].ID == id {
			r.users = append(r.users[:i], r.users[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (r *MemoryUserRepository) find(match func(store.UserEntity) bool) (store.UserEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if match(user) {
			return cloneEntity(user), nil
		}
	}
	return store.UserEntity{}, store.ErrNotFound
}

func (r *MemoryUserRepository) exists(match func(store.UserEntity) bool) bool {
	_, err := r.find(match)
	return err == nil
}

func cloneEntity(user store.UserEntity) store.UserEntity {
	if user.Address != nil {
		address := *user.Address
		if address.Geo != nil {
			geo := *address.Geo
			address.Geo = &geo
		}
		user.Address = &address
	}
	if user.Company != nil {
		company := *user.Company
		user.Company = &company
	}
	return user
}
