package handlers

import (
	"context"
	"sync"

	"github.com/hongminglow/moviebox-be/internal/models"
	"github.com/hongminglow/moviebox-be/internal/storage"
)

// memStore is an in-memory storage.UserStore for handler tests.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	users  []models.User
	err    error
}

func newMemStore() *memStore {
	return &memStore{nextID: 1}
}

func (s *memStore) CreateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.User{}, s.err
	}
	user.ID = s.nextID
	s.nextID++
	s.users = append(s.users, user)
	return user, nil
}

func (s *memStore) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		u.Password = ""
		out = append(out, u)
	}
	return out, nil
}

func (s *memStore) FindByIdentifier(_ context.Context, identifier string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.User{}, s.err
	}
	for _, u := range s.users {
		if u.Username == identifier || u.Email == identifier {
			return u, nil
		}
	}
	return models.User{}, storage.ErrNotFound
}

func (s *memStore) Ping(context.Context) error {
	return s.err
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}
