// Package repositorytest provides an in-memory users store with the same
// behavior as repository.UserRepo, for tests above the storage layer.
package repositorytest

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/user-auth-service/internal/model"
	"github.com/iliyamo/user-auth-service/internal/repository"
	"github.com/iliyamo/user-auth-service/internal/utils"
)

// Users is safe for concurrent use. Unique usernames and emails and the
// refresh-token compare-and-swap are enforced under one mutex, matching
// the guarantees the MySQL indexes and single-statement update give.
type Users struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]model.User
}

func NewUsers() *Users {
	return &Users{rows: make(map[uint64]model.User)}
}

func (m *Users) Create(_ context.Context, nu model.NewUser) (model.User, error) {
	hash, err := utils.HashPassword(nu.Password, bcrypt.MinCost)
	if err != nil {
		return model.User{}, err
	}
	username := repository.NormalizeUsername(nu.Username)
	email := strings.TrimSpace(nu.Email)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Username == username || u.Email == email {
			return model.User{}, repository.ErrConflict
		}
	}
	m.nextID++
	now := time.Now().UTC()
	u := model.User{
		ID:           m.nextID,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		ProfilePhoto: nu.ProfilePhoto,
		CoverPhoto:   nu.CoverPhoto,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.rows[u.ID] = u
	return u, nil
}

func (m *Users) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *Users) GetPublicByID(ctx context.Context, id uint64) (model.PublicUser, error) {
	u, err := m.GetByID(ctx, id)
	if err != nil {
		return model.PublicUser{}, err
	}
	return u.Public(), nil
}

func (m *Users) GetByLogin(_ context.Context, username, email string) (model.User, error) {
	u, ok := m.find(username, email)
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *Users) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	_, ok := m.find(username, email)
	return ok, nil
}

func (m *Users) SetRefreshToken(_ context.Context, id uint64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return nil
	}
	u.RefreshToken = token
	m.rows[id] = u
	return nil
}

func (m *Users) SwapRefreshToken(_ context.Context, id uint64, old, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok || old == "" || u.RefreshToken != old {
		return repository.ErrStaleToken
	}
	u.RefreshToken = token
	m.rows[id] = u
	return nil
}

func (m *Users) ClearRefreshToken(ctx context.Context, id uint64) error {
	return m.SetRefreshToken(ctx, id, "")
}

// Delete removes a user; used to simulate accounts vanishing mid-session.
func (m *Users) Delete(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
}

func (m *Users) find(username, email string) (model.User, bool) {
	username = repository.NormalizeUsername(username)
	email = strings.TrimSpace(email)
	if username == "" && email == "" {
		return model.User{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		best  model.User
		found bool
	)
	for _, u := range m.rows {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			if !found || u.ID < best.ID {
				best, found = u, true
			}
		}
	}
	return best, found
}
