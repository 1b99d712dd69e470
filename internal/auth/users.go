package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/t77yq/autocontrol/internal/model"
	"github.com/t77yq/autocontrol/internal/storage"
)

const (
	// ProtectedUsername is the primary admin account seeded on first start
	ProtectedUsername = "admin"

	// MinPasswordLength is the shortest accepted password
	MinPasswordLength = 4
)

// UserStore manages dashboard users persisted under the users key
type UserStore struct {
	logger *zap.Logger
	kv     storage.KeyValueStore
	cost   int
	now    func() time.Time

	mu    sync.RWMutex
	users []model.User
}

// NewUserStore creates a user store backed by kv
func NewUserStore(kv storage.KeyValueStore, logger *zap.Logger) *UserStore {
	return &UserStore{
		logger: logger.Named("users"),
		kv:     kv,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
}

// Load restores the users. When none exist the primary admin account is
// created with adminPassword.
func (s *UserStore) Load(ctx context.Context, adminPassword string) error {
	var users []model.User
	if _, err := storage.GetJSON(ctx, s.kv, storage.KeyUsers, &users); err != nil {
		if !errors.Is(err, storage.ErrCorrupted) {
			return err
		}
		s.logger.Warn("Stored users are corrupted, starting empty", zap.Error(err))
		users = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users

	if len(s.users) > 0 {
		s.logger.Info("Loaded users", zap.Int("count", len(s.users)))
		return nil
	}

	if len(adminPassword) < MinPasswordLength {
		return fmt.Errorf("default admin password: %w", ErrWeakPassword)
	}
	admin, err := s.newUser(ProtectedUsername, adminPassword, model.RoleAdmin)
	if err != nil {
		return err
	}
	s.users = append(s.users, admin)
	s.saveLocked(ctx)
	s.logger.Info("Created default admin user", zap.String("username", admin.Username))
	return nil
}

// Authenticate returns the user matching username and password
func (s *UserStore) Authenticate(username, password string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexByName(strings.TrimSpace(username))
	if i < 0 {
		return model.User{}, ErrInvalidCredentials
	}
	user := s.users[i]
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// List returns every user in creation order
func (s *UserStore) List() []model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.User, len(s.users))
	copy(out, s.users)
	return out
}

// Add creates a new user
func (s *UserStore) Add(ctx context.Context, username, password string, role model.Role) (model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return model.User{}, ErrInvalidUsername
	}
	if !role.Valid() {
		return model.User{}, ErrInvalidRole
	}
	if len(password) < MinPasswordLength {
		return model.User{}, ErrWeakPassword
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexByName(username) >= 0 {
		return model.User{}, ErrUserExists
	}
	user, err := s.newUser(username, password, role)
	if err != nil {
		return model.User{}, err
	}
	s.users = append(s.users, user)
	s.saveLocked(ctx)

	s.logger.Info("Added user",
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)))
	return user, nil
}

// Delete removes the user with the given id
func (s *UserStore) Delete(ctx context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexByID(id)
	if i < 0 {
		return model.User{}, ErrUserNotFound
	}
	user := s.users[i]
	if user.Username == ProtectedUsername {
		return model.User{}, ErrProtectedUser
	}
	s.users = append(s.users[:i], s.users[i+1:]...)
	s.saveLocked(ctx)

	s.logger.Info("Deleted user", zap.String("username", user.Username))
	return user, nil
}

// SetRole changes the role of the user with the given id
func (s *UserStore) SetRole(ctx context.Context, id string, role model.Role) (model.User, error) {
	if !role.Valid() {
		return model.User{}, ErrInvalidRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexByID(id)
	if i < 0 {
		return model.User{}, ErrUserNotFound
	}
	if s.users[i].Username == ProtectedUsername {
		return model.User{}, ErrProtectedUser
	}
	s.users[i].Role = role
	s.saveLocked(ctx)
	return s.users[i], nil
}

// ChangePassword replaces the password of username after checking current
func (s *UserStore) ChangePassword(ctx context.Context, username, current, next string) error {
	if len(next) < MinPasswordLength {
		return ErrWeakPassword
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexByName(username)
	if i < 0 {
		return ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.users[i].PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	s.users[i].PasswordHash = string(hash)
	s.saveLocked(ctx)

	s.logger.Info("Changed password", zap.String("username", username))
	return nil
}

func (s *UserStore) newUser(username, password string, role model.Role) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to hash password: %w", err)
	}
	return model.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now(),
	}, nil
}

func (s *UserStore) saveLocked(ctx context.Context) {
	if err := storage.SetJSON(ctx, s.kv, storage.KeyUsers, s.users); err != nil {
		s.logger.Warn("Users kept in memory only", zap.Error(err))
	}
}

func (s *UserStore) indexByName(username string) int {
	for i, u := range s.users {
		if u.Username == username {
			return i
		}
	}
	return -1
}

func (s *UserStore) indexByID(id string) int {
	for i, u := range s.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}
