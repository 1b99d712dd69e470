package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/t77yq/autocontrol/internal/model"
	"github.com/t77yq/autocontrol/internal/storage"
)

func newTestStore(t *testing.T, kv storage.KeyValueStore) *UserStore {
	t.Helper()
	s := NewUserStore(kv, zaptest.NewLogger(t))
	s.cost = bcrypt.MinCost
	require.NoError(t, s.Load(context.Background(), "admin123"))
	return s
}

func TestUserStore_SeedsAdmin(t *testing.T) {
	s := newTestStore(t, storage.NewMemoryStore())

	users := s.List()
	require.Len(t, users, 1)
	assert.Equal(t, ProtectedUsername, users[0].Username)
	assert.Equal(t, model.RoleAdmin, users[0].Role)
	assert.NotEqual(t, "admin123", users[0].PasswordHash)

	user, err := s.Authenticate("admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, users[0].ID, user.ID)

	_, err = s.Authenticate("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate("nobody", "admin123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserStore_SeedRejectsWeakPassword(t *testing.T) {
	s := NewUserStore(storage.NewMemoryStore(), zaptest.NewLogger(t))
	assert.ErrorIs(t, s.Load(context.Background(), "abc"), ErrWeakPassword)
}

func TestUserStore_AddAndReload(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	s := newTestStore(t, kv)

	viewer, err := s.Add(ctx, " alice ", "secret", model.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, "alice", viewer.Username)

	_, err = s.Add(ctx, "alice", "another", model.RoleAdmin)
	assert.ErrorIs(t, err, ErrUserExists)
	_, err = s.Add(ctx, "bob", "abc", model.RoleViewer)
	assert.ErrorIs(t, err, ErrWeakPassword)
	_, err = s.Add(ctx, "  ", "secret", model.RoleViewer)
	assert.ErrorIs(t, err, ErrInvalidUsername)
	_, err = s.Add(ctx, "bob", "secret", "root")
	assert.ErrorIs(t, err, ErrInvalidRole)

	reloaded := newTestStore(t, kv)
	require.Len(t, reloaded.List(), 2, "the admin is not seeded again")
	user, err := reloaded.Authenticate("alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, model.RoleViewer, user.Role)
}

func TestUserStore_ProtectedAdmin(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryStore())
	admin := s.List()[0]

	_, err := s.Delete(ctx, admin.ID)
	assert.ErrorIs(t, err, ErrProtectedUser)
	_, err = s.SetRole(ctx, admin.ID, model.RoleViewer)
	assert.ErrorIs(t, err, ErrProtectedUser)

	bob, err := s.Add(ctx, "bob", "secret", model.RoleViewer)
	require.NoError(t, err)

	updated, err := s.SetRole(ctx, bob.ID, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, updated.Role)

	deleted, err := s.Delete(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", deleted.Username)
	_, err = s.Delete(ctx, bob.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserStore_ChangePassword(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryStore())

	assert.ErrorIs(t, s.ChangePassword(ctx, "admin", "wrong", "newpass"), ErrInvalidCredentials)
	assert.ErrorIs(t, s.ChangePassword(ctx, "admin", "admin123", "abc"), ErrWeakPassword)
	assert.ErrorIs(t, s.ChangePassword(ctx, "ghost", "admin123", "newpass"), ErrUserNotFound)

	require.NoError(t, s.ChangePassword(ctx, "admin", "admin123", "newpass"))
	_, err := s.Authenticate("admin", "admin123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate("admin", "newpass")
	assert.NoError(t, err)
}

func TestUserStore_PersistenceFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	s := newTestStore(t, kv)
	kv.FailWrites(errors.New("quota exceeded"))

	_, err := s.Add(ctx, "carol", "secret", model.RoleViewer)
	require.NoError(t, err)
	assert.Len(t, s.List(), 2)
}

func TestUserStore_LoadCorrupted(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, storage.KeyUsers, []byte("{not json")))

	s := newTestStore(t, kv)
	users := s.List()
	require.Len(t, users, 1)
	assert.Equal(t, ProtectedUsername, users[0].Username)
}
