package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagvault/tagvault/internal/authz"
	"github.com/tagvault/tagvault/internal/shared"
)

type mockRepository struct {
	users      map[int64]*User
	nextID     int64
	assetOwner map[int64]bool
	txError    error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:      make(map[int64]*User),
		assetOwner: make(map[int64]bool),
		nextID:     1,
	}
}

func (m *mockRepository) add(username, role string) int64 {
	id := m.nextID
	m.nextID++
	m.users[id] = &User{
		ID:           id,
		Name:         username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Role:         role,
		RegisteredAt: time.Now().UTC(),
	}
	return id
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, m)
}

func (m *mockRepository) List(ctx context.Context) ([]User, error) {
	var out []User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockRepository) Create(ctx context.Context, user User) (int64, error) {
	user.ID = m.nextID
	m.nextID++
	m.users[user.ID] = &user
	return user.ID, nil
}

func (m *mockRepository) Update(ctx context.Context, user User) error {
	if _, ok := m.users[user.ID]; !ok {
		return shared.ErrNotFound
	}
	m.users[user.ID] = &user
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockRepository) CountAdmins(ctx context.Context) (int, error) {
	n := 0
	for _, u := range m.users {
		if u.Role == authz.RoleAdmin {
			n++
		}
	}
	return n, nil
}

func (m *mockRepository) OwnsAssets(ctx context.Context, id int64) (bool, error) {
	return m.assetOwner[id], nil
}

func (m *mockRepository) UsernameExists(ctx context.Context, username string, excludeID int64) (bool, error) {
	for _, u := range m.users {
		if u.Username == username && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) EmailExists(ctx context.Context, email string, excludeID int64) (bool, error) {
	for _, u := range m.users {
		if u.Email == email && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

var _ Repository = (*mockRepository)(nil)

func validCreateInput() CreateInput {
	return CreateInput{
		Name:            "Jane Doe",
		Username:        "jane",
		Email:           "jane@example.com",
		Role:            authz.RoleRegular,
		Password:        "password123",
		ConfirmPassword: "password123",
	}
}

func TestCreateUserRequiresAllFields(t *testing.T) {
	svc := NewService(newMockRepository())
	in := validCreateInput()
	in.Email = ""

	_, err := svc.Create(context.Background(), in)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "All fields are required.", verr.Message)
}

func TestCreateUserPasswordMismatch(t *testing.T) {
	svc := NewService(newMockRepository())
	in := validCreateInput()
	in.ConfirmPassword = "different"

	_, err := svc.Create(context.Background(), in)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Passwords do not match.", verr.Message)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	repo := newMockRepository()
	repo.add("jane", authz.RoleRegular)
	svc := NewService(repo)

	in := validCreateInput()
	in.Email = "other@example.com"
	_, err := svc.Create(context.Background(), in)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Username already exists.", verr.Message)
}

func TestCreateUserHashesPassword(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)

	id, err := svc.Create(context.Background(), validCreateInput())
	require.NoError(t, err)

	stored := repo.users[id]
	require.NotNil(t, stored)
	assert.NotEqual(t, "password123", stored.PasswordHash)
	assert.NotEmpty(t, stored.PasswordHash)
}

func TestUpdateUserDemoteLastAdminBlocked(t *testing.T) {
	repo := newMockRepository()
	adminID := repo.add("admin", authz.RoleAdmin)
	repo.add("jane", authz.RoleRegular)
	svc := NewService(repo)

	_, err := svc.Update(context.Background(), adminID, adminID, UpdateInput{
		Name:     "Administrator",
		Username: "admin",
		Email:    "admin@example.com",
		Role:     authz.RoleRegular,
	})

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Cannot demote the last administrator.", verr.Message)
	assert.Equal(t, authz.RoleAdmin, repo.users[adminID].Role)
}

func TestUpdateUserDemoteWithSecondAdmin(t *testing.T) {
	repo := newMockRepository()
	adminID := repo.add("admin", authz.RoleAdmin)
	repo.add("backup", authz.RoleAdmin)
	svc := NewService(repo)

	username, err := svc.Update(context.Background(), adminID, adminID, UpdateInput{
		Name:     "Administrator",
		Username: "admin",
		Email:    "admin@example.com",
		Role:     authz.RoleRegular,
	})
	require.NoError(t, err)
	assert.Equal(t, "admin", username)
	assert.Equal(t, authz.RoleRegular, repo.users[adminID].Role)
}

func TestUpdateUserDuplicateUsername(t *testing.T) {
	repo := newMockRepository()
	adminID := repo.add("admin", authz.RoleAdmin)
	targetID := repo.add("jane", authz.RoleRegular)
	svc := NewService(repo)

	_, err := svc.Update(context.Background(), adminID, targetID, UpdateInput{
		Name:     "Jane",
		Username: "admin",
		Email:    "jane@example.com",
		Role:     authz.RoleRegular,
	})

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Username already taken.", verr.Message)
}

func TestUpdateUserEmptyUsername(t *testing.T) {
	repo := newMockRepository()
	adminID := repo.add("admin", authz.RoleAdmin)
	targetID := repo.add("jane", authz.RoleRegular)
	svc := NewService(repo)

	_, err := svc.Update(context.Background(), adminID, targetID, UpdateInput{
		Name:     "Jane",
		Username: "",
		Email:    "jane@example.com",
		Role:     authz.RoleRegular,
	})

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Username cannot be empty.", verr.Message)
}

func TestDeleteUserSelfBlocked(t *testing.T) {
	repo := newMockRepository()
	adminID := repo.add("admin", authz.RoleAdmin)
	svc := NewService(repo)

	_, err := svc.Delete(context.Background(), adminID, adminID)

	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, "You cannot delete your own account.", err.Error())
	assert.Contains(t, repo.users, adminID)
}

func TestDeleteUserLastAdminBlocked(t *testing.T) {
	repo := newMockRepository()
	adminID := repo.add("admin", authz.RoleAdmin)
	actorID := repo.add("jane", authz.RoleRegular)
	svc := NewService(repo)

	_, err := svc.Delete(context.Background(), actorID, adminID)

	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, "Cannot delete the last administrator.", err.Error())
	assert.Contains(t, repo.users, adminID)
}

func TestDeleteUserWithAssetsBlocked(t *testing.T) {
	repo := newMockRepository()
	adminID := repo.add("admin", authz.RoleAdmin)
	targetID := repo.add("jane", authz.RoleRegular)
	repo.assetOwner[targetID] = true
	svc := NewService(repo)

	username, err := svc.Delete(context.Background(), adminID, targetID)

	require.ErrorIs(t, err, ErrOwnsAssets)
	assert.Equal(t, "jane", username)
	assert.Contains(t, repo.users, targetID)
}

func TestDeleteUser(t *testing.T) {
	repo := newMockRepository()
	adminID := repo.add("admin", authz.RoleAdmin)
	targetID := repo.add("jane", authz.RoleRegular)
	svc := NewService(repo)

	username, err := svc.Delete(context.Background(), adminID, targetID)
	require.NoError(t, err)
	assert.Equal(t, "jane", username)
	assert.NotContains(t, repo.users, targetID)
}

func TestDeleteUnknownUser(t *testing.T) {
	repo := newMockRepository()
	adminID := repo.add("admin", authz.RoleAdmin)
	svc := NewService(repo)

	_, err := svc.Delete(context.Background(), adminID, 99)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteSecondAdminAllowed(t *testing.T) {
	repo := newMockRepository()
	adminID := repo.add("admin", authz.RoleAdmin)
	secondID := repo.add("backup", authz.RoleAdmin)
	svc := NewService(repo)

	_, err := svc.Delete(context.Background(), adminID, secondID)
	require.NoError(t, err)

	admins, err := repo.CountAdmins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, admins)
}
