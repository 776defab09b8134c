package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tagvault/tagvault/internal/authz"
	"github.com/tagvault/tagvault/internal/shared"
)

type mockRepo struct {
	users  map[int64]*User
	nextID int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{users: make(map[int64]*User), nextID: 1}
}

func (m *mockRepo) add(username, password, role string) int64 {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	id := m.nextID
	m.nextID++
	m.users[id] = &User{
		ID:           id,
		Name:         username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		Role:         role,
		RegisteredAt: time.Now().UTC(),
	}
	return id
}

func (m *mockRepo) FindByID(ctx context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockRepo) FindByUsername(ctx context.Context, username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepo) UsernameExists(ctx context.Context, username string, excludeID int64) (bool, error) {
	for _, u := range m.users {
		if u.Username == username && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) EmailExists(ctx context.Context, email string, excludeID int64) (bool, error) {
	for _, u := range m.users {
		if u.Email == email && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) Create(ctx context.Context, user User) (int64, error) {
	user.ID = m.nextID
	m.nextID++
	m.users[user.ID] = &user
	return user.ID, nil
}

func (m *mockRepo) UpdateProfile(ctx context.Context, id int64, name, username, email string, passwordHash *string) error {
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.Name = name
	u.Username = username
	u.Email = email
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	return nil
}

var _ Repository = (*mockRepo)(nil)

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Name:            "Jane Doe",
		Username:        "jane",
		Email:           "jane@example.com",
		Password:        "password123",
		ConfirmPassword: "password123",
	}
}

func TestRegisterRequiresAllFields(t *testing.T) {
	svc := NewService(newMockRepo())
	in := validRegisterInput()
	in.Password = ""

	_, err := svc.Register(context.Background(), in)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "All fields are required.", verr.Message)
}

func TestRegisterPasswordMismatch(t *testing.T) {
	svc := NewService(newMockRepo())
	in := validRegisterInput()
	in.ConfirmPassword = "other"

	_, err := svc.Register(context.Background(), in)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Passwords do not match.", verr.Message)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	repo := newMockRepo()
	repo.add("jane", "pw", authz.RoleRegular)
	svc := NewService(repo)

	in := validRegisterInput()
	in.Email = "fresh@example.com"
	_, err := svc.Register(context.Background(), in)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Username already exists.", verr.Message)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newMockRepo()
	repo.add("jane", "pw", authz.RoleRegular)
	svc := NewService(repo)

	in := validRegisterInput()
	in.Username = "janedoe"
	_, err := svc.Register(context.Background(), in)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Email address already registered.", verr.Message)
}

func TestRegisterDefaultsToRegularRole(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	id, err := svc.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)
	assert.Equal(t, authz.RoleRegular, repo.users[id].Role)
}

func TestAuthenticateUniformFailure(t *testing.T) {
	repo := newMockRepo()
	repo.add("jane", "correct", authz.RoleRegular)
	svc := NewService(repo)

	_, unknownErr := svc.Authenticate(context.Background(), "nobody", "whatever")
	_, wrongPassErr := svc.Authenticate(context.Background(), "jane", "wrong")

	assert.ErrorIs(t, unknownErr, shared.ErrInvalidCredentials)
	assert.ErrorIs(t, wrongPassErr, shared.ErrInvalidCredentials)
	assert.Equal(t, unknownErr, wrongPassErr)
}

func TestAuthenticateSuccess(t *testing.T) {
	repo := newMockRepo()
	id := repo.add("jane", "correct", authz.RoleRegular)
	svc := NewService(repo)

	user, err := svc.Authenticate(context.Background(), "jane", "correct")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
}

func TestUpdateProfileRequiresCurrentPassword(t *testing.T) {
	repo := newMockRepo()
	id := repo.add("jane", "correct", authz.RoleRegular)
	svc := NewService(repo)

	_, err := svc.UpdateProfile(context.Background(), id, ProfileInput{
		Name:        "Jane",
		Username:    "jane",
		Email:       "jane@example.com",
		NewPassword: "newpass",
	})

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Current password is required to change your password.", verr.Message)
}

func TestUpdateProfileWrongCurrentPassword(t *testing.T) {
	repo := newMockRepo()
	id := repo.add("jane", "correct", authz.RoleRegular)
	svc := NewService(repo)

	_, err := svc.UpdateProfile(context.Background(), id, ProfileInput{
		Name:               "Jane",
		Username:           "jane",
		Email:              "jane@example.com",
		CurrentPassword:    "wrong",
		NewPassword:        "newpass",
		ConfirmNewPassword: "newpass",
	})

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Incorrect current password.", verr.Message)
}

func TestUpdateProfileChangesPassword(t *testing.T) {
	repo := newMockRepo()
	id := repo.add("jane", "correct", authz.RoleRegular)
	svc := NewService(repo)

	changed, err := svc.UpdateProfile(context.Background(), id, ProfileInput{
		Name:               "Jane D",
		Username:           "jane",
		Email:              "jane@example.com",
		CurrentPassword:    "correct",
		NewPassword:        "newpass123",
		ConfirmNewPassword: "newpass123",
	})
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = svc.Authenticate(context.Background(), "jane", "newpass123")
	assert.NoError(t, err)
}

func TestUpdateProfileWithoutPasswordChange(t *testing.T) {
	repo := newMockRepo()
	id := repo.add("jane", "correct", authz.RoleRegular)
	svc := NewService(repo)

	changed, err := svc.UpdateProfile(context.Background(), id, ProfileInput{
		Name:     "Jane Updated",
		Username: "jane",
		Email:    "jane@example.com",
	})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "Jane Updated", repo.users[id].Name)
}

func TestUpdateProfileDuplicateEmail(t *testing.T) {
	repo := newMockRepo()
	repo.add("taken", "pw", authz.RoleRegular)
	id := repo.add("jane", "correct", authz.RoleRegular)
	svc := NewService(repo)

	_, err := svc.UpdateProfile(context.Background(), id, ProfileInput{
		Name:     "Jane",
		Username: "jane",
		Email:    "taken@example.com",
	})

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Email address is already registered by another user.", verr.Message)
}
