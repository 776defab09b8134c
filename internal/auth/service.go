package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tagvault/tagvault/internal/authz"
	"github.com/tagvault/tagvault/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RegisterInput carries the registration form fields.
type RegisterInput struct {
	Name            string
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	Role            string
}

// Register validates and persists a new account. The stored credential is a
// bcrypt digest; the role defaults to regular when the form omits it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (int64, error) {
	if in.Name == "" || in.Username == "" || in.Email == "" || in.Password == "" || in.ConfirmPassword == "" {
		return 0, shared.Invalid("general", "All fields are required.")
	}
	if in.Password != in.ConfirmPassword {
		return 0, shared.Invalid("password", "Passwords do not match.")
	}
	role := in.Role
	if role == "" {
		role = authz.RoleRegular
	}
	if !authz.ValidRole(role) {
		return 0, shared.Invalid("role", "Role must be admin or regular.")
	}

	taken, err := s.repo.UsernameExists(ctx, in.Username, 0)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, shared.Invalid("username", "Username already exists.")
	}
	taken, err = s.repo.EmailExists(ctx, in.Email, 0)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, shared.Invalid("email", "Email address already registered.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	id, err := s.repo.Create(ctx, User{
		Name:         in.Name,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         role,
		RegisteredAt: time.Now().UTC(),
	})
	if err != nil {
		// A concurrent insert can still trip the DB constraint.
		switch {
		case errors.Is(err, ErrUsernameTaken):
			return 0, shared.Invalid("username", "Username already exists.")
		case errors.Is(err, ErrEmailTaken):
			return 0, shared.Invalid("email", "Email address already registered.")
		}
		return 0, err
	}
	return id, nil
}

// Authenticate validates username/password credentials. Unknown username and
// wrong password fail identically.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// ActorByID resolves the session's user id into the current actor.
func (s *Service) ActorByID(ctx context.Context, id int64) (*authz.Actor, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &authz.Actor{ID: user.ID, Name: user.Name, Username: user.Username, Role: user.Role}, nil
}

// ProfileInput carries the self-service profile form fields.
type ProfileInput struct {
	Name               string
	Username           string
	Email              string
	CurrentPassword    string
	NewPassword        string
	ConfirmNewPassword string
}

// UpdateProfile lets a user change their own name, username, email and
// optionally password. Returns whether the password was changed.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (bool, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return false, err
	}

	if in.Name == "" {
		return false, shared.Invalid("name", "Name cannot be empty.")
	}
	if in.Email != user.Email {
		if in.Email == "" {
			return false, shared.Invalid("email", "Email cannot be empty.")
		}
		taken, err := s.repo.EmailExists(ctx, in.Email, userID)
		if err != nil {
			return false, err
		}
		if taken {
			return false, shared.Invalid("email", "Email address is already registered by another user.")
		}
	}
	if in.Username != user.Username {
		if in.Username == "" {
			return false, shared.Invalid("username", "Username cannot be empty.")
		}
		taken, err := s.repo.UsernameExists(ctx, in.Username, userID)
		if err != nil {
			return false, err
		}
		if taken {
			return false, shared.Invalid("username", "Username is already taken.")
		}
	}

	var newHash *string
	passwordChanged := false
	if in.NewPassword != "" {
		if in.CurrentPassword == "" {
			return false, shared.Invalid("current_password", "Current password is required to change your password.")
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.CurrentPassword)) != nil {
			return false, shared.Invalid("current_password", "Incorrect current password.")
		}
		if in.ConfirmNewPassword == "" {
			return false, shared.Invalid("new_password", "New password and confirmation are required to change password.")
		}
		if in.NewPassword != in.ConfirmNewPassword {
			return false, shared.Invalid("new_password", "New passwords do not match.")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return false, err
		}
		h := string(hash)
		newHash = &h
		passwordChanged = true
	}

	if err := s.repo.UpdateProfile(ctx, userID, in.Name, in.Username, in.Email, newHash); err != nil {
		switch {
		case errors.Is(err, ErrUsernameTaken):
			return false, shared.Invalid("username", "Username is already taken.")
		case errors.Is(err, ErrEmailTaken):
			return false, shared.Invalid("email", "Email address is already registered by another user.")
		}
		return false, err
	}
	return passwordChanged, nil
}
