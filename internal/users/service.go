package users

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tagvault/tagvault/internal/authz"
	"github.com/tagvault/tagvault/internal/shared"
)

// ErrOwnsAssets blocks deleting a user while assets still record them as
// creator. The caller reassigns or deletes those assets first.
var ErrOwnsAssets = errors.New("users: user owns assets")

// Service implements the admin-facing user management use cases.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreateInput carries the form values for creating an account.
type CreateInput struct {
	Name            string
	Username        string
	Email           string
	Role            string
	Password        string
	ConfirmPassword string
}

// UpdateInput carries the form values for editing an account.
type UpdateInput struct {
	Name     string
	Username string
	Email    string
	Role     string
}

// List returns every account ordered by id.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Get fetches one account by id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and persists a new account. Unlike self-registration the
// role is chosen by the admin, so it must be one of the known tiers.
func (s *Service) Create(ctx context.Context, in CreateInput) (int64, error) {
	if in.Name == "" || in.Username == "" || in.Email == "" || in.Role == "" ||
		in.Password == "" || in.ConfirmPassword == "" {
		return 0, shared.Invalid("general", "All fields are required.")
	}
	if in.Password != in.ConfirmPassword {
		return 0, shared.Invalid("confirm_password", "Passwords do not match.")
	}
	if !authz.ValidRole(in.Role) {
		return 0, shared.Invalid("role", "Invalid role.")
	}
	if taken, err := s.repo.UsernameExists(ctx, in.Username, 0); err != nil {
		return 0, err
	} else if taken {
		return 0, shared.Invalid("username", "Username already exists.")
	}
	if taken, err := s.repo.EmailExists(ctx, in.Email, 0); err != nil {
		return 0, err
	} else if taken {
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
		Role:         in.Role,
		RegisteredAt: s.now().UTC(),
	})
	if err != nil {
		switch err {
		case ErrUsernameTaken:
			return 0, shared.Invalid("username", "Username already exists.")
		case ErrEmailTaken:
			return 0, shared.Invalid("email", "Email address already registered.")
		}
		return 0, err
	}
	return id, nil
}

// Update validates and rewrites an account. The demotion guard runs in the
// same transaction as the write, so two admins editing concurrently can
// never leave the system without an administrator. Returns the account's
// username after the update.
func (s *Service) Update(ctx context.Context, actorID, targetID int64, in UpdateInput) (string, error) {
	var username string
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		target, err := repo.Get(ctx, targetID)
		if err != nil {
			return err
		}

		if targetID == actorID && target.Role == authz.RoleAdmin && in.Role == authz.RoleRegular {
			admins, err := repo.CountAdmins(ctx)
			if err != nil {
				return err
			}
			if admins == 1 {
				return shared.Invalid("role", "Cannot demote the last administrator.")
			}
		}

		if in.Username != target.Username {
			if in.Username == "" {
				return shared.Invalid("username", "Username cannot be empty.")
			}
			if taken, err := repo.UsernameExists(ctx, in.Username, targetID); err != nil {
				return err
			} else if taken {
				return shared.Invalid("username", "Username already taken.")
			}
		}
		if in.Email != target.Email {
			if in.Email == "" {
				return shared.Invalid("email", "Email cannot be empty.")
			}
			if taken, err := repo.EmailExists(ctx, in.Email, targetID); err != nil {
				return err
			} else if taken {
				return shared.Invalid("email", "Email already registered by another user.")
			}
		}
		if !authz.ValidRole(in.Role) {
			return shared.Invalid("role", "Invalid role.")
		}

		updated := *target
		updated.Name = in.Name
		updated.Username = in.Username
		updated.Email = in.Email
		updated.Role = in.Role
		if err := repo.Update(ctx, updated); err != nil {
			switch err {
			case ErrUsernameTaken:
				return shared.Invalid("username", "Username already taken.")
			case ErrEmailTaken:
				return shared.Invalid("email", "Email already registered by another user.")
			}
			return err
		}
		username = updated.Username
		return nil
	})
	return username, err
}

// Delete removes an account, enforcing the invariants that keep the system
// administrable: no self-deletion, never the last admin, and no account
// still recorded as creator of assets. Returns the target's username.
func (s *Service) Delete(ctx context.Context, actorID, targetID int64) (string, error) {
	if targetID == actorID {
		return "", shared.Conflict("You cannot delete your own account.")
	}
	var username string
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		target, err := repo.Get(ctx, targetID)
		if err != nil {
			return err
		}
		username = target.Username

		if target.Role == authz.RoleAdmin {
			admins, err := repo.CountAdmins(ctx)
			if err != nil {
				return err
			}
			if admins <= 1 {
				return shared.Conflict("Cannot delete the last administrator.")
			}
		}
		if owns, err := repo.OwnsAssets(ctx, targetID); err != nil {
			return err
		} else if owns {
			return ErrOwnsAssets
		}
		return repo.Delete(ctx, targetID)
	})
	return username, err
}
