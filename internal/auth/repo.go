package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tagvault/tagvault/internal/shared"
)

// Uniqueness races that slip past the pre-checks surface as these errors,
// raised from the DB constraints inside the insert/update transaction.
var (
	ErrUsernameTaken = errors.New("auth: username taken")
	ErrEmailTaken    = errors.New("auth: email taken")
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	UsernameExists(ctx context.Context, username string, excludeID int64) (bool, error)
	EmailExists(ctx context.Context, email string, excludeID int64) (bool, error)
	Create(ctx context.Context, user User) (int64, error)
	UpdateProfile(ctx context.Context, id int64, name, username, email string, passwordHash *string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, name, username, email, password_hash, role, registered_at`

// FindByID fetches a user by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return r.scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindByUsername fetches a user by exact, case-sensitive username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return r.scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// UsernameExists reports whether another user already holds the username.
func (r *PGRepository) UsernameExists(ctx context.Context, username string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 AND id <> $2)`,
		username, excludeID).Scan(&exists)
	return exists, err
}

// EmailExists reports whether another user already holds the email.
func (r *PGRepository) EmailExists(ctx context.Context, email string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 AND id <> $2)`,
		email, excludeID).Scan(&exists)
	return exists, err
}

// Create persists a new user and returns its id.
func (r *PGRepository) Create(ctx context.Context, user User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, username, email, password_hash, role, registered_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		user.Name, user.Username, user.Email, user.PasswordHash, user.Role,
		pgtype.Timestamptz{Time: user.RegisteredAt, Valid: true},
	).Scan(&id)
	if err != nil {
		return 0, mapUniqueViolation(err)
	}
	return id, nil
}

// UpdateProfile updates name/username/email and, when passwordHash is
// non-nil, the credential digest, in a single statement.
func (r *PGRepository) UpdateProfile(ctx context.Context, id int64, name, username, email string, passwordHash *string) error {
	var tag pgconn.CommandTag
	var err error
	if passwordHash != nil {
		tag, err = r.pool.Exec(ctx,
			`UPDATE users SET name = $1, username = $2, email = $3, password_hash = $4 WHERE id = $5`,
			name, username, email, *passwordHash, id)
	} else {
		tag, err = r.pool.Exec(ctx,
			`UPDATE users SET name = $1, username = $2, email = $3 WHERE id = $4`,
			name, username, email, id)
	}
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PGRepository) scanUser(row pgx.Row) (*User, error) {
	var user User
	var registered pgtype.Timestamptz
	err := row.Scan(&user.ID, &user.Name, &user.Username, &user.Email,
		&user.PasswordHash, &user.Role, &registered)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	user.RegisteredAt = registered.Time
	return &user, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_username_key":
			return ErrUsernameTaken
		case "users_email_key":
			return ErrEmailTaken
		}
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
