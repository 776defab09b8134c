package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tagvault/tagvault/internal/platform/db"
	"github.com/tagvault/tagvault/internal/shared"
)

// Uniqueness races that slip past the pre-checks surface as these errors,
// raised from the DB constraints inside the insert/update transaction.
var (
	ErrUsernameTaken = errors.New("users: username taken")
	ErrEmailTaken    = errors.New("users: email taken")
)

// Repository defines persistence operations for user administration. WithTx
// hands the callback a repository bound to one transaction, so invariant
// checks and the following write are atomic against concurrent admins.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	List(ctx context.Context) ([]User, error)
	Get(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, user User) (int64, error)
	Update(ctx context.Context, user User) error
	Delete(ctx context.Context, id int64) error
	CountAdmins(ctx context.Context) (int, error)
	OwnsAssets(ctx context.Context, id int64) (bool, error)
	UsernameExists(ctx context.Context, username string, excludeID int64) (bool, error)
	EmailExists(ctx context.Context, email string, excludeID int64) (bool, error)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	q    querier
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, q: pool}
}

// WithTx runs fn against a transaction-bound copy of the repository.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{pool: r.pool, q: tx})
	})
}

const userColumns = `id, name, username, email, password_hash, role, registered_at`

// List returns every user ordered by id.
func (r *PGRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.q.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *user)
	}
	return out, rows.Err()
}

// Get fetches a user by primary key.
func (r *PGRepository) Get(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// Create persists a new user and returns its id.
func (r *PGRepository) Create(ctx context.Context, user User) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx,
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

// Update rewrites name, username, email and role. The password hash is only
// changed through the profile flow, never here.
func (r *PGRepository) Update(ctx context.Context, user User) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE users SET name = $1, username = $2, email = $3, role = $4 WHERE id = $5`,
		user.Name, user.Username, user.Email, user.Role, user.ID)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a user by id.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountAdmins returns the number of accounts holding the admin role.
func (r *PGRepository) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE role = 'admin'`).Scan(&n)
	return n, err
}

// OwnsAssets reports whether any asset records the user as its creator.
func (r *PGRepository) OwnsAssets(ctx context.Context, id int64) (bool, error) {
	var owns bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM assets WHERE created_by = $1)`, id).Scan(&owns)
	return owns, err
}

// UsernameExists reports whether another user already holds the username.
func (r *PGRepository) UsernameExists(ctx context.Context, username string, excludeID int64) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 AND id <> $2)`,
		username, excludeID).Scan(&exists)
	return exists, err
}

// EmailExists reports whether another user already holds the email.
func (r *PGRepository) EmailExists(ctx context.Context, email string, excludeID int64) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 AND id <> $2)`,
		email, excludeID).Scan(&exists)
	return exists, err
}

func scanUser(row pgx.Row) (*User, error) {
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
