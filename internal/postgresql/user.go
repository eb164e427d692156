package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sanLimbu/todo-sync/internal"
	"github.com/sanLimbu/todo-sync/internal/postgresql/db"
)

// User represents the repository used for interacting with User records.
type User struct {
	q *db.Queries
}

// NewUser instantiates the User repository.
func NewUser(d db.DBTX) *User {
	return &User{
		q: db.New(d),
	}
}

// Create inserts a new user, passwordHash is nil for accounts created through a magic link.
func (u *User) Create(ctx context.Context, email string, passwordHash *string) (internal.User, error) {
	defer newOTELSpan(ctx, "User.Create").End()

	row, err := u.q.InsertUser(ctx, db.InsertUserParams{
		Email:        email,
		PasswordHash: newText(passwordHash),
	})
	if err != nil {
		if isDuplicateKey(err) {
			return internal.User{}, internal.WrapErrorf(err, internal.ErrorCodeInvalidArgument, "email already registered")
		}

		return internal.User{}, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "insert user")
	}

	return convertUser(row), nil
}

// FindByEmail returns the user and its password hash, the hash is empty when none was set.
func (u *User) FindByEmail(ctx context.Context, email string) (internal.User, string, error) {
	defer newOTELSpan(ctx, "User.FindByEmail").End()

	row, err := u.q.SelectUserByEmail(ctx, email)
	if err != nil {
		if isNoRows(err) {
			return internal.User{}, "", internal.WrapErrorf(err, internal.ErrorCodeNotFound, "user not found")
		}

		return internal.User{}, "", internal.WrapErrorf(err, internal.ErrorCodeUnknown, "select user by email")
	}

	return convertUser(row), row.PasswordHash.String, nil
}

// Find returns the user matching id.
func (u *User) Find(ctx context.Context, id string) (internal.User, error) {
	defer newOTELSpan(ctx, "User.Find").End()

	val, err := parseID(id)
	if err != nil {
		return internal.User{}, internal.WrapErrorf(err, internal.ErrorCodeNotFound, "user not found")
	}

	row, err := u.q.SelectUser(ctx, val)
	if err != nil {
		if isNoRows(err) {
			return internal.User{}, internal.WrapErrorf(err, internal.ErrorCodeNotFound, "user not found")
		}

		return internal.User{}, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "select user")
	}

	return convertUser(row), nil
}

func convertUser(u db.User) internal.User {
	return internal.User{
		ID:        u.ID.String(),
		Email:     u.Email,
		CreatedAt: u.CreatedAt.Time,
	}
}

func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	return false
}
