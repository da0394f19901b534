package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/tathmini/backend/core"
	"github.com/tathmini/backend/core/user"
)

// last_login is nullable; a missing value surfaces as the zero time.
const userColumns = `id, email, first_name, last_name, q_number, role, is_active, password_hash,
	created_at, updated_at, COALESCE(last_login, '0001-01-01T00:00:00Z') AS last_login`

type userRepository struct {
	db core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DBExecutor) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	ex := executor(repo.db, exec)

	excluded := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded = append(excluded, usr.ID)
	}

	var exists bool
	err := ex.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM "user" WHERE email = $1 AND NOT (id = ANY($2::uuid[])))`,
		email, pq.Array(excluded),
	).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	ex := executor(repo.db, exec)

	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO "user" (id, email, first_name, last_name, q_number, role, is_active, password_hash,
			created_at, updated_at, last_login)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		usr.ID, usr.Email, usr.FirstName, usr.LastName, usr.QNumber, usr.Role, usr.IsActive,
		usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt, nullTime(usr.LastLogin),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	ex := executor(repo.db, exec)

	orderBy := "email ASC"
	if len(ordering) > 0 {
		clauses := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			clauses = append(clauses, ord.String())
		}
		orderBy = strings.Join(clauses, ", ")
	}

	var users []user.User
	err := selectCtx(ctx, ex, &users, `SELECT `+userColumns+` FROM "user" ORDER BY `+orderBy)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	ex := executor(repo.db, exec)

	where, arg := "id = $1", filter.ID
	if filter.ID == "" {
		where, arg = "email = $1", filter.Email
	}

	var users []user.User
	err := selectCtx(ctx, ex, &users, `SELECT `+userColumns+` FROM "user" WHERE `+where, arg)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting user")
	}
	if len(users) == 0 {
		return user.User{}, user.ErrNotFound
	}
	return users[0], nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	ex := executor(repo.db, exec)

	res, err := ex.ExecContext(ctx,
		`UPDATE "user"
		 SET email = $2, first_name = $3, last_name = $4, q_number = $5, role = $6, is_active = $7,
			 password_hash = $8, updated_at = $9, last_login = $10
		 WHERE id = $1`,
		usr.ID, usr.Email, usr.FirstName, usr.LastName, usr.QNumber, usr.Role, usr.IsActive,
		usr.PasswordHash, usr.UpdatedAt, nullTime(usr.LastLogin),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
