package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/eecmx/citas/libs/db"
	"github.com/google/uuid"
)

const RoleAdmin = "ROLE_ADMIN"

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
}

// UserStore is the persistence the gate and the seed need.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (User, error)
	// CreateIfAbsent inserts u unless the username is taken and reports
	// whether a row was written.
	CreateIfAbsent(ctx context.Context, u User) (bool, error)
}

type UserRepository struct {
	db db.DBTX
}

func NewUserRepository(q db.DBTX) *UserRepository {
	return &UserRepository{db: q}
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := r.db.QueryRow(ctx, `
		SELECT id::text, username, password_hash, rol
		FROM usuarios
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role)
	if db.IsNoRows(err) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %s: %w", username, err)
	}
	return u, nil
}

func (r *UserRepository) CreateIfAbsent(ctx context.Context, u User) (bool, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO usuarios (id, username, password_hash, rol)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO NOTHING
	`, u.ID, u.Username, u.PasswordHash, u.Role)
	if err != nil {
		return false, fmt.Errorf("insert user %s: %w", u.Username, err)
	}
	return tag.RowsAffected() == 1, nil
}
