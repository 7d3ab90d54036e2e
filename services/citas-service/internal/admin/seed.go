package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const DefaultUsername = "admin"

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Seed makes sure the administrator account exists. An existing account is
// left untouched, including its password, so Seed can run on every start.
func Seed(ctx context.Context, users UserStore, username, password string, logger *slog.Logger) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		username = DefaultUsername
	}

	_, err := users.FindByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return false, err
	}
	if password == "" {
		return false, errors.New("ADMIN_PASSWORD is required to create the administrator account")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	created, err := users.CreateIfAbsent(ctx, User{Username: username, PasswordHash: hash, Role: RoleAdmin})
	if err != nil {
		return false, err
	}
	if created {
		logger.Info("administrator account created", "username", username)
	}
	return created, nil
}
