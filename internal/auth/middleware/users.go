package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type User struct {
	ID       string
	Username string
	Role     string
}

// UserRepo reads and writes the users table.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// Upsert creates the user or replaces role and password of an existing one.
func (u *UserRepo) Upsert(ctx context.Context, username, password, role string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, errors.New("username and password required")
	}
	switch role {
	case "student", "teacher", "admin":
	default:
		return User{}, fmt.Errorf("unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	id := uuid.NewString()
	_, err = u.db.ExecContext(ctx, `INSERT INTO users (id, username, role, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (username) DO UPDATE SET role=EXCLUDED.role, password_hash=EXCLUDED.password_hash`,
		id, username, role, string(hash), time.Now().Unix())
	if err != nil {
		return User{}, err
	}
	return u.lookup(ctx, username)
}

// Verify checks a username/password pair against the stored bcrypt hash.
func (u *UserRepo) Verify(ctx context.Context, username, password string) (User, error) {
	var (
		usr  User
		hash string
	)
	err := u.db.QueryRowContext(ctx,
		`SELECT id, username, role, password_hash FROM users WHERE username=$1`, username).
		Scan(&usr.ID, &usr.Username, &usr.Role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return usr, nil
}

// RoleOf returns the stored role for a user id or username.
func (u *UserRepo) RoleOf(ctx context.Context, sub string) (string, error) {
	var role string
	err := u.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1 OR username=$1`, sub).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	return role, err
}

func (u *UserRepo) lookup(ctx context.Context, username string) (User, error) {
	var usr User
	err := u.db.QueryRowContext(ctx, `SELECT id, username, role FROM users WHERE username=$1`, username).
		Scan(&usr.ID, &usr.Username, &usr.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return usr, err
}
