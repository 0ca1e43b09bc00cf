// Package auth registers users, checks passwords and issues and verifies the
// bearer tokens that guard the API.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ansel1/merry"
	"github.com/powerman/structlog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"quotations/internal/apperr"
	"quotations/internal/config"
	"quotations/internal/db"
	"quotations/models"
)

const (
	minUsername = 3
	maxUsername = 64
	minPassword = 6
	// bcrypt ignores everything past 72 bytes.
	maxPassword = 72
)

// Gate is the authentication boundary. On success it has no side effects
// beyond resolving who the caller is.
type Gate struct {
	db  *gorm.DB
	cfg config.AuthConfig
	log *structlog.Logger
	now func() time.Time
	// dummyHash keeps unknown-user logins as slow as wrong-password ones.
	dummyHash []byte
}

func New(gdb *gorm.DB, cfg config.AuthConfig, log *structlog.Logger) *Gate {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	cfg.BcryptCost = cost
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	return &Gate{db: gdb, cfg: cfg, log: log, now: time.Now, dummyHash: dummy}
}

func validateCredentials(username, password string) error {
	if n := utf8.RuneCountInString(username); n < minUsername || n > maxUsername {
		return apperr.Validation(fmt.Sprintf("username must be %d to %d characters", minUsername, maxUsername))
	}
	if len(password) < minPassword {
		return apperr.Validation(fmt.Sprintf("password too short (min %d)", minPassword))
	}
	if len(password) > maxPassword {
		return apperr.Validation(fmt.Sprintf("password too long (max %d bytes)", maxPassword))
	}
	return nil
}

func (g *Gate) hash(password string) ([]byte, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), g.cfg.BcryptCost)
	return h, merry.Wrap(err)
}

func (g *Gate) findByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := g.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if db.IsNotFound(err) {
		return nil, apperr.NotFound(fmt.Sprintf("user %q not found", username))
	}
	if err != nil {
		return nil, merry.Wrap(err)
	}
	return &u, nil
}

// Register creates a user storing only the bcrypt hash of password.
func (g *Gate) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}
	if _, err := g.findByUsername(ctx, username); err == nil {
		return nil, apperr.Conflict(fmt.Sprintf("username %q is already taken", username))
	} else if !apperr.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	hashed, err := g.hash(password)
	if err != nil {
		return nil, err
	}
	u := models.User{Username: username, HashedPassword: hashed}
	if err := g.db.WithContext(ctx).Create(&u).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict(fmt.Sprintf("username %q is already taken", username))
		}
		return nil, merry.Wrap(err)
	}
	g.log.Info("user registered", "id", u.ID, "username", u.Username)
	return &u, nil
}

// Authenticate checks the password and issues a bearer token. Unknown users and
// wrong passwords are indistinguishable to the caller.
func (g *Gate) Authenticate(ctx context.Context, username, password string) (Token, error) {
	username = strings.TrimSpace(username)
	u, err := g.findByUsername(ctx, username)
	switch {
	case apperr.Is(err, apperr.ErrNotFound):
		_ = bcrypt.CompareHashAndPassword(g.dummyHash, []byte(password))
		return Token{}, apperr.Unauthorized("invalid credentials")
	case err != nil:
		return Token{}, err
	}
	if err := bcrypt.CompareHashAndPassword(u.HashedPassword, []byte(password)); err != nil {
		return Token{}, apperr.Unauthorized("invalid credentials")
	}
	return g.IssueToken(u)
}

// ResolveCurrentUser verifies token and loads the user it names.
func (g *Gate) ResolveCurrentUser(ctx context.Context, token string) (*models.User, error) {
	id, err := g.parseToken(token)
	if err != nil {
		return nil, err
	}
	var u models.User
	err = g.db.WithContext(ctx).First(&u, id).Error
	if db.IsNotFound(err) {
		return nil, apperr.Unauthorized("user no longer exists")
	}
	if err != nil {
		return nil, merry.Wrap(err)
	}
	return &u, nil
}

func (g *Gate) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := g.db.WithContext(ctx).Order("id").Find(&users).Error
	return users, merry.Wrap(err)
}

// DeleteUser removes a user; tokens already issued to it stop resolving.
func (g *Gate) DeleteUser(ctx context.Context, id uint) error {
	res := g.db.WithContext(ctx).Delete(&models.User{}, id)
	if res.Error != nil {
		return merry.Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound(fmt.Sprintf("user %d not found", id))
	}
	g.log.Info("user deleted", "id", id)
	return nil
}

// ResetPassword replaces the password hash of an existing user.
func (g *Gate) ResetPassword(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return err
	}
	u, err := g.findByUsername(ctx, username)
	if err != nil {
		return err
	}
	hashed, err := g.hash(password)
	if err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Model(u).Update("hashed_password", hashed).Error; err != nil {
		return merry.Wrap(err)
	}
	g.log.Info("password reset", "username", username)
	return nil
}

// EnsureUser registers username unless it already exists. It reports whether
// a user was created.
func (g *Gate) EnsureUser(ctx context.Context, username, password string) (bool, error) {
	_, err := g.Register(ctx, username, password)
	switch {
	case err == nil:
		return true, nil
	case apperr.Is(err, apperr.ErrConflict):
		return false, nil
	}
	return false, err
}
