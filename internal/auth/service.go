package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"finance-tracker/internal/models"
	"finance-tracker/internal/session"
	"finance-tracker/internal/storage"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"
)

const (
	MinUsernameLength = 3
	MinPasswordLength = 6
)

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrUsernameTooShort   = fmt.Errorf("username must be at least %d characters", MinUsernameLength)
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidEmail       = errors.New("email address is not valid")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// UserStore is the persistence the auth service needs.
type UserStore interface {
	Save(ctx context.Context, u *models.User) error
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}

// Clearer drops cached per-user data on logout.
type Clearer interface {
	Clear()
}

// Service registers users and manages the login session.
type Service struct {
	users   UserStore
	session *session.Session
	data    Clearer
	cost    int
}

// NewService creates an auth Service. A cost of zero means DefaultCost.
// data may be nil when nothing needs clearing on logout.
func NewService(users UserStore, sess *session.Session, data Clearer, cost int) *Service {
	if cost == 0 {
		cost = DefaultCost
	}
	return &Service{users: users, session: sess, data: data, cost: cost}
}

// Register creates a new account. email may be empty.
func (s *Service) Register(ctx context.Context, username, password, email string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	exists, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUsernameTaken
	}
	if utf8.RuneCountInString(username) < MinUsernameLength {
		return nil, ErrUsernameTooShort
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	if email != "" {
		if err := checkmail.ValidateFormat(email); err != nil {
			return nil, ErrInvalidEmail
		}
	}

	hash, err := HashPasswordCost(password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Username: username, PasswordHash: hash, Email: email}
	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("user registered")
	return user, nil
}

// Login checks the credentials and makes the user current. Unknown users and
// wrong passwords both yield ErrInvalidCredentials. Switching to a different
// user drops the previous user's cached data.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	log := logrus.WithField("username", username)

	user, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("login failed")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(password, user.PasswordHash) {
		log.Warn("login failed")
		return nil, ErrInvalidCredentials
	}

	if id, ok := s.session.CurrentUserID(); ok && id != user.ID && s.data != nil {
		s.data.Clear()
	}
	s.session.SetCurrentUser(user)
	log.WithField("user_id", user.ID).Info("user logged in")
	return user, nil
}

// Logout ends the session and drops the cached user data.
func (s *Service) Logout() {
	if id, ok := s.session.CurrentUserID(); ok {
		logrus.WithField("user_id", id).Info("user logged out")
	}
	s.session.Logout()
	if s.data != nil {
		s.data.Clear()
	}
}
