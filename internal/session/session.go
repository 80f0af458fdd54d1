// Package session holds the user that is logged in for the lifetime of the
// process. Nothing is persisted; every process starts logged out.
package session

import (
	"sync"

	"finance-tracker/internal/models"
)

// Session is the current-user slot.
type Session struct {
	mu   sync.RWMutex
	user *models.User
}

// New returns an empty, logged-out session.
func New() *Session {
	return &Session{}
}

// SetCurrentUser makes u the logged-in user.
func (s *Session) SetCurrentUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// CurrentUser returns the logged-in user or nil.
func (s *Session) CurrentUser() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// IsLoggedIn reports whether a user is logged in.
func (s *Session) IsLoggedIn() bool {
	return s.CurrentUser() != nil
}

// CurrentUserID returns the logged-in user's ID and whether anyone is logged in.
func (s *Session) CurrentUserID() (int64, bool) {
	u := s.CurrentUser()
	if u == nil {
		return 0, false
	}
	return u.ID, true
}

// Logout empties the session.
func (s *Session) Logout() {
	s.SetCurrentUser(nil)
}
