package service

import (
	"strings"
	"time"

	"schoolnotify/internal/model"
)

// DefaultSessionMaxAge is how long after the last login a recipient still
// counts as logged in.
const DefaultSessionMaxAge = 12 * time.Hour

// SessionChecker decides whether a recipient is currently logged in. A cached
// push token alone is not enough: the session must also be recent.
type SessionChecker struct {
	maxAge time.Duration
	now    func() time.Time
}

func NewSessionChecker(maxAge time.Duration) *SessionChecker {
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	return &SessionChecker{maxAge: maxAge, now: time.Now}
}

// IsLoggedIn requires role, uid and push token, plus a parsable lastLoginAt
// no older than the max age.
func (c *SessionChecker) IsLoggedIn(p *model.RecipientProfile) bool {
	if p == nil {
		return false
	}
	if strings.TrimSpace(p.Role) == "" || strings.TrimSpace(p.UID.String()) == "" || strings.TrimSpace(p.FCMToken) == "" {
		return false
	}
	last, ok := p.LastLoginAt.Time()
	if !ok {
		return false
	}
	return c.now().Sub(last) <= c.maxAge
}
