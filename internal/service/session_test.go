package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"schoolnotify/internal/model"
)

var testNow = time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time { return func() time.Time { return testNow } }

func freshProfile() *model.RecipientProfile {
	return &model.RecipientProfile{
		Role:        "student",
		UID:         "U1",
		StudentID:   "S1",
		FCMToken:    "T1",
		LastLoginAt: model.NewTimestamp(testNow.Add(-time.Hour)),
	}
}

func TestSessionChecker_Window(t *testing.T) {
	c := NewSessionChecker(0)
	c.now = fixedClock()

	p := freshProfile()
	p.LastLoginAt = model.NewTimestamp(testNow.Add(-(11*time.Hour + 59*time.Minute)))
	assert.True(t, c.IsLoggedIn(p))

	p.LastLoginAt = model.NewTimestamp(testNow.Add(-(12*time.Hour + time.Minute)))
	assert.False(t, c.IsLoggedIn(p))

	p.LastLoginAt = model.NewTimestamp(testNow.Add(-12 * time.Hour))
	assert.True(t, c.IsLoggedIn(p), "exactly at the boundary is still fresh")
}

func TestSessionChecker_MissingFields(t *testing.T) {
	c := NewSessionChecker(DefaultSessionMaxAge)
	c.now = fixedClock()

	tests := []struct {
		name   string
		mutate func(p *model.RecipientProfile)
	}{
		{"no role", func(p *model.RecipientProfile) { p.Role = "" }},
		{"no uid", func(p *model.RecipientProfile) { p.UID = "" }},
		{"blank token", func(p *model.RecipientProfile) { p.FCMToken = "  " }},
		{"no login time", func(p *model.RecipientProfile) { p.LastLoginAt = model.Timestamp{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := freshProfile()
			tt.mutate(p)
			assert.False(t, c.IsLoggedIn(p))
		})
	}

	assert.False(t, c.IsLoggedIn(nil))
	assert.True(t, c.IsLoggedIn(freshProfile()))
}
