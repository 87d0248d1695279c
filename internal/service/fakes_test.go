package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"schoolnotify/internal/model"
	"schoolnotify/internal/push"
	"schoolnotify/internal/util"
)

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*model.RecipientProfile
	err      error
	reads    int
}

func (f *fakeProfiles) GetProfile(_ context.Context, id string) (*model.RecipientProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

type fakeLinks struct {
	mu      sync.Mutex
	links   []model.ParentStudentLink
	err     error
	queries []model.LinkQuery
}

func matches(field model.FlexString, want string) bool {
	return want == "" || util.SameID(field.String(), want)
}

func (f *fakeLinks) FindLinks(_ context.Context, q model.LinkQuery) ([]model.ParentStudentLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}

	var out []model.ParentStudentLink
	for _, l := range f.links {
		if !matches(l.ParentID, q.ParentID) || !matches(l.StudentID, q.StudentID) ||
			!matches(l.ParentIDNumber, q.ParentIDNumber) || !matches(l.StudentIDNumber, q.StudentIDNumber) {
			continue
		}
		if q.Status != "" && l.Status != q.Status {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// clockDedup is a cooldown deduplicator driven by a settable clock.
type clockDedup struct {
	mu       sync.Mutex
	now      time.Time
	cooldown time.Duration
	entries  map[string]time.Time
	marked   int
}

func newClockDedup() *clockDedup {
	return &clockDedup{now: testNow, cooldown: 5 * time.Minute, entries: map[string]time.Time{}}
}

func (d *clockDedup) advance(by time.Duration) {
	d.mu.Lock()
	d.now = d.now.Add(by)
	d.mu.Unlock()
}

func (d *clockDedup) TryAcquire(_ context.Context, alertID, recipientID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := alertID + "|" + util.NormalizeID(recipientID)
	if last, ok := d.entries[key]; ok && d.now.Sub(last) < d.cooldown {
		return false
	}
	d.entries[key] = d.now
	return true
}

func (d *clockDedup) MarkSent(_ context.Context, alertID, recipientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[alertID+"|"+util.NormalizeID(recipientID)] = d.now
	d.marked++
}

func (d *clockDedup) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

type recordingTransport struct {
	mu   sync.Mutex
	sent []push.Message
	err  error
	hook func(msg push.Message)
}

func (t *recordingTransport) Name() string { return "recording" }

func (t *recordingTransport) Send(_ context.Context, msg push.Message) (string, error) {
	if t.hook != nil {
		t.hook(msg)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return "", t.err
	}
	t.sent = append(t.sent, msg)
	return "msg-" + msg.Data["alertId"], nil
}

func (t *recordingTransport) messages() []push.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]push.Message(nil), t.sent...)
}

type recordingSink struct {
	mu      sync.Mutex
	entries []model.NotificationLog
}

func (s *recordingSink) Record(_ context.Context, entry model.NotificationLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func (s *recordingSink) all() []model.NotificationLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.NotificationLog(nil), s.entries...)
}

// fixture wires a processor over fakes with the session clock pinned to testNow.
type fixture struct {
	profiles  *fakeProfiles
	links     *fakeLinks
	dedup     *clockDedup
	transport *recordingTransport
	sink      *recordingSink
	verifier  *EligibilityVerifier
	processor *AlertProcessor
}

func newFixture() *fixture {
	logger := zap.NewNop()
	f := &fixture{
		profiles:  &fakeProfiles{profiles: map[string]*model.RecipientProfile{}},
		links:     &fakeLinks{},
		dedup:     newClockDedup(),
		transport: &recordingTransport{},
		sink:      &recordingSink{},
	}

	sessions := NewSessionChecker(DefaultSessionMaxAge)
	sessions.now = fixedClock()
	resolver := NewRelationshipResolver(f.links, time.Second, logger)
	f.verifier = NewEligibilityVerifier(f.profiles, sessions, resolver, "admin", time.Second, logger)

	dispatcher := NewDispatcher(f.transport, f.dedup, f.sink, time.Second, logger)
	dispatcher.now = fixedClock()
	f.processor = NewAlertProcessor(f.verifier, f.dedup, dispatcher, logger)
	return f
}

func parentProfile() *model.RecipientProfile {
	return &model.RecipientProfile{
		Role:           "parent",
		UID:            "P1",
		ParentID:       "P1",
		ParentIDNumber: "PN-001",
		FCMToken:       "PT1",
		LastLoginAt:    model.NewTimestamp(testNow.Add(-time.Hour)),
	}
}

func adminProfile() *model.RecipientProfile {
	return &model.RecipientProfile{
		Role:        "admin",
		UID:         "admin",
		FCMToken:    "AT1",
		LastLoginAt: model.NewTimestamp(testNow.Add(-time.Hour)),
	}
}

func unreadAlert(id, kind string) model.AlertItem {
	return model.AlertItem{
		ID:        id,
		Type:      kind,
		Title:     "Title " + id,
		Message:   "Message " + id,
		Status:    model.StatusUnread,
		CreatedAt: model.NewTimestamp(testNow),
	}
}
