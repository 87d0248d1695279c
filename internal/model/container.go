package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Collection names of the document store.
type Collection string

const (
	CollectionStudentAlerts Collection = "student_alerts"
	CollectionParentAlerts  Collection = "parent_alerts"
	CollectionAdminAlerts   Collection = "admin_alerts"
	CollectionUsers         Collection = "users"
	CollectionLinks         Collection = "parent_student_links"
)

// InboxRole returns the recipient role whose inbox lives in c.
func (c Collection) InboxRole() (Role, bool) {
	switch c {
	case CollectionStudentAlerts:
		return RoleStudent, true
	case CollectionParentAlerts:
		return RoleParent, true
	case CollectionAdminAlerts:
		return RoleAdmin, true
	}
	return "", false
}

// ContainerRef addresses one alert container document.
type ContainerRef struct {
	Collection Collection
	ID         string
}

func (c ContainerRef) String() string {
	return fmt.Sprintf("%s/%s", c.Collection, c.ID)
}

// ContainerDoc is the stored shape of every alert container. Items stay raw
// so one bad entry can be dropped without losing the rest.
type ContainerDoc struct {
	Items []json.RawMessage `json:"items"`
}

// ChangeType is the kind of document change delivered by the feed.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is one document change observed on a subscription. Initial is set
// for documents delivered as part of the snapshot taken when the
// subscription attached.
type Change struct {
	Type      ChangeType
	Container ContainerRef
	Items     []AlertItem
	Initial   bool
}

// Candidate is a newly observed unread alert bound to its recipient.
type Candidate struct {
	Alert       AlertItem
	Role        Role
	RecipientID string
	Container   ContainerRef
}

// Outcome is the terminal state of a candidate.
type Outcome string

const (
	OutcomeRejected Outcome = "rejected"
	OutcomeDeduped  Outcome = "deduped"
	OutcomeSent     Outcome = "sent"
	OutcomeFailed   Outcome = "failed"
)

// DispatchResult reports how a candidate ended.
type DispatchResult struct {
	Outcome   Outcome
	Reason    string
	MessageID string
	Err       error
}

// NotificationLog is the record written for every send attempt.
type NotificationLog struct {
	ID             string
	AlertID        string
	Type           string
	Role           Role
	RecipientID    string
	Title          string
	Message        string
	Status         Outcome
	MessageID      string
	Error          string
	ErrorCode      string
	AlertCreatedAt *time.Time
	AttemptedAt    time.Time
}

// WatchTarget is what a feed subscription observes: a whole collection, or a
// single document when DocID is set.
type WatchTarget struct {
	Collection Collection
	DocID      string
}

func (t WatchTarget) String() string {
	if t.DocID == "" {
		return string(t.Collection)
	}
	return fmt.Sprintf("%s/%s", t.Collection, t.DocID)
}

// Covers reports whether ref falls under t.
func (t WatchTarget) Covers(ref ContainerRef) bool {
	return ref.Collection == t.Collection && (t.DocID == "" || t.DocID == ref.ID)
}
