package model

// Role is the kind of account an inbox belongs to.
type Role string

const (
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
	RoleAdmin   Role = "admin"
)

// RecipientProfile is the users/{id} document.
type RecipientProfile struct {
	Role            string     `json:"role"`
	UID             FlexString `json:"uid"`
	StudentID       FlexString `json:"studentId"`
	ParentID        FlexString `json:"parentId"`
	ParentIDNumber  FlexString `json:"parentIdNumber"`
	StudentIDNumber FlexString `json:"studentIdNumber"`
	FCMToken        string     `json:"fcmToken"`
	LastLoginAt     Timestamp  `json:"lastLoginAt"`
}

// LinkStatus is the state of a parent/student relationship.
type LinkStatus string

const (
	LinkPending LinkStatus = "pending"
	LinkActive  LinkStatus = "active"
)

// ParentStudentLink is a parent_student_links/{linkId} document.
type ParentStudentLink struct {
	ID              string     `json:"-"`
	ParentID        FlexString `json:"parentId"`
	StudentID       FlexString `json:"studentId"`
	ParentIDNumber  FlexString `json:"parentIdNumber"`
	StudentIDNumber FlexString `json:"studentIdNumber"`
	Status          LinkStatus `json:"status"`
	ParentFCMToken  string     `json:"parentFcmToken,omitempty"`
}

// IsActive reports whether the link is approved.
func (l ParentStudentLink) IsActive() bool {
	return l.Status == LinkActive
}

// LinkQuery filters links by either the uid pair or the canonical id pair.
// Empty fields are not filtered on.
type LinkQuery struct {
	ParentID        string
	StudentID       string
	ParentIDNumber  string
	StudentIDNumber string
	Status          LinkStatus
}
