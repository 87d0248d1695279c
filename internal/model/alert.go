package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// AlertStatus is the read state of an inbox entry.
type AlertStatus string

const (
	StatusUnread AlertStatus = "unread"
	StatusRead   AlertStatus = "read"
)

// AlertItem is one entry of an alert container. Fields the engine does not
// interpret are kept in Extra and forwarded verbatim into the push data.
type AlertItem struct {
	ID        string
	Type      string
	Title     string
	Message   string
	Status    AlertStatus
	StudentID string
	ParentID  string
	CreatedAt Timestamp
	Extra     map[string]string
}

var alertItemKeys = map[string]struct{}{
	"id": {}, "type": {}, "title": {}, "message": {}, "status": {},
	"studentId": {}, "parentId": {}, "createdAt": {},
}

// Kind classifies the raw type string.
func (a AlertItem) Kind() AlertKind {
	return ParseAlertKind(a.Type)
}

// IsUnread reports whether the item is still a dispatch candidate by status.
func (a AlertItem) IsUnread() bool {
	return a.Status == StatusUnread
}

func (a *AlertItem) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*a = AlertItem{
		ID:        rawString(raw["id"]),
		Type:      rawString(raw["type"]),
		Title:     rawString(raw["title"]),
		Message:   rawString(raw["message"]),
		Status:    AlertStatus(strings.ToLower(strings.TrimSpace(rawString(raw["status"])))),
		StudentID: rawString(raw["studentId"]),
		ParentID:  rawString(raw["parentId"]),
	}
	if v, ok := raw["createdAt"]; ok {
		if err := a.CreatedAt.UnmarshalJSON(v); err != nil {
			return err
		}
	}

	for k, v := range raw {
		if _, known := alertItemKeys[k]; known {
			continue
		}
		if a.Extra == nil {
			a.Extra = make(map[string]string)
		}
		a.Extra[k] = rawString(v)
	}
	return nil
}

func (a AlertItem) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Extra)+8)
	for k, v := range a.Extra {
		out[k] = v
	}
	out["id"] = a.ID
	out["type"] = a.Type
	out["title"] = a.Title
	out["message"] = a.Message
	out["status"] = a.Status
	if a.StudentID != "" {
		out["studentId"] = a.StudentID
	}
	if a.ParentID != "" {
		out["parentId"] = a.ParentID
	}
	if a.CreatedAt.Valid() {
		out["createdAt"] = a.CreatedAt
	}
	return json.Marshal(out)
}

// rawString renders a JSON value as a plain string: strings are unquoted,
// null becomes empty, everything else keeps its JSON text.
func rawString(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return ""
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
	}
	return string(v)
}

// FlexString accepts either a JSON string or number. Canonical ids are
// sometimes written as numbers by older clients.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	*f = FlexString(rawString(b))
	return nil
}

func (f FlexString) String() string { return string(f) }
