package model

import "strings"

// AlertKind is the closed set of alert types the engine routes on.
type AlertKind string

const (
	KindLinkRequest     AlertKind = "link_request"
	KindLinkResponse    AlertKind = "link_response"
	KindScheduleAdded   AlertKind = "schedule_added"
	KindScheduleUpdated AlertKind = "schedule_updated"
	KindScheduleRemoved AlertKind = "schedule_removed"
	KindAttendanceScan  AlertKind = "attendance_scan"
	KindQRRequest       AlertKind = "qr_request"
	KindGeneric         AlertKind = "alert"
)

// AdminPolicy decides whether the admin inbox may receive a kind.
type AdminPolicy int

const (
	// AdminUnlessOwned accepts the alert for admin only when it carries
	// neither a studentId nor a parentId.
	AdminUnlessOwned AdminPolicy = iota
	// AdminAlways accepts the alert for admin even when it names a student.
	AdminAlways
	// AdminNever rejects the alert for admin.
	AdminNever
)

// Route describes how a kind may be delivered.
type Route struct {
	Admin AdminPolicy
	// AttendanceClass kinds prefer the link-scoped parent token.
	AttendanceClass bool
}

var routes = map[AlertKind]Route{
	KindLinkRequest:     {Admin: AdminNever},
	KindLinkResponse:    {Admin: AdminNever},
	KindScheduleAdded:   {Admin: AdminNever},
	KindScheduleUpdated: {Admin: AdminNever},
	KindScheduleRemoved: {Admin: AdminNever},
	KindAttendanceScan:  {Admin: AdminNever, AttendanceClass: true},
	KindQRRequest:       {Admin: AdminAlways},
	KindGeneric:         {Admin: AdminUnlessOwned},
}

var kindAliases = map[string]AlertKind{
	"attendance":              KindAttendanceScan,
	"attendance_notification": KindAttendanceScan,
	"scan":                    KindAttendanceScan,
	"link_approved":           KindLinkResponse,
	"link_rejected":           KindLinkResponse,
	"schedule_deleted":        KindScheduleRemoved,
	"generic":                 KindGeneric,
}

// ParseAlertKind maps a producer-written type to a kind. Case, spaces and
// hyphens are ignored; anything unrecognised is generic.
func ParseAlertKind(s string) AlertKind {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	if _, ok := routes[AlertKind(s)]; ok {
		return AlertKind(s)
	}
	if k, ok := kindAliases[s]; ok {
		return k
	}
	return KindGeneric
}

// Route returns the routing rule for k.
func (k AlertKind) Route() Route {
	if r, ok := routes[k]; ok {
		return r
	}
	return routes[KindGeneric]
}
