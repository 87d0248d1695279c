package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"schoolnotify/internal/model"
	"schoolnotify/internal/util"
)

// Reject reasons, one per guard.
const (
	ReasonProfileMissing     = "profile_missing"
	ReasonProfileReadFailed  = "profile_read_failed"
	ReasonSessionStale       = "session_stale"
	ReasonRoleMismatch       = "role_mismatch"
	ReasonOwnerMismatch      = "owner_mismatch"
	ReasonAdminTypeExcluded  = "admin_type_excluded"
	ReasonAlertOwnerMismatch = "alert_owner_mismatch"
	ReasonMissingStudent     = "parent_alert_missing_student"
	ReasonLinkReadFailed     = "link_read_failed"
	ReasonNoActiveLink       = "no_active_link"
	ReasonEmptyToken         = "empty_token"
)

// ProfileReader reads users/{id}. A missing document is (nil, nil).
type ProfileReader interface {
	GetProfile(ctx context.Context, id string) (*model.RecipientProfile, error)
}

// Verdict is the outcome of verification. Alert carries any recipient id
// imputed onto the alert; Token is the effective delivery token.
type Verdict struct {
	OK     bool
	Reason string
	Token  string
	Alert  model.AlertItem
	Err    error
}

// verification is the state threaded through the guard chain.
type verification struct {
	alert       model.AlertItem
	role        model.Role
	recipientID string
	profile     *model.RecipientProfile
	token       string
	reason      string
	err         error
}

type guard func(ctx context.Context, v *verification) bool

// EligibilityVerifier decides whether a recipient may receive an alert.
type EligibilityVerifier struct {
	profiles    ProfileReader
	sessions    *SessionChecker
	resolver    *RelationshipResolver
	adminID     string
	readTimeout time.Duration
	logger      *zap.Logger
	guards      []guard
}

func NewEligibilityVerifier(
	profiles ProfileReader,
	sessions *SessionChecker,
	resolver *RelationshipResolver,
	adminID string,
	readTimeout time.Duration,
	logger *zap.Logger,
) *EligibilityVerifier {
	v := &EligibilityVerifier{
		profiles:    profiles,
		sessions:    sessions,
		resolver:    resolver,
		adminID:     adminID,
		readTimeout: readTimeout,
		logger:      logger.Named("verifier"),
	}
	v.guards = []guard{
		v.readProfile,
		v.checkSession,
		v.checkRole,
		v.checkOwnership,
		v.checkAdminType,
		v.checkAlertOwnership,
		v.checkParentLink,
		v.checkToken,
	}
	return v
}

// Verify runs the guard chain and stops at the first rejection.
func (v *EligibilityVerifier) Verify(ctx context.Context, alert model.AlertItem, role model.Role, recipientID string) Verdict {
	state := &verification{
		alert:       alert,
		role:        role,
		recipientID: recipientID,
	}

	for _, g := range v.guards {
		if !g(ctx, state) {
			v.logger.Debug("Alert rejected",
				zap.String("alert_id", alert.ID),
				zap.String("role", string(role)),
				zap.String("recipient_id", recipientID),
				zap.String("reason", state.reason),
			)
			return Verdict{
				OK:     false,
				Reason: state.reason,
				Alert:  state.alert,
				Err:    state.err,
			}
		}
	}

	return Verdict{
		OK:    true,
		Token: state.token,
		Alert: state.alert,
	}
}

func (v *EligibilityVerifier) readProfile(ctx context.Context, s *verification) bool {
	readCtx, cancel := withTimeout(ctx, v.readTimeout)
	defer cancel()

	p, err := v.profiles.GetProfile(readCtx, s.recipientID)
	if err != nil {
		s.reason = ReasonProfileReadFailed
		s.err = fmt.Errorf("read profile %s: %w", s.recipientID, err)
		return false
	}
	if p == nil {
		s.reason = ReasonProfileMissing
		return false
	}
	s.profile = p
	s.token = strings.TrimSpace(p.FCMToken)
	return true
}

func (v *EligibilityVerifier) checkSession(_ context.Context, s *verification) bool {
	if !v.sessions.IsLoggedIn(s.profile) {
		s.reason = ReasonSessionStale
		return false
	}
	return true
}

func (v *EligibilityVerifier) checkRole(_ context.Context, s *verification) bool {
	if util.NormalizeID(s.profile.Role) != string(s.role) {
		s.reason = ReasonRoleMismatch
		return false
	}
	return true
}

func (v *EligibilityVerifier) checkOwnership(_ context.Context, s *verification) bool {
	ok := false
	switch s.role {
	case model.RoleStudent:
		ok = util.SameID(s.profile.StudentID.String(), s.recipientID)
	case model.RoleParent:
		ok = util.SameID(s.profile.ParentID.String(), s.recipientID) ||
			util.SameID(s.profile.ParentIDNumber.String(), s.recipientID)
	case model.RoleAdmin:
		ok = util.SameID(s.recipientID, v.adminID)
		if ok && s.profile.UID != "" {
			ok = util.SameID(s.profile.UID.String(), s.recipientID)
		}
	}
	if !ok {
		s.reason = ReasonOwnerMismatch
	}
	return ok
}

// checkAdminType applies the routing table to the admin inbox.
func (v *EligibilityVerifier) checkAdminType(_ context.Context, s *verification) bool {
	if s.role != model.RoleAdmin {
		return true
	}

	ok := false
	switch s.alert.Kind().Route().Admin {
	case model.AdminAlways:
		ok = true
	case model.AdminNever:
		ok = false
	case model.AdminUnlessOwned:
		ok = s.alert.StudentID == "" && s.alert.ParentID == ""
	}
	if !ok {
		s.reason = ReasonAdminTypeExcluded
	}
	return ok
}

// checkAlertOwnership makes sure an owned alert belongs to this inbox, and
// stamps the recipient onto alerts that carry no owner.
func (v *EligibilityVerifier) checkAlertOwnership(_ context.Context, s *verification) bool {
	var owner *string
	switch s.role {
	case model.RoleStudent:
		owner = &s.alert.StudentID
	case model.RoleParent:
		owner = &s.alert.ParentID
	default:
		return true
	}

	if *owner == "" {
		*owner = s.recipientID
		return true
	}
	if !util.SameID(*owner, s.recipientID) {
		s.reason = ReasonAlertOwnerMismatch
		return false
	}
	return true
}

func (v *EligibilityVerifier) checkParentLink(ctx context.Context, s *verification) bool {
	if s.role != model.RoleParent {
		return true
	}
	if strings.TrimSpace(s.alert.StudentID) == "" {
		s.reason = ReasonMissingStudent
		return false
	}

	canonical := s.profile.ParentIDNumber.String()
	if canonical == "" {
		canonical = s.recipientID
	}
	res, err := v.resolver.Resolve(ctx, s.profile.UID.String(), canonical, s.alert.StudentID, s.alert.Kind())
	if err != nil {
		s.reason = ReasonLinkReadFailed
		s.err = err
		return false
	}
	if !res.Active {
		s.reason = ReasonNoActiveLink
		return false
	}
	if token := strings.TrimSpace(res.ScopedToken); token != "" {
		s.token = token
	}
	return true
}

func (v *EligibilityVerifier) checkToken(_ context.Context, s *verification) bool {
	if s.token == "" {
		s.reason = ReasonEmptyToken
		return false
	}
	return true
}
