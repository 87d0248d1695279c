package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"schoolnotify/internal/model"
	"schoolnotify/internal/util"
)

// LinkFinder queries parent_student_links.
type LinkFinder interface {
	FindLinks(ctx context.Context, q model.LinkQuery) ([]model.ParentStudentLink, error)
}

// LinkResolution is the outcome of resolving a parent/student relationship.
type LinkResolution struct {
	Active      bool
	LinkID      string
	ScopedToken string
}

// RelationshipResolver finds the active link between a parent and a student,
// first by account uid and then by canonical id numbers.
type RelationshipResolver struct {
	links       LinkFinder
	readTimeout time.Duration
	logger      *zap.Logger
}

func NewRelationshipResolver(links LinkFinder, readTimeout time.Duration, logger *zap.Logger) *RelationshipResolver {
	return &RelationshipResolver{
		links:       links,
		readTimeout: readTimeout,
		logger:      logger.Named("relationship"),
	}
}

// Resolve looks up an active link. The link-scoped token is only returned for
// attendance-class kinds; other kinds always use the profile token.
func (r *RelationshipResolver) Resolve(ctx context.Context, parentUID, parentCanonicalID, studentID string, kind model.AlertKind) (LinkResolution, error) {
	queries := []model.LinkQuery{{
		ParentID:  parentUID,
		StudentID: studentID,
		Status:    model.LinkActive,
	}}
	if parentCanonicalID != "" && util.NormalizeID(parentCanonicalID) != util.NormalizeID(parentUID) {
		queries = append(queries, model.LinkQuery{
			ParentIDNumber:  parentCanonicalID,
			StudentIDNumber: studentID,
			Status:          model.LinkActive,
		})
	}

	for _, q := range queries {
		if q.ParentID == "" && q.ParentIDNumber == "" {
			continue
		}
		link, found, err := r.first(ctx, q)
		if err != nil {
			return LinkResolution{}, err
		}
		if !found {
			continue
		}

		res := LinkResolution{Active: link.IsActive(), LinkID: link.ID}
		if kind.Route().AttendanceClass {
			res.ScopedToken = link.ParentFCMToken
		}
		r.logger.Debug("Resolved parent link",
			zap.String("link_id", link.ID),
			zap.Bool("active", res.Active),
			zap.Bool("scoped_token", res.ScopedToken != ""),
		)
		return res, nil
	}

	return LinkResolution{}, nil
}

func (r *RelationshipResolver) first(ctx context.Context, q model.LinkQuery) (model.ParentStudentLink, bool, error) {
	readCtx, cancel := withTimeout(ctx, r.readTimeout)
	defer cancel()

	links, err := r.links.FindLinks(readCtx, q)
	if err != nil {
		return model.ParentStudentLink{}, false, fmt.Errorf("query parent links: %w", err)
	}
	if len(links) == 0 {
		return model.ParentStudentLink{}, false, nil
	}
	return links[0], true, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
