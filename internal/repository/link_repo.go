package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"schoolnotify/internal/model"
	"schoolnotify/internal/util"
)

// LinkRepository queries parent_student_links.
type LinkRepository struct {
	store  *DocumentStore
	logger *zap.Logger
}

func NewLinkRepository(store *DocumentStore, logger *zap.Logger) *LinkRepository {
	return &LinkRepository{
		store:  store,
		logger: logger.Named("links"),
	}
}

// normalizedField compares a document field the way util.NormalizeID does.
func normalizedField(field string) string {
	return fmt.Sprintf("lower(btrim(replace(data->>'%s', '-', '')))", field)
}

// buildLinkFilter turns q into a where clause whose placeholders start at $2.
func buildLinkFilter(q model.LinkQuery) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(field, value string, normalize bool) {
		if value == "" {
			return
		}
		column := fmt.Sprintf("data->>'%s'", field)
		if normalize {
			column = normalizedField(field)
			value = util.NormalizeID(value)
		}
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)+1))
	}

	add("parentId", q.ParentID, true)
	add("studentId", q.StudentID, true)
	add("parentIdNumber", q.ParentIDNumber, true)
	add("studentIdNumber", q.StudentIDNumber, true)
	add("status", string(q.Status), false)

	if len(clauses) == 0 {
		return "TRUE", nil
	}
	return strings.Join(clauses, " AND "), args
}

func (r *LinkRepository) FindLinks(ctx context.Context, q model.LinkQuery) ([]model.ParentStudentLink, error) {
	where, args := buildLinkFilter(q)
	docs, err := r.store.Find(ctx, model.CollectionLinks, where, args...)
	if err != nil {
		return nil, fmt.Errorf("find links: %w", err)
	}

	links := make([]model.ParentStudentLink, 0, len(docs))
	for _, d := range docs {
		var l model.ParentStudentLink
		if err := json.Unmarshal(d.Data, &l); err != nil {
			r.logger.Warn("Skipping undecodable link document",
				zap.String("link_id", d.ID),
				zap.Error(err),
			)
			continue
		}
		l.ID = d.ID
		links = append(links, l)
	}
	return links, nil
}
