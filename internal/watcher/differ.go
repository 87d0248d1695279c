package watcher

import (
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"schoolnotify/internal/model"
)

var embeddedMillis = regexp.MustCompile(`\d{13}`)

// alertTime returns createdAt, falling back to a millisecond timestamp
// embedded in the id (ids minted as "<prefix>_<epochMillis>").
func alertTime(a model.AlertItem) (time.Time, bool) {
	if t, ok := a.CreatedAt.Time(); ok {
		return t, true
	}
	m := embeddedMillis.FindString(a.ID)
	if m == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return model.EpochMillis(ms), true
}

// Differ tracks one container's watermark and seen alert ids and turns each
// snapshot into the candidates that are new since the last one. It is owned
// by a single container worker and is not safe for concurrent use.
type Differ struct {
	ref         model.ContainerRef
	role        model.Role
	recipientID string
	since       time.Time
	now         func() time.Time
	logger      *zap.Logger

	attached  bool
	watermark time.Time
	seen      map[string]struct{}
}

// NewDiffer returns a Differ for ref. since is the watermark used when the
// container first shows up without an initial snapshot.
func NewDiffer(ref model.ContainerRef, role model.Role, recipientID string, since time.Time, now func() time.Time, logger *zap.Logger) *Differ {
	return &Differ{
		ref:         ref,
		role:        role,
		recipientID: recipientID,
		since:       since,
		now:         now,
		logger:      logger,
		seen:        make(map[string]struct{}),
	}
}

// Watermark returns the instant before which alerts are treated as backlog.
func (d *Differ) Watermark() time.Time { return d.watermark }

// Apply consumes a snapshot. The initial snapshot only establishes the
// baseline; later snapshots yield unread, unseen alerts created after the
// watermark.
func (d *Differ) Apply(change model.Change) []model.Candidate {
	if change.Initial {
		d.attached = true
		d.watermark = d.now()
		d.seen = idSet(change.Items)
		return nil
	}
	if !d.attached {
		d.attached = true
		d.watermark = d.since
		d.seen = make(map[string]struct{})
	}

	var out []model.Candidate
	for _, item := range change.Items {
		if item.ID == "" {
			d.logger.Warn("Skipping alert without id", zap.String("container", d.ref.String()))
			continue
		}
		if _, ok := d.seen[item.ID]; ok {
			continue
		}
		if !item.IsUnread() {
			continue
		}
		created, ok := alertTime(item)
		if !ok || !created.After(d.watermark) {
			continue
		}
		out = append(out, model.Candidate{
			Alert:       item,
			Role:        d.role,
			RecipientID: d.recipientID,
			Container:   d.ref,
		})
	}

	d.seen = idSet(change.Items)
	return out
}

func idSet(items []model.AlertItem) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.ID != "" {
			set[it.ID] = struct{}{}
		}
	}
	return set
}
