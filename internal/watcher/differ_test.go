package watcher

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schoolnotify/internal/model"
)

var (
	subscribedAt = time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
	baselineAt   = subscribedAt.Add(time.Second)
	studentRef   = model.ContainerRef{Collection: model.CollectionStudentAlerts, ID: "S1"}
)

func item(id string, status model.AlertStatus, created time.Time) model.AlertItem {
	a := model.AlertItem{ID: id, Type: "alert", Status: status}
	if !created.IsZero() {
		a.CreatedAt = model.NewTimestamp(created)
	}
	return a
}

func newTestDiffer() *Differ {
	return NewDiffer(studentRef, model.RoleStudent, "S1", subscribedAt,
		func() time.Time { return baselineAt }, zap.NewNop())
}

func ids(cands []model.Candidate) []string {
	var out []string
	for _, c := range cands {
		out = append(out, c.Alert.ID)
	}
	return out
}

func TestDiffer_BaselineNeverDispatches(t *testing.T) {
	d := newTestDiffer()

	got := d.Apply(model.Change{
		Type:    model.ChangeAdded,
		Initial: true,
		Items: []model.AlertItem{
			item("old", model.StatusUnread, baselineAt.Add(-time.Hour)),
			item("future", model.StatusUnread, baselineAt.Add(time.Hour)),
		},
	})
	assert.Empty(t, got)
	assert.Equal(t, baselineAt, d.Watermark())

	got = d.Apply(model.Change{
		Type: model.ChangeModified,
		Items: []model.AlertItem{
			item("old", model.StatusUnread, baselineAt.Add(-time.Hour)),
			item("future", model.StatusUnread, baselineAt.Add(time.Hour)),
		},
	})
	assert.Empty(t, got, "ids present at attach are never dispatched")
}

func TestDiffer_NewUnreadAfterWatermark(t *testing.T) {
	d := newTestDiffer()
	d.Apply(model.Change{Initial: true})

	got := d.Apply(model.Change{
		Type: model.ChangeModified,
		Items: []model.AlertItem{
			item("a1", model.StatusUnread, baselineAt.Add(time.Minute)),
			item("read", model.StatusRead, baselineAt.Add(time.Minute)),
			item("backlog", model.StatusUnread, baselineAt.Add(-time.Minute)),
			item("boundary", model.StatusUnread, baselineAt),
			item("undated", model.StatusUnread, time.Time{}),
			item("", model.StatusUnread, baselineAt.Add(time.Minute)),
		},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].Alert.ID)
	assert.Equal(t, model.RoleStudent, got[0].Role)
	assert.Equal(t, "S1", got[0].RecipientID)
	assert.Equal(t, studentRef, got[0].Container)

	again := d.Apply(model.Change{
		Type:  model.ChangeModified,
		Items: []model.AlertItem{item("a1", model.StatusUnread, baselineAt.Add(time.Minute))},
	})
	assert.Empty(t, again, "a seen id is not a candidate twice")
}

func TestDiffer_IDEmbeddedTimestamp(t *testing.T) {
	d := newTestDiffer()
	d.Apply(model.Change{Initial: true})

	created := baselineAt.Add(2 * time.Minute)
	a := model.AlertItem{
		ID:     "attendance_" + strconv.FormatInt(created.UnixMilli(), 10),
		Type:   "attendance_scan",
		Status: model.StatusUnread,
	}

	got := d.Apply(model.Change{Type: model.ChangeModified, Items: []model.AlertItem{a}})
	assert.Equal(t, []string{a.ID}, ids(got))
}

func TestDiffer_FirstSeenWithoutSnapshotUsesSubscriptionStart(t *testing.T) {
	d := newTestDiffer()

	got := d.Apply(model.Change{
		Type: model.ChangeAdded,
		Items: []model.AlertItem{
			item("before", model.StatusUnread, subscribedAt.Add(-time.Second)),
			item("after", model.StatusUnread, subscribedAt.Add(time.Millisecond)),
		},
	})
	assert.Equal(t, []string{"after"}, ids(got))
	assert.Equal(t, subscribedAt, d.Watermark())
}

func TestDiffer_SeenSetFollowsSnapshot(t *testing.T) {
	d := newTestDiffer()
	d.Apply(model.Change{Initial: true, Items: []model.AlertItem{
		item("a1", model.StatusUnread, baselineAt.Add(time.Minute)),
	}})

	// a1 disappears, then comes back: it is new again.
	assert.Empty(t, d.Apply(model.Change{Type: model.ChangeModified}))
	got := d.Apply(model.Change{Type: model.ChangeModified, Items: []model.AlertItem{
		item("a1", model.StatusUnread, baselineAt.Add(time.Minute)),
	}})
	assert.Equal(t, []string{"a1"}, ids(got))
}

func TestDiffer_SkipsItemsWithoutID(t *testing.T) {
	d := newTestDiffer()
	d.Apply(model.Change{Initial: true})

	items := []model.AlertItem{
		item("", model.StatusUnread, baselineAt.Add(time.Minute)),
		item("a1", model.StatusUnread, baselineAt.Add(time.Minute)),
	}
	got := d.Apply(model.Change{Type: model.ChangeModified, Items: items})
	assert.Equal(t, []string{"a1"}, ids(got))

	// The id-less item stays out of the seen set and is skipped again.
	assert.Empty(t, d.Apply(model.Change{Type: model.ChangeModified, Items: items}))
}
