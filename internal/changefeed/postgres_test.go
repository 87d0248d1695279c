package changefeed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schoolnotify/internal/model"
	"schoolnotify/internal/repository"
)

func TestParseNotification(t *testing.T) {
	n, err := parseNotification(`{"collection":"student_alerts","id":"S1","op":"update"}`)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE", n.Op)
	assert.Equal(t, model.ContainerRef{Collection: model.CollectionStudentAlerts, ID: "S1"}, n.ref())

	_, err = parseNotification(`not json`)
	assert.Error(t, err)
}

func TestChangeType(t *testing.T) {
	assert.Equal(t, model.ChangeAdded, changeType("INSERT", true))
	assert.Equal(t, model.ChangeModified, changeType("UPDATE", true))
	assert.Equal(t, model.ChangeRemoved, changeType("DELETE", true))
	assert.Equal(t, model.ChangeRemoved, changeType("UPDATE", false))
}

func TestWatchTargetCovers(t *testing.T) {
	collection := model.WatchTarget{Collection: model.CollectionParentAlerts}
	assert.True(t, collection.Covers(model.ContainerRef{Collection: model.CollectionParentAlerts, ID: "P1"}))
	assert.False(t, collection.Covers(model.ContainerRef{Collection: model.CollectionStudentAlerts, ID: "P1"}))

	inbox := model.WatchTarget{Collection: model.CollectionAdminAlerts, DocID: "inbox"}
	assert.True(t, inbox.Covers(model.ContainerRef{Collection: model.CollectionAdminAlerts, ID: "inbox"}))
	assert.False(t, inbox.Covers(model.ContainerRef{Collection: model.CollectionAdminAlerts, ID: "archive"}))
}

func TestSendStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan model.Change)
	assert.False(t, send(ctx, out, model.Change{}))

	buffered := make(chan model.Change, 1)
	assert.True(t, send(context.Background(), buffered, model.Change{Type: model.ChangeAdded}))
}

type fakeContainers struct {
	snaps map[model.ContainerRef]repository.ContainerSnapshot
	err   error
}

func (f *fakeContainers) Get(_ context.Context, ref model.ContainerRef) (repository.ContainerSnapshot, bool, error) {
	if f.err != nil {
		return repository.ContainerSnapshot{Ref: ref}, false, f.err
	}
	snap, ok := f.snaps[ref]
	return snap, ok, nil
}

func (f *fakeContainers) List(context.Context, model.Collection) ([]repository.ContainerSnapshot, error) {
	var out []repository.ContainerSnapshot
	for _, s := range f.snaps {
		out = append(out, s)
	}
	return out, f.err
}

func newTestFeed(containers ContainerReader) *PostgresFeed {
	return &PostgresFeed{containers: containers, channel: DefaultChannel, logger: zap.NewNop()}
}

var studentInbox = model.ContainerRef{Collection: model.CollectionStudentAlerts, ID: "S1"}

func TestLoad_SkipsUndecodableContainer(t *testing.T) {
	undecodable := fmt.Errorf("decode %s: %w", studentInbox, repository.ErrUndecodable)
	f := newTestFeed(&fakeContainers{err: undecodable})

	_, ok, err := f.load(context.Background(), studentInbox, "UPDATE")
	require.NoError(t, err)
	assert.False(t, ok)

	f = newTestFeed(&fakeContainers{err: errors.New("conn closed")})
	_, _, err = f.load(context.Background(), studentInbox, "UPDATE")
	assert.Error(t, err, "store failures still end the subscription")
}

func TestLoad_Changes(t *testing.T) {
	f := newTestFeed(&fakeContainers{snaps: map[model.ContainerRef]repository.ContainerSnapshot{
		studentInbox: {Ref: studentInbox, Items: []model.AlertItem{{ID: "a1"}}},
	}})
	ctx := context.Background()

	change, ok, err := f.load(ctx, studentInbox, "UPDATE")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.ChangeModified, change.Type)
	assert.Len(t, change.Items, 1)

	change, ok, err = f.load(ctx, studentInbox, "DELETE")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.ChangeRemoved, change.Type)

	gone := model.ContainerRef{Collection: model.CollectionStudentAlerts, ID: "S2"}
	change, ok, err = f.load(ctx, gone, "UPDATE")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.ChangeRemoved, change.Type)
}

func TestSnapshot_SkipsUndecodableDocument(t *testing.T) {
	undecodable := fmt.Errorf("decode: %w", repository.ErrUndecodable)
	f := newTestFeed(&fakeContainers{err: undecodable})

	out := make(chan model.Change, 1)
	target := model.WatchTarget{Collection: model.CollectionAdminAlerts, DocID: "inbox"}
	require.NoError(t, f.snapshot(context.Background(), target, out))
	assert.Empty(t, out)
}
