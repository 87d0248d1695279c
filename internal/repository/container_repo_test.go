package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schoolnotify/internal/model"
)

var studentInbox = model.ContainerRef{Collection: model.CollectionStudentAlerts, ID: "S1"}

func TestContainerDecode_SkipsMalformedItems(t *testing.T) {
	r := NewContainerRepository(nil, zap.NewNop())

	snap, err := r.decode(studentInbox, []byte(`{"items":[
		"garbage",
		{"id":"a1","type":"alert","status":"unread","createdAt":"2024-09-02T08:00:00Z"},
		[1, 2],
		42
	]}`))
	require.NoError(t, err)
	assert.Equal(t, studentInbox, snap.Ref)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "a1", snap.Items[0].ID)
	assert.True(t, snap.Items[0].IsUnread())
}

func TestContainerDecode_UndecodableDocument(t *testing.T) {
	r := NewContainerRepository(nil, zap.NewNop())

	_, err := r.decode(studentInbox, []byte(`{"items":"garbage"}`))
	assert.ErrorIs(t, err, ErrUndecodable)

	snap, err := r.decode(studentInbox, []byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
}
