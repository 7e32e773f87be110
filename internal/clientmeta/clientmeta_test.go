package clientmeta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	events []string
	payloads []interface{}
}

func (f *fakePublisher) Publish(event string, payload interface{}) {
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
}

func TestStore_Upsert_PublishesClientConnectedOnFirstSeen(t *testing.T) {
	pub := &fakePublisher{}
	s := New(pub)

	rec := s.Upsert("client-1", map[string]interface{}{"view": "mixer"})
	assert.Equal(t, "client-1", rec.ClientID)
	assert.False(t, rec.UpdatedAt.IsZero())
	assert.Equal(t, []string{"client_connected"}, pub.events)
}

func TestStore_Upsert_PublishesClientMetadataUpdatedOnRepeat(t *testing.T) {
	pub := &fakePublisher{}
	s := New(pub)

	s.Upsert("client-1", "first")
	s.Upsert("client-1", "second")

	assert.Equal(t, []string{"client_connected", "client_metadata_updated"}, pub.events)
}

func TestStore_Get_ReturnsStoredRecord(t *testing.T) {
	s := New(nil)
	s.Upsert("client-1", "opaque-blob")

	rec, ok := s.Get("client-1")
	require.True(t, ok)
	assert.Equal(t, "opaque-blob", rec.Metadata)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStore_GetAll_SortedByClientID(t *testing.T) {
	s := New(nil)
	s.Upsert("zebra", nil)
	s.Upsert("alpha", nil)

	all := s.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].ClientID)
	assert.Equal(t, "zebra", all[1].ClientID)
}

func TestStore_Delete_PublishesClientDisconnectedOnlyWhenPresent(t *testing.T) {
	pub := &fakePublisher{}
	s := New(pub)
	s.Upsert("client-1", nil)

	assert.True(t, s.Delete("client-1"))
	assert.False(t, s.Delete("client-1"))

	assert.Equal(t, []string{"client_connected", "client_disconnected"}, pub.events)
}
