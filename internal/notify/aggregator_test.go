package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func note(id string) Notification {
	return Notification{ID: id, Type: IncomingMessage, Unread: true}
}

func TestAddPrependsToBothLists(t *testing.T) {
	a := NewAggregator()
	a.Add(note("n1"))
	a.Add(note("n2"))
	a.Add(note("n3"))

	unread := a.Unread()
	all := a.All()
	require.Len(t, unread, 3)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"n3", "n2", "n1"}, ids(unread))
	assert.Equal(t, []string{"n3", "n2", "n1"}, ids(all))
}

func TestMarkAllRead(t *testing.T) {
	a := NewAggregator()
	a.Add(note("n1"))
	a.Add(note("n2"))

	assert.Equal(t, 2, a.MarkAllRead())
	assert.Empty(t, a.Unread())
	for _, n := range a.All() {
		assert.False(t, n.Unread, "notification %s still unread", n.ID)
	}

	a.Add(note("n3"))
	assert.Equal(t, []string{"n3"}, ids(a.Unread()))
	assert.Len(t, a.All(), 3)
}

func TestListsAreCopies(t *testing.T) {
	a := NewAggregator()
	a.Add(note("n1"))

	all := a.All()
	all[0].Unread = false
	assert.True(t, a.All()[0].Unread)
}

func ids(list []Notification) []string {
	out := make([]string, len(list))
	for i, n := range list {
		out[i] = n.ID
	}
	return out
}
