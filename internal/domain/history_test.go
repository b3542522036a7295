package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryEvictsOldestFirst(t *testing.T) {
	ch := NewChatChannel(GlobalTextChannelID, "Global", "", nil)
	for i := 0; i < 101; i++ {
		ch.AddMessage(NewChatMessage(ch.ID, "p", "P", fmt.Sprintf("msg %d", i)))
	}
	msgs := ch.Messages()
	require.Len(t, msgs, MaxMessages)
	assert.Equal(t, "msg 1", msgs[0].Body)
	assert.Equal(t, "msg 100", msgs[len(msgs)-1].Body)
}

func TestHistoryBelowCapacity(t *testing.T) {
	h := NewHistory(3)
	h.Append(ChatMessage{Body: "a"})
	h.Append(ChatMessage{Body: "b"})
	assert.Equal(t, 2, h.Len())
	h.Append(ChatMessage{Body: "c"})
	h.Append(ChatMessage{Body: "d"})
	snap := h.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"b", "c", "d"}, []string{snap[0].Body, snap[1].Body, snap[2].Body})
}

func TestNotificationPrefix(t *testing.T) {
	m := NewChatMessage(GlobalTextChannelID, "p", "P", "$Call started.")
	assert.Equal(t, KindNotification, m.Kind)
	assert.Equal(t, "Call started.", m.Body)

	m = NewChatMessage(GlobalTextChannelID, "p", "P", "hi")
	assert.Equal(t, KindMessage, m.Kind)
}
