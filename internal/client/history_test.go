package client

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladimirruppel/roomchat/internal/protocol"
)

func numbered(room string, n int) protocol.Message {
	return protocol.Message{User: "u", Text: fmt.Sprintf("msg-%d", n), RoomName: room}
}

func TestHistory_CapsAtLimit(t *testing.T) {
	h := NewHistory(0)
	require.Equal(t, DefaultHistoryLimit, h.Limit())

	for i := 1; i <= 60; i++ {
		h.Append(numbered("general", i))
	}

	all := h.All()
	require.Len(t, all, 50)
	assert.Equal(t, "msg-11", all[0].Text)
	assert.Equal(t, "msg-60", all[49].Text)
}

func TestHistory_FIFOLaw(t *testing.T) {
	for _, n := range []int{0, 1, 3, 4, 5, 9} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			const limit = 4
			h := NewHistory(limit)
			var appended []protocol.Message
			for i := 0; i < n; i++ {
				m := numbered("r", i)
				appended = append(appended, m)
				h.Append(m)
			}

			want := appended
			if len(want) > limit {
				want = want[len(want)-limit:]
			}
			if want == nil {
				want = []protocol.Message{}
			}
			assert.Equal(t, want, h.All())
		})
	}
}

func TestHistory_CapIsGlobalAcrossRooms(t *testing.T) {
	h := NewHistory(3)
	h.Append(numbered("a", 1))
	h.Append(numbered("b", 2))
	h.Append(numbered("a", 3))
	h.Append(numbered("b", 4))

	// Вытеснено самое старое сообщение, хотя оно из другой комнаты
	assert.Equal(t, []protocol.Message{numbered("a", 3)}, h.Snapshot("a"))
	assert.Equal(t, []protocol.Message{numbered("b", 2), numbered("b", 4)}, h.Snapshot("b"))
}

func TestHistory_SnapshotDoesNotMutate(t *testing.T) {
	h := NewHistory(10)
	h.Append(numbered("a", 1))
	h.Append(numbered("b", 2))

	before := h.All()
	snap := h.Snapshot("a")
	snap[0].Text = "changed"

	assert.Equal(t, before, h.All())
	assert.Empty(t, h.Snapshot("missing"))
}

func TestHistory_Reset(t *testing.T) {
	h := NewHistory(2)
	h.Append(numbered("a", 1))
	h.Reset()
	assert.Equal(t, 0, h.Len())
}
