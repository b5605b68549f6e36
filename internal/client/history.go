package client

import (
	"sync"

	"github.com/vladimirruppel/roomchat/internal/protocol"
)

// DefaultHistoryLimit - сколько последних сообщений держит клиент.
const DefaultHistoryLimit = 50

// History хранит последние limit полученных сообщений по всем комнатам сразу.
// Лимит общий, а не на комнату: при переполнении вытесняется самое старое
// сообщение, из какой бы комнаты оно ни было.
type History struct {
	mu       sync.Mutex
	limit    int
	messages []protocol.Message
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{
		limit:    limit,
		messages: make([]protocol.Message, 0, limit),
	}
}

// Append добавляет сообщение в конец и обрезает голову до limit.
func (h *History) Append(msg protocol.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.messages) < h.limit {
		h.messages = append(h.messages, msg)
		return
	}
	// Сдвигаем на месте, чтобы не растить массив
	copy(h.messages, h.messages[1:])
	h.messages[len(h.messages)-1] = msg
}

// Snapshot возвращает копию сообщений комнаты room в порядке получения.
// Сообщения других комнат остаются в буфере.
func (h *History) Snapshot(room string) []protocol.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]protocol.Message, 0, len(h.messages))
	for _, m := range h.messages {
		if m.RoomName == room {
			out = append(out, m)
		}
	}
	return out
}

// All возвращает копию всего буфера.
func (h *History) All() []protocol.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]protocol.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func (h *History) Limit() int {
	return h.limit
}

func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = make([]protocol.Message, 0, h.limit)
}
