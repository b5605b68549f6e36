package server

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vladimirruppel/roomchat/internal/protocol"
)

// Сколько последних сообщений комнаты получает новый участник.
const backlogLimit = 50

// room - участники и последние сообщения одной комнаты. Трогается только из Run.
type room struct {
	members map[*Member]bool
	backlog []protocol.Message
}

// Hub управляет комнатами и рассылает сообщения участникам.
type Hub struct {
	rooms      map[string]*room
	broadcast  chan protocol.Message // Сообщения от участников для рассылки
	register   chan *Member
	unregister chan *Member
	quit       chan struct{}

	// activeRooms читается из HTTP-обработчиков, поэтому под своим мьютексом
	activeMu    sync.RWMutex
	activeRooms map[string]bool

	// Необязательное хранилище на диске. nil - backlog только в памяти.
	store *BacklogStore

	log zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:       make(map[string]*room),
		broadcast:   make(chan protocol.Message),
		register:    make(chan *Member),
		unregister:  make(chan *Member),
		quit:        make(chan struct{}),
		activeRooms: make(map[string]bool),
		log:         logger,
	}
}

// Rooms возвращает имена комнат, в которые кто-либо заходил. Порядок не задан.
func (h *Hub) Rooms() []string {
	h.activeMu.RLock()
	defer h.activeMu.RUnlock()

	rooms := make([]string, 0, len(h.activeRooms))
	for name := range h.activeRooms {
		rooms = append(rooms, name)
	}
	return rooms
}

// Run запускает основной цикл хаба. Возвращается после отмены ctx.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.quit)
	for {
		select {
		case <-ctx.Done():
			for _, r := range h.rooms {
				for m := range r.members {
					close(m.send)
				}
			}
			h.rooms = map[string]*room{}
			return

		case m := <-h.register:
			r, ok := h.rooms[m.Room]
			if !ok {
				r = h.openRoom(m.Room)
			}
			r.members[m] = true
			h.activeMu.Lock()
			h.activeRooms[m.Room] = true
			h.activeMu.Unlock()

			// Отправляем новому участнику последние сообщения комнаты
			for _, msg := range r.backlog {
				if !r.members[m] {
					break
				}
				if data, ok := h.encode(msg); ok {
					h.deliver(r, m, data)
				}
			}
			h.log.Info().Str("room", m.Room).Str("username", m.Username).Int("members", len(r.members)).Msg("member joined")

		case m := <-h.unregister:
			r, ok := h.rooms[m.Room]
			if !ok {
				continue
			}
			if _, ok := r.members[m]; ok {
				delete(r.members, m)
				close(m.send)
				h.log.Info().Str("room", m.Room).Str("username", m.Username).Int("members", len(r.members)).Msg("member left")
			}

		case msg := <-h.broadcast:
			r, ok := h.rooms[msg.RoomName]
			if !ok {
				continue
			}
			data, ok := h.encode(msg)
			if !ok {
				continue
			}
			r.backlog = append(r.backlog, msg)
			if len(r.backlog) > backlogLimit {
				r.backlog = r.backlog[len(r.backlog)-backlogLimit:]
			}
			if h.store != nil {
				if err := h.store.Append(msg); err != nil {
					h.log.Error().Err(err).Str("room", msg.RoomName).Msg("persist message")
				}
			}
			for m := range r.members {
				h.deliver(r, m, data)
			}
		}
	}
}

// openRoom создает комнату и поднимает ее backlog с диска, если есть хранилище.
func (h *Hub) openRoom(name string) *room {
	r := &room{members: make(map[*Member]bool)}
	if h.store != nil {
		backlog, err := h.store.Load(name, backlogLimit)
		if err != nil {
			h.log.Error().Err(err).Str("room", name).Msg("load room history")
		}
		r.backlog = backlog
	}
	h.rooms[name] = r
	return r
}

// Publish ставит сообщение в рассылку. false, если хаб уже остановлен.
func (h *Hub) Publish(msg protocol.Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) join(m *Member) bool {
	select {
	case h.register <- m:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) leave(m *Member) {
	select {
	case h.unregister <- m:
	case <-h.quit:
	}
}

// deliver кладет сообщение в очередь участника. Если очередь переполнена,
// участник отключается: его writePump завершится по закрытому каналу.
func (h *Hub) deliver(r *room, m *Member, data []byte) {
	select {
	case m.send <- data:
	default:
		h.log.Warn().Str("room", m.Room).Str("username", m.Username).Msg("send queue full, dropping member")
		delete(r.members, m)
		close(m.send)
	}
}

func (h *Hub) encode(msg protocol.Message) ([]byte, bool) {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		h.log.Error().Err(err).Str("room", msg.RoomName).Msg("encode message")
		return nil, false
	}
	// Такой фрейм клиент не прочитает и закроет канал
	if len(data) > protocol.MaxFrameSize {
		h.log.Warn().Str("room", msg.RoomName).Int("size", len(data)).Msg("dropping oversized message")
		return nil, false
	}
	return data, true
}
