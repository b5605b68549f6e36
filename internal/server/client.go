package server

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vladimirruppel/roomchat/internal/protocol"
)

const (
	// Время, разрешенное для записи сообщения клиенту.
	writeWait = 10 * time.Second

	// Время, разрешенное для чтения следующего pong-сообщения от клиента.
	pongWait = 60 * time.Second

	// Отправлять pings клиенту с этим периодом. Должно быть меньше pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Размер очереди исходящих сообщений участника.
	sendQueueSize = 256
)

// Member - одно websocket-соединение участника комнаты.
type Member struct {
	hub  *Hub
	conn *websocket.Conn

	// Хаб пишет в этот канал, writePump читает из него.
	send chan []byte

	Username string
	Room     string

	log zerolog.Logger
}

func newMember(hub *Hub, conn *websocket.Conn, username, room string, logger zerolog.Logger) *Member {
	return &Member{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),
		Username: username,
		Room:     room,
		log:      logger.With().Str("room", room).Str("username", username).Logger(),
	}
}

// readPump читает сырой текст участника, оборачивает его в Message и
// передает в хаб. Для каждого участника работает в своей горутине.
func (m *Member) readPump() {
	defer func() {
		m.hub.leave(m)
		m.conn.Close()
	}()
	m.conn.SetReadLimit(protocol.MaxTextSize)
	m.conn.SetReadDeadline(time.Now().Add(pongWait))
	m.conn.SetPongHandler(func(string) error { m.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		messageType, data, err := m.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				m.log.Warn().Err(err).Msg("unexpected close")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg := protocol.Message{
			User:      m.Username,
			Text:      string(data),
			RoomName:  m.Room,
			Timestamp: time.Now().UTC(),
		}
		if !m.hub.Publish(msg) {
			return
		}
	}
}

// writePump отправляет сообщения из хаба клиенту и пингует его.
func (m *Member) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		m.conn.Close()
	}()
	for {
		select {
		case message, ok := <-m.send:
			m.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Хаб закрыл канал
				m.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Каждое сообщение - отдельный фрейм, клиент разбирает один JSON на фрейм
			if err := m.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			m.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := m.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
