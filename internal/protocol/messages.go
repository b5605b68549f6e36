package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Пути HTTP API и websocket-эндпоинта бэкенда.
const (
	PathLogin    = "/api/login"
	PathRegister = "/api/register"
	PathRooms    = "/api/rooms"
	PathWS       = "/ws"

	QueryRoom  = "room"
	QueryToken = "token"
)

// Message - одно сообщение комнаты в том виде, в котором его рассылает сервер.
// Ключи JSON совпадают с тем, что отдает бэкенд (User, Text, RoomName, Timestamp).
type Message struct {
	User      string    `json:"User"`
	Text      string    `json:"Text"`
	RoomName  string    `json:"RoomName"`
	Timestamp time.Time `json:"Timestamp"`
}

// MaxTextSize - сколько байт текста сервер принимает от участника за один фрейм.
const MaxTextSize = 1024 * 10

// MaxFrameSize - верхняя граница фрейма, который сервер рассылает. JSON может
// раздуть каждый байт текста до \uXXXX (6 байт), плюс поля конверта.
const MaxFrameSize = 6*MaxTextSize + 4096

var (
	ErrEmptyFrame  = errors.New("empty frame")
	ErrMissingRoom = errors.New("message has no room")
)

// DecodeMessage разбирает один входящий текстовый фрейм как Message.
func DecodeMessage(frame []byte) (Message, error) {
	if len(frame) == 0 {
		return Message{}, ErrEmptyFrame
	}
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	// null и {} разбираются без ошибки, но сообщением не являются
	if msg.RoomName == "" {
		return Message{}, ErrMissingRoom
	}
	return msg, nil
}

// EncodeMessage используется сервером при рассылке.
func EncodeMessage(msg Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}

///
/// HTTP PAYLOADS
///

// Credentials - тело запросов входа и регистрации.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"` // Клиент отправляет пароль как есть, сервер хранит хеш
}

// TokenResponse - тело успешного ответа на вход или регистрацию.
// Username сервер возвращает только при регистрации.
type TokenResponse struct {
	Token    string `json:"token"`
	Username string `json:"username,omitempty"`
}
