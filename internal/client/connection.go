package client

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vladimirruppel/roomchat/internal/protocol"
)

// Время, разрешенное для записи одного фрейма.
const writeWait = 10 * time.Second

// Conn - двунаправленное соединение с текстовыми фреймами.
// *websocket.Conn удовлетворяет этому интерфейсу напрямую.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer открывает Conn по адресу канала.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// WebsocketDialer - Dialer поверх gorilla/websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	Log              zerolog.Logger
}

func (d WebsocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = websocket.DefaultDialer.HandshakeTimeout
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		ev := d.Log.Debug().Err(err)
		if resp != nil {
			ev = ev.Str("status", resp.Status)
		}
		ev.Msg("dial error")
		return nil, err
	}
	conn.SetReadLimit(protocol.MaxFrameSize)
	return &wsConn{Conn: conn}, nil
}

// wsConn ограничивает запись по времени и закрывает соединение вежливо.
type wsConn struct {
	*websocket.Conn
}

func (c *wsConn) WriteMessage(messageType int, data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(messageType, data)
}

func (c *wsConn) Close() error {
	// Ошибку close-фрейма игнорируем: соединение могло уже умереть
	_ = c.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.Conn.Close()
}

// ChannelURL строит адрес канала: {base}/ws?room=R&token=T.
func ChannelURL(wsBase string, key ChannelKey) string {
	q := url.Values{}
	q.Set(protocol.QueryRoom, key.Room)
	q.Set(protocol.QueryToken, key.Token)
	return strings.TrimRight(wsBase, "/") + protocol.PathWS + "?" + q.Encode()
}

// isNormalClose - закрытие, о котором не нужно шуметь в логах.
func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
