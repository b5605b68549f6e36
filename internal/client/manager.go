package client

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vladimirruppel/roomchat/internal/protocol"
)

// ChannelManager владеет не более чем одним каналом. Перед открытием канала
// для нового ключа старый закрывается и доводится до StateClosed.
type ChannelManager struct {
	dialer    Dialer
	wsBase    string
	onMessage func(protocol.Message)
	log       zerolog.Logger

	mu      sync.Mutex // сериализует Open/Close
	current *Channel
}

func NewChannelManager(dialer Dialer, wsBase string, onMessage func(protocol.Message), logger zerolog.Logger) *ChannelManager {
	return &ChannelManager{
		dialer:    dialer,
		wsBase:    wsBase,
		onMessage: onMessage,
		log:       logger,
	}
}

// Open возвращает канал для (room, token). Если текущий канал открыт для того
// же ключа и не закрыт, он и возвращается. Иначе текущий закрывается, и только
// после этого начинается подключение нового.
func (m *ChannelManager) Open(ctx context.Context, room, token string) (*Channel, error) {
	key := ChannelKey{Room: room, Token: token}
	if !key.valid() {
		return nil, ErrInvalidKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		if m.current.Key() == key && m.current.State() != StateClosed {
			return m.current, nil
		}
		m.log.Debug().Str("from", m.current.Key().Room).Str("to", room).Msg("switching channel")
		m.current.Close()
		m.current = nil
	}

	m.current = OpenChannel(ctx, m.dialer, ChannelURL(m.wsBase, key), key, ChannelOptions{
		OnMessage: m.onMessage,
		Log:       m.log,
	})
	return m.current, nil
}

// Current возвращает текущий канал или nil.
func (m *ChannelManager) Current() *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Send отправляет текст в текущий канал.
func (m *ChannelManager) Send(text string) error {
	ch := m.Current()
	if ch == nil {
		return ErrSendRejected
	}
	return ch.Send(text)
}

// Close закрывает текущий канал, если он есть.
func (m *ChannelManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}
