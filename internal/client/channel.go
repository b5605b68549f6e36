package client

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vladimirruppel/roomchat/internal/protocol"
)

// ChannelState - состояние одного канала. Переходы только вперед:
// Connecting -> Open -> Closed, либо Connecting -> Closed.
type ChannelState int

const (
	StateConnecting ChannelState = iota
	StateOpen
	StateClosed
)

func (s ChannelState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// ChannelKey - пара, для которой открыт канал.
type ChannelKey struct {
	Room  string
	Token string
}

func (k ChannelKey) valid() bool {
	return k.Room != "" && k.Token != ""
}

// ChannelOptions - необязательные параметры канала.
type ChannelOptions struct {
	// OnMessage вызывается из горутины чтения для каждого входящего сообщения
	// в порядке получения. Внутри нельзя вызывать Close этого канала.
	OnMessage func(protocol.Message)
	Log       zerolog.Logger
}

// Channel - одно живое соединение с комнатой. Закрытый канал не
// переиспользуется: новый ключ всегда дает новый Channel.
type Channel struct {
	id        string
	key       ChannelKey
	url       string
	dialer    Dialer
	onMessage func(protocol.Message)
	log       zerolog.Logger

	mu     sync.Mutex
	state  ChannelState
	conn   Conn
	err    error
	cancel context.CancelFunc

	writeMu     sync.Mutex // gorilla/websocket допускает только одного писателя
	releaseOnce sync.Once

	ready  chan struct{} // закрыт, когда канал вышел из Connecting
	done   chan struct{} // закрыт при переходе в Closed
	exited chan struct{} // закрыт, когда фоновая горутина завершилась
}

// OpenChannel создает канал в состоянии Connecting и подключается в фоне.
// ctx ограничивает только установку соединения.
func OpenChannel(ctx context.Context, dialer Dialer, rawURL string, key ChannelKey, opts ChannelOptions) *Channel {
	dialCtx, cancel := context.WithCancel(ctx)
	c := &Channel{
		id:        uuid.NewString(),
		key:       key,
		url:       rawURL,
		dialer:    dialer,
		onMessage: opts.OnMessage,
		state:     StateConnecting,
		cancel:    cancel,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
	c.log = opts.Log.With().Str("channel_id", c.id).Str("room", key.Room).Logger()

	go c.run(dialCtx)
	return c
}

func (c *Channel) ID() string      { return c.id }
func (c *Channel) Key() ChannelKey { return c.key }

func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err возвращает причину закрытия (*ChannelError) или nil, если канал
// закрыт через Close или еще не закрыт.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done закрывается при переходе в StateClosed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// WaitReady ждет выхода из Connecting и возвращает итоговое состояние.
func (c *Channel) WaitReady(ctx context.Context) (ChannelState, error) {
	select {
	case <-c.ready:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// Send отправляет текст как есть одним текстовым фреймом.
// Без подтверждения доставки. Вне StateOpen ничего не пишет.
func (c *Channel) Send(text string) error {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return ErrSendRejected
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, []byte(text))
	c.writeMu.Unlock()
	if err != nil {
		return c.fail("write", err)
	}
	return nil
}

// Close переводит канал в Closed, освобождает транспорт и ждет завершения
// горутины чтения. После возврата входящие сообщения не доставляются.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.state != StateClosed {
		c.setClosedLocked(nil)
		c.log.Debug().Msg("channel closed")
	}
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		c.release(conn)
	}
	<-c.exited
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.exited)
	defer c.cancel()

	conn, err := c.dialer.Dial(ctx, c.url)

	c.mu.Lock()
	if c.state == StateClosed {
		// Close пришел во время дозвона
		c.mu.Unlock()
		if conn != nil {
			c.release(conn)
		}
		return
	}
	if err != nil {
		chErr := &ChannelError{Key: c.key, Op: "dial", Err: err}
		c.setClosedLocked(chErr)
		c.mu.Unlock()
		c.log.Error().Err(err).Msg("channel failed to open")
		return
	}
	c.conn = conn
	c.state = StateOpen
	close(c.ready)
	c.mu.Unlock()

	c.log.Info().Msg("channel open")
	c.readPump(conn)
}

// readPump читает фреймы по одному, поэтому порядок сообщений сохраняется.
func (c *Channel) readPump(conn Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.fail("read", err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := protocol.DecodeMessage(data)
		if err != nil {
			// Битый фрейм не роняет канал
			c.log.Warn().Err(err).Str("raw", truncate(string(data), 256)).Msg("dropping malformed frame")
			continue
		}

		if c.State() != StateOpen {
			return
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

// fail закрывает канал из-за ошибки транспорта. Если канал уже закрыт,
// ошибка считается следствием Close и не логируется.
func (c *Channel) fail(op string, err error) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrSendRejected
	}
	chErr := &ChannelError{Key: c.key, Op: op, Err: err}
	c.setClosedLocked(chErr)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.release(conn)
	}
	if isNormalClose(err) {
		c.log.Info().Msg("channel closed by server")
	} else {
		c.log.Error().Err(err).Str("op", op).Msg("channel closed unexpectedly")
	}
	return chErr
}

func (c *Channel) setClosedLocked(err error) {
	if c.state == StateConnecting {
		close(c.ready)
	}
	c.state = StateClosed
	c.err = err
	close(c.done)
}

func (c *Channel) release(conn Conn) {
	c.releaseOnce.Do(func() {
		if err := conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			c.log.Debug().Err(err).Msg("transport close")
		}
	})
}
