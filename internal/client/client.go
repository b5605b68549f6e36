// Package client - ядро чат-клиента: сессия, канал комнаты, ограниченная
// история сообщений и фоновый опрос каталога комнат.
package client

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vladimirruppel/roomchat/internal/config"
	"github.com/vladimirruppel/roomchat/internal/protocol"
)

// Client связывает хранилище сессии, выбор комнаты, менеджер каналов,
// историю и каталог комнат. Методы безопасны для вызова из разных горутин.
type Client struct {
	cfg config.Config
	log zerolog.Logger

	state     *AppState
	sessions  *SessionStore
	channels  *ChannelManager
	directory *DirectoryPoller
	history   atomic.Pointer[History]

	onMessage func(protocol.Message)

	pollMu sync.Mutex
	poll   *PollHandle
}

type clientOptions struct {
	log        zerolog.Logger
	httpClient *http.Client
	auth       Authenticator
	rooms      RoomFetcher
	dialer     Dialer
	onMessage  func(protocol.Message)
	onRooms    func([]string)
}

type Option func(*clientOptions)

func WithLogger(l zerolog.Logger) Option {
	return func(o *clientOptions) { o.log = l }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithAuthenticator подменяет HTTP-аутентификацию (например, в тестах).
func WithAuthenticator(a Authenticator) Option {
	return func(o *clientOptions) { o.auth = a }
}

func WithRoomFetcher(f RoomFetcher) Option {
	return func(o *clientOptions) { o.rooms = f }
}

func WithDialer(d Dialer) Option {
	return func(o *clientOptions) { o.dialer = d }
}

// WithOnMessage вызывается для каждого нового сообщения выбранной комнаты
// из горутины чтения канала.
func WithOnMessage(fn func(protocol.Message)) Option {
	return func(o *clientOptions) { o.onMessage = fn }
}

// WithOnRooms вызывается после каждого обновления каталога комнат.
func WithOnRooms(fn func([]string)) Option {
	return func(o *clientOptions) { o.onRooms = fn }
}

func New(cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := clientOptions{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	api := NewAPI(cfg.ServerURL, o.httpClient)
	if o.auth == nil {
		o.auth = api
	}
	if o.rooms == nil {
		o.rooms = api
	}
	if o.dialer == nil {
		o.dialer = WebsocketDialer{HandshakeTimeout: cfg.DialTimeout, Log: o.log}
	}

	c := &Client{
		cfg:       cfg,
		log:       o.log,
		state:     NewAppState(),
		sessions:  NewSessionStore(o.auth, o.log),
		onMessage: o.onMessage,
	}
	c.history.Store(NewHistory(cfg.HistoryLimit))
	c.channels = NewChannelManager(o.dialer, cfg.WebsocketURL(), c.receive, o.log)

	pollerOpts := []PollerOption{WithPollerLogger(o.log)}
	if o.onRooms != nil {
		pollerOpts = append(pollerOpts, WithOnChange(o.onRooms))
	}
	c.directory = NewDirectoryPoller(o.rooms, pollerOpts...)
	return c, nil
}

func (c *Client) State() *AppState { return c.state }

func (c *Client) Session() (Session, bool) { return c.sessions.Current() }

func (c *Client) History() *History { return c.history.Load() }

// Channel возвращает текущий канал или nil.
func (c *Client) Channel() *Channel { return c.channels.Current() }

// Login входит и заменяет сессию целиком. Старый канал закрывается, история
// начинается заново, клиент переходит в лобби.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	sess, err := c.sessions.Login(ctx, username, password)
	if err != nil {
		return Session{}, err
	}

	c.channels.Close()
	c.history.Store(NewHistory(c.cfg.HistoryLimit))
	c.state.enterLobby()
	return sess, nil
}

// Register регистрирует пользователя. Сессия не сохраняется: после успеха
// клиент безусловно возвращается на экран входа.
func (c *Client) Register(ctx context.Context, username, password string) (Session, error) {
	sess, err := c.sessions.Register(ctx, username, password)
	if err != nil {
		return Session{}, err
	}
	c.channels.Close()
	c.sessions.Clear()
	c.state.ClearAuthData()
	return sess, nil
}

// Join заходит в комнату room и открывает для нее канал.
// ctx ограничивает установку соединения, поэтому он должен жить дольше вызова.
func (c *Client) Join(ctx context.Context, room string) (*Channel, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return nil, ErrRoomRequired
	}
	sess, ok := c.sessions.Current()
	if !ok {
		return nil, ErrNotLoggedIn
	}

	c.state.join(room)
	c.log.Debug().Str("room", room).Str("username", sess.Username).Msg("joining room")
	return c.channels.Open(ctx, room, sess.Token)
}

// SelectRoom меняет выбранную комнату (например, из каталога). Если
// пользователь уже в чате, канал переключается на новую комнату; история
// при этом сохраняется, меняется только фильтр отображения.
func (c *Client) SelectRoom(ctx context.Context, room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return ErrRoomRequired
	}
	if !c.state.SetRoom(room) {
		return nil
	}
	sess, ok := c.sessions.Current()
	if !ok {
		return ErrNotLoggedIn
	}
	_, err := c.channels.Open(ctx, room, sess.Token)
	return err
}

// Send отправляет текст в текущий канал без изменений. Пустые строки
// не отправляются.
func (c *Client) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	return c.channels.Send(text)
}

// Messages возвращает историю выбранной комнаты.
func (c *Client) Messages() []protocol.Message {
	return c.history.Load().Snapshot(c.state.Room())
}

// Rooms возвращает последний опубликованный каталог комнат.
func (c *Client) Rooms() []string {
	return c.directory.Rooms()
}

// RefreshRooms обновляет каталог вне расписания.
func (c *Client) RefreshRooms(ctx context.Context) ([]string, error) {
	return c.directory.Refresh(ctx)
}

// StartDirectory запускает опрос каталога. Каталог не зависит от сессии.
func (c *Client) StartDirectory(ctx context.Context) {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if c.poll != nil {
		return
	}
	c.poll = c.directory.Start(ctx, c.cfg.PollInterval)
}

// Close останавливает опрос и закрывает канал.
func (c *Client) Close() {
	c.pollMu.Lock()
	if c.poll != nil {
		c.poll.Stop()
		c.poll = nil
	}
	c.pollMu.Unlock()

	c.channels.Close()
}

func (c *Client) receive(msg protocol.Message) {
	c.history.Load().Append(msg)
	if c.onMessage != nil && msg.RoomName == c.state.Room() {
		c.onMessage(msg)
	}
}
