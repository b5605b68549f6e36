package client

import "sync"

// DefaultRoom - комната, выбранная по умолчанию.
const DefaultRoom = "general"

// View - экран, на котором находится клиент.
type View string

const (
	ViewLogin    View = "LOGIN"
	ViewRegister View = "REGISTER"
	ViewLobby    View = "LOBBY" // вошли, но в комнату еще не зашли
	ViewChat     View = "CHAT"
)

// AppState хранит выбор пользователя: экран, комнату и признак того,
// что он уже зашел в чат.
type AppState struct {
	mu     sync.RWMutex
	view   View
	room   string
	joined bool
}

func NewAppState() *AppState {
	return &AppState{
		view: ViewLogin,
		room: DefaultRoom,
	}
}

func (s *AppState) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

func (s *AppState) SetView(v View) {
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
}

func (s *AppState) Room() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

// SetRoom меняет выбранную комнату и сообщает, зашел ли пользователь в чат.
func (s *AppState) SetRoom(room string) (joined bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room
	return s.joined
}

func (s *AppState) Joined() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joined
}

func (s *AppState) join(room string) {
	s.mu.Lock()
	s.room = room
	s.joined = true
	s.view = ViewChat
	s.mu.Unlock()
}

// enterLobby - состояние сразу после входа: выбранная комната сохраняется.
func (s *AppState) enterLobby() {
	s.mu.Lock()
	s.view = ViewLobby
	s.joined = false
	s.mu.Unlock()
}

// ClearAuthData возвращает состояние к экрану входа.
func (s *AppState) ClearAuthData() {
	s.mu.Lock()
	s.view = ViewLogin
	s.room = DefaultRoom
	s.joined = false
	s.mu.Unlock()
}
