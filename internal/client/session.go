package client

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vladimirruppel/roomchat/internal/protocol"
)

// Session - аутентифицированный пользователь и его непрозрачный токен.
// Либо оба поля заполнены, либо сессии нет.
type Session struct {
	Username string
	Token    string
}

func (s Session) IsZero() bool {
	return s.Username == "" || s.Token == ""
}

// Authenticator - внешний сервис входа и регистрации.
type Authenticator interface {
	Login(ctx context.Context, creds protocol.Credentials) (protocol.TokenResponse, error)
	Register(ctx context.Context, creds protocol.Credentials) (protocol.TokenResponse, error)
}

// SessionStore хранит текущую сессию. Сессия заменяется целиком.
type SessionStore struct {
	auth Authenticator
	log  zerolog.Logger

	mu      sync.RWMutex
	current Session
}

func NewSessionStore(auth Authenticator, logger zerolog.Logger) *SessionStore {
	return &SessionStore{auth: auth, log: logger}
}

// Current возвращает сессию и признак того, что она есть.
func (s *SessionStore) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, !s.current.IsZero()
}

// Login делает одну попытку входа. Имя пользователя берется из запроса,
// от сервера используется только токен. При ошибке прежняя сессия не трогается.
func (s *SessionStore) Login(ctx context.Context, username, password string) (Session, error) {
	sess, err := s.exchange(ctx, "login", username, password)
	if err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	s.log.Info().Str("username", sess.Username).Msg("logged in")
	return sess, nil
}

// Register делает одну попытку регистрации и возвращает сессию, но не
// сохраняет ее: после регистрации клиент всегда возвращается на экран входа.
func (s *SessionStore) Register(ctx context.Context, username, password string) (Session, error) {
	sess, err := s.exchange(ctx, "register", username, password)
	if err != nil {
		return Session{}, err
	}
	s.log.Info().Str("username", sess.Username).Msg("registered")
	return sess, nil
}

// Clear сбрасывает сессию.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	s.current = Session{}
	s.mu.Unlock()
}

func (s *SessionStore) exchange(ctx context.Context, op, username, password string) (Session, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return Session{}, ErrCredentialsRequired
	}

	creds := protocol.Credentials{Username: username, Password: password}
	var (
		resp protocol.TokenResponse
		err  error
	)
	if op == "register" {
		resp, err = s.auth.Register(ctx, creds)
	} else {
		resp, err = s.auth.Login(ctx, creds)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("op", op).Str("username", username).Msg("authentication failed")
		return Session{}, err
	}
	if resp.Token == "" {
		s.log.Warn().Str("op", op).Str("username", username).Msg("authenticator returned no token")
		return Session{}, &AuthError{Op: op, Reason: "missing token in response"}
	}

	return Session{Username: username, Token: resp.Token}, nil
}
