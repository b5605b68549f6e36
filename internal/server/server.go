// Package server - локальный бэкенд чата в памяти: пользователи, токены,
// комнаты и websocket-рассылка. Нужен для локального запуска клиента и
// сквозных тестов.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vladimirruppel/roomchat/internal/protocol"
)

const defaultRoom = "general"

type Server struct {
	users    *UserStore
	tokens   *TokenIssuer
	hub      *Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

type Option func(*options)

type options struct {
	historyDir string
	bcryptCost int
}

// WithHistoryDir включает сохранение backlog комнат в JSONL-файлы в dir.
func WithHistoryDir(dir string) Option {
	return func(o *options) { o.historyDir = dir }
}

// WithBcryptCost меняет стоимость хеширования паролей. В основном для тестов.
func WithBcryptCost(cost int) Option {
	return func(o *options) { o.bcryptCost = cost }
}

func New(secret []byte, logger zerolog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	tokens, err := NewTokenIssuer(secret)
	if err != nil {
		return nil, err
	}

	users := NewUserStore(logger)
	if o.bcryptCost > 0 {
		users.cost = o.bcryptCost
	}

	hub := NewHub(logger)
	if o.historyDir != "" {
		store, err := NewBacklogStore(o.historyDir, logger)
		if err != nil {
			return nil, err
		}
		hub.store = store
	}

	return &Server{
		users:  users,
		tokens: tokens,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Локальный бэкенд, принимаем любой Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger,
	}, nil
}

// Start запускает хаб. Он работает до отмены ctx.
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)
}

func (s *Server) Hub() *Hub { return s.hub }

// Handler возвращает HTTP-маршруты бэкенда.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post(protocol.PathLogin, s.handleLogin)
	r.Post(protocol.PathRegister, s.handleRegister)
	r.Get(protocol.PathRooms, s.handleRooms)
	r.Get(protocol.PathWS, s.handleWebSocket)
	return r
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds protocol.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	user, err := s.users.Authenticate(creds.Username, creds.Password)
	if err != nil {
		s.log.Info().Err(err).Str("username", creds.Username).Msg("authentication failed")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		s.log.Error().Err(err).Msg("issue token")
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, protocol.TokenResponse{Token: token})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds protocol.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		http.Error(w, "username & password required", http.StatusBadRequest)
		return
	}

	user, err := s.users.Register(creds.Username, creds.Password)
	switch {
	case errors.Is(err, ErrUsernameTaken):
		http.Error(w, "could not create user "+creds.Username+": "+err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, "could not create user "+creds.Username+": "+err.Error(), http.StatusInternalServerError)
		return
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		s.log.Error().Err(err).Msg("issue token")
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, protocol.TokenResponse{Token: token, Username: user.Username})
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Rooms())
}

// handleWebSocket: ws://host/ws?room={room}&token={token}
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.tokens.Parse(r.URL.Query().Get(protocol.QueryToken))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	roomName := r.URL.Query().Get(protocol.QueryRoom)
	if roomName == "" {
		roomName = defaultRoom
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	m := newMember(s.hub, conn, claims.Username, roomName, s.log)
	if !s.hub.join(m) {
		conn.Close()
		return
	}
	go m.writePump()
	m.readPump()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
