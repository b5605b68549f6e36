package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// User представляет пользователя в системе.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

var (
	// Ошибки, специфичные для хранилища/аутентификации
	ErrUserNotFound    = errors.New("user not found")
	ErrUsernameTaken   = errors.New("username is already taken")
	ErrInvalidPassword = errors.New("invalid password")
	ErrPasswordHashing = errors.New("failed to hash password")
)

// UserStore хранит пользователей в памяти. Ключ - username.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*User
	cost  int
	log   zerolog.Logger
}

func NewUserStore(logger zerolog.Logger) *UserStore {
	return &UserStore{
		users: make(map[string]*User),
		cost:  bcrypt.DefaultCost,
		log:   logger,
	}
}

// Register создает и сохраняет нового пользователя.
func (s *UserStore) Register(username, password string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return nil, ErrUsernameTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		s.log.Error().Err(err).Str("username", username).Msg("hash password")
		return nil, ErrPasswordHashing
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hashedPassword),
		CreatedAt:    time.Now().UTC(),
	}
	s.users[username] = user
	s.log.Info().Str("username", user.Username).Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Authenticate проверяет учетные данные пользователя.
func (s *UserStore) Authenticate(username, password string) (*User, error) {
	s.mu.RLock()
	user, exists := s.users[username]
	s.mu.RUnlock() // Разблокируем сразу после чтения из map

	if !exists {
		return nil, ErrUserNotFound
	}

	err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidPassword
		}
		return nil, err
	}
	return user, nil
}
