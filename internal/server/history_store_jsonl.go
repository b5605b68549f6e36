package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vladimirruppel/roomchat/internal/protocol"
)

// BacklogStore хранит сообщения комнат в JSONL-файлах, один файл на комнату.
// Нужен, чтобы backlog комнат переживал перезапуск бэкенда.
type BacklogStore struct {
	dir string
	log zerolog.Logger

	mu    sync.Mutex // Для доступа к map files
	files map[string]*sync.Mutex
}

// NewBacklogStore проверяет и создает директорию для истории, если ее нет.
func NewBacklogStore(dir string, logger zerolog.Logger) (*BacklogStore, error) {
	if dir == "" {
		return nil, errors.New("history dir cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir %s: %w", dir, err)
	}
	logger.Info().Str("dir", dir).Msg("room history will be stored on disk")
	return &BacklogStore{
		dir:   dir,
		log:   logger,
		files: make(map[string]*sync.Mutex),
	}, nil
}

// path экранирует имя комнаты, чтобы оно не вышло за пределы dir.
func (s *BacklogStore) path(room string) string {
	return filepath.Join(s.dir, url.PathEscape(room)+".jsonl")
}

func (s *BacklogStore) fileMutex(room string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.files[room]
	if !ok {
		m = &sync.Mutex{}
		s.files[room] = m
	}
	return m
}

// Append дописывает сообщение в файл его комнаты.
func (s *BacklogStore) Append(msg protocol.Message) error {
	if msg.RoomName == "" {
		return errors.New("room name cannot be empty")
	}

	fm := s.fileMutex(msg.RoomName)
	fm.Lock()
	defer fm.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message for room %s: %w", msg.RoomName, err)
	}

	file, err := os.OpenFile(s.path(msg.RoomName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history for room %s: %w", msg.RoomName, err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write history for room %s: %w", msg.RoomName, err)
	}
	return nil
}

// Load возвращает последние limit сообщений комнаты. Нет файла - нет истории.
func (s *BacklogStore) Load(room string, limit int) ([]protocol.Message, error) {
	fm := s.fileMutex(room)
	fm.Lock()
	defer fm.Unlock()

	file, err := os.Open(s.path(room))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history for room %s: %w", room, err)
	}
	defer file.Close()

	var messages []protocol.Message
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), protocol.MaxFrameSize+1)
	for scanner.Scan() {
		var msg protocol.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			// Пропускаем поврежденную строку
			s.log.Warn().Err(err).Str("room", room).Msg("skip corrupted history line")
			continue
		}
		messages = append(messages, msg)
		if limit > 0 && len(messages) > limit {
			messages = messages[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan history for room %s: %w", room, err)
	}
	return messages, nil
}
