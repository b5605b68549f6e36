// Package config загружает настройки клиента и локального бэкенда из YAML.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultServerURL    = "http://localhost:8080"
	DefaultListenAddr   = ":8080"
	DefaultPollInterval = 5 * time.Second
	DefaultHistoryLimit = 50
	DefaultDialTimeout  = 10 * time.Second
	DefaultLogLevel     = "info"
)

var (
	ErrInvalidServerURL = errors.New("server_url must be an absolute http(s) URL")
	ErrInvalidWSURL     = errors.New("ws_url must be an absolute ws(s) URL")
	ErrInvalidInterval  = errors.New("poll_interval must be positive")
	ErrInvalidLimit     = errors.New("history_limit must be positive")
)

// Config - общий файл настроек для cmd/client и cmd/server.
type Config struct {
	ServerURL    string        `yaml:"server_url"`
	WSURL        string        `yaml:"ws_url"` // Если пусто, выводится из ServerURL
	PollInterval time.Duration `yaml:"poll_interval"`
	HistoryLimit int           `yaml:"history_limit"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	LogLevel     string        `yaml:"log_level"`

	ListenAddr string `yaml:"listen_addr"`
	JWTSecret  string `yaml:"jwt_secret"`
	HistoryDir string `yaml:"history_dir"` // Пусто - история комнат только в памяти
}

// Default возвращает конфигурацию, с которой клиент ходит на локальный бэкенд.
func Default() Config {
	return Config{
		ServerURL:    DefaultServerURL,
		PollInterval: DefaultPollInterval,
		HistoryLimit: DefaultHistoryLimit,
		DialTimeout:  DefaultDialTimeout,
		LogLevel:     DefaultLogLevel,
		ListenAddr:   DefaultListenAddr,
	}
}

// Load читает YAML поверх значений по умолчанию. Пустой path - только умолчания.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate проверяет поля, от которых зависит ядро клиента.
func (c Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidServerURL
	}
	if c.WSURL != "" {
		w, err := url.Parse(c.WSURL)
		if err != nil || w.Host == "" || (w.Scheme != "ws" && w.Scheme != "wss") {
			return ErrInvalidWSURL
		}
	}
	if c.PollInterval <= 0 {
		return ErrInvalidInterval
	}
	if c.HistoryLimit <= 0 {
		return ErrInvalidLimit
	}
	return nil
}

// WebsocketURL возвращает базовый адрес для websocket: ws_url или server_url
// со схемой http->ws, https->wss.
func (c Config) WebsocketURL() string {
	if c.WSURL != "" {
		return strings.TrimRight(c.WSURL, "/")
	}
	base := strings.TrimRight(c.ServerURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
