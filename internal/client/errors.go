package client

import (
	"errors"
	"fmt"
)

var (
	// ErrSendRejected - отправка в канал, который не находится в StateOpen.
	ErrSendRejected = errors.New("channel is not open")

	ErrNotLoggedIn         = errors.New("not logged in")
	ErrRoomRequired        = errors.New("room name cannot be empty")
	ErrEmptyMessage        = errors.New("message cannot be empty")
	ErrInvalidKey          = errors.New("room and token must be non-empty")
	ErrCredentialsRequired = errors.New("username & password required")
)

// AuthError - отказ сервера при входе/регистрации или сетевая ошибка.
// Reason показывается пользователю как есть.
type AuthError struct {
	Op     string // "login" или "register"
	Status int    // 0, если ответа не было
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	return e.Reason
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// DirectoryFetchError - неудачный опрос списка комнат.
type DirectoryFetchError struct {
	Status int
	Err    error
}

func (e *DirectoryFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch rooms: %v", e.Err)
	}
	return fmt.Sprintf("fetch rooms: unexpected status %d", e.Status)
}

func (e *DirectoryFetchError) Unwrap() error {
	return e.Err
}

// ChannelError описывает, почему канал перешел в StateClosed не по Close.
type ChannelError struct {
	Key ChannelKey
	Op  string // "dial", "read" или "write"
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s/%s: %v", e.Key.Room, e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
