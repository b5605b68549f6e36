package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/vladimirruppel/roomchat/internal/protocol"
)

// Максимальный размер тела ответа, который мы готовы читать.
const maxResponseBody = 64 * 1024

// API - HTTP-коллабораторы ядра: аутентификация и каталог комнат.
type API struct {
	baseURL string
	http    *http.Client
}

func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Login выполняет один POST /api/login и возвращает токен.
func (a *API) Login(ctx context.Context, creds protocol.Credentials) (protocol.TokenResponse, error) {
	return a.authenticate(ctx, "login", protocol.PathLogin, creds)
}

// Register выполняет один POST /api/register и возвращает токен.
func (a *API) Register(ctx context.Context, creds protocol.Credentials) (protocol.TokenResponse, error) {
	return a.authenticate(ctx, "register", protocol.PathRegister, creds)
}

func (a *API) authenticate(ctx context.Context, op, path string, creds protocol.Credentials) (protocol.TokenResponse, error) {
	var resp protocol.TokenResponse
	generic := "login failed"
	if op == "register" {
		generic = "registration failed"
	}

	body, err := json.Marshal(creds)
	if err != nil {
		return resp, &AuthError{Op: op, Reason: generic, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return resp, &AuthError{Op: op, Reason: generic, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := a.http.Do(req)
	if err != nil {
		return resp, &AuthError{Op: op, Reason: generic, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return resp, &AuthError{Op: op, Status: res.StatusCode, Reason: generic, Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		reason := strings.TrimSpace(string(raw))
		if reason == "" {
			reason = generic
		}
		return resp, &AuthError{Op: op, Status: res.StatusCode, Reason: reason}
	}

	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, &AuthError{Op: op, Status: res.StatusCode, Reason: generic, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Token == "" {
		return resp, &AuthError{Op: op, Status: res.StatusCode, Reason: "missing token in response"}
	}
	return resp, nil
}

// FetchRooms выполняет GET /api/rooms. Порядок комнат не гарантирован.
func (a *API) FetchRooms(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+protocol.PathRooms, nil)
	if err != nil {
		return nil, &DirectoryFetchError{Err: err}
	}

	res, err := a.http.Do(req)
	if err != nil {
		return nil, &DirectoryFetchError{Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(res.Body, maxResponseBody))
		return nil, &DirectoryFetchError{Status: res.StatusCode}
	}

	var rooms []string
	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBody)).Decode(&rooms); err != nil {
		return nil, &DirectoryFetchError{Status: res.StatusCode, Err: fmt.Errorf("decode rooms: %w", err)}
	}
	return rooms, nil
}

// normalizeRooms сортирует по возрастанию и убирает повторы. Вход не меняется.
func normalizeRooms(rooms []string) []string {
	out := slices.Clone(rooms)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
