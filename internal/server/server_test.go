package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladimirruppel/roomchat/internal/protocol"
)

type testBackend struct {
	srv *Server
	ts  *httptest.Server
}

func newTestBackend(t *testing.T, opts ...Option) *testBackend {
	t.Helper()
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	srv, err := New([]byte("test-secret"), zerolog.Nop(), opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv.Start(ctx)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return &testBackend{srv: srv, ts: ts}
}

func (b *testBackend) post(t *testing.T, path, body string) (int, string) {
	t.Helper()
	res, err := b.ts.Client().Post(b.ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, strings.TrimSpace(string(data))
}

func (b *testBackend) register(t *testing.T, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(protocol.Credentials{Username: username, Password: password})
	status, resp := b.post(t, protocol.PathRegister, string(body))
	require.Equal(t, http.StatusCreated, status, resp)

	var tr protocol.TokenResponse
	require.NoError(t, json.Unmarshal([]byte(resp), &tr))
	return tr.Token
}

func (b *testBackend) dial(t *testing.T, room, token string) *websocket.Conn {
	t.Helper()
	conn, resp, err := b.tryDial(room, token)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (b *testBackend) tryDial(room, token string) (*websocket.Conn, *http.Response, error) {
	q := url.Values{}
	if room != "" {
		q.Set(protocol.QueryRoom, room)
	}
	q.Set(protocol.QueryToken, token)
	wsURL := "ws" + strings.TrimPrefix(b.ts.URL, "http") + protocol.PathWS + "?" + q.Encode()
	return websocket.DefaultDialer.Dial(wsURL, nil)
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.DecodeMessage(data)
	require.NoError(t, err)
	return msg
}

func TestRegister(t *testing.T) {
	b := newTestBackend(t)

	status, body := b.post(t, protocol.PathRegister, `{"username":"alice","password":"pw"}`)
	require.Equal(t, http.StatusCreated, status)
	var tr protocol.TokenResponse
	require.NoError(t, json.Unmarshal([]byte(body), &tr))
	assert.Equal(t, "alice", tr.Username)
	assert.NotEmpty(t, tr.Token)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{name: "taken", body: `{"username":"alice","password":"pw"}`, wantStatus: http.StatusConflict, wantBody: "could not create user alice: username is already taken"},
		{name: "empty password", body: `{"username":"bob","password":""}`, wantStatus: http.StatusBadRequest, wantBody: "username & password required"},
		{name: "blank username", body: `{"username":" ","password":"pw"}`, wantStatus: http.StatusBadRequest, wantBody: "username & password required"},
		{name: "bad json", body: `{`, wantStatus: http.StatusBadRequest, wantBody: "invalid request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := b.post(t, protocol.PathRegister, tt.body)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestLogin(t *testing.T) {
	b := newTestBackend(t)
	b.register(t, "alice", "pw")

	status, body := b.post(t, protocol.PathLogin, `{"username":"alice","password":"pw"}`)
	require.Equal(t, http.StatusOK, status)
	var tr protocol.TokenResponse
	require.NoError(t, json.Unmarshal([]byte(body), &tr))
	claims, err := b.srv.tokens.Parse(tr.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	for _, creds := range []string{
		`{"username":"alice","password":"nope"}`,
		`{"username":"ghost","password":"pw"}`,
	} {
		status, body := b.post(t, protocol.PathLogin, creds)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "invalid credentials", body)
	}
}

func TestRooms(t *testing.T) {
	b := newTestBackend(t)

	res, err := b.ts.Client().Get(b.ts.URL + protocol.PathRooms)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))

	var rooms []string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&rooms))
	assert.Equal(t, []string{}, rooms)

	token := b.register(t, "alice", "pw")
	b.dial(t, "dev", token)
	require.Eventually(t, func() bool {
		return len(b.srv.Hub().Rooms()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"dev"}, b.srv.Hub().Rooms())
}

func TestWebSocket_RejectsBadToken(t *testing.T) {
	b := newTestBackend(t)

	for _, token := range []string{"", "garbage"} {
		_, resp, err := b.tryDial("general", token)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestWebSocket_BroadcastToRoom(t *testing.T) {
	b := newTestBackend(t)
	aliceTok := b.register(t, "alice", "pw")
	bobTok := b.register(t, "bob", "pw")
	carolTok := b.register(t, "carol", "pw")

	// Пустая комната - general. Эхо своего сообщения значит, что участник в хабе.
	alice := b.dial(t, "", aliceTok)
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("hello")))
	hello := readMessage(t, alice)
	assert.Equal(t, "general", hello.RoomName)

	bob := b.dial(t, "general", bobTok)
	assert.Equal(t, hello, readMessage(t, bob))

	carol := b.dial(t, "dev", carolTok)
	require.NoError(t, carol.WriteMessage(websocket.TextMessage, []byte("anyone?")))
	readMessage(t, carol)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("  hi bob  ")))
	got := readMessage(t, bob)
	assert.Equal(t, "alice", got.User)
	assert.Equal(t, "  hi bob  ", got.Text)
	assert.Equal(t, "general", got.RoomName)
	assert.WithinDuration(t, time.Now(), got.Timestamp, 5*time.Second)
	assert.Equal(t, got, readMessage(t, alice))

	// carol в другой комнате ничего не получает
	carol.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := carol.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocket_BacklogReplayIsCapped(t *testing.T) {
	b := newTestBackend(t)
	aliceTok := b.register(t, "alice", "pw")
	bobTok := b.register(t, "bob", "pw")

	alice := b.dial(t, "general", aliceTok)
	const total = backlogLimit + 5
	for i := 1; i <= total; i++ {
		require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("m%d", i))))
	}
	for i := 1; i <= total; i++ {
		readMessage(t, alice)
	}

	bob := b.dial(t, "general", bobTok)
	first := readMessage(t, bob)
	assert.Equal(t, "m6", first.Text)
	var last protocol.Message
	for i := 2; i <= backlogLimit; i++ {
		last = readMessage(t, bob)
	}
	assert.Equal(t, fmt.Sprintf("m%d", total), last.Text)
}

func TestWebSocket_HistoryDirSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	first := newTestBackend(t, WithHistoryDir(dir))
	tok := first.register(t, "alice", "pw")
	conn := first.dial(t, "dev", tok)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("persisted")))
	readMessage(t, conn)

	second := newTestBackend(t, WithHistoryDir(dir))
	tok = second.register(t, "bob", "pw")
	replayed := readMessage(t, second.dial(t, "dev", tok))
	assert.Equal(t, "persisted", replayed.Text)
	assert.Equal(t, "alice", replayed.User)
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, protocol.TokenResponse{Token: "t"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"token":"t"}`, rec.Body.String())
	assert.True(t, bytes.HasSuffix(rec.Body.Bytes(), []byte("\n")))
}

func TestWebSocket_EscapeHeavyMessageIsDelivered(t *testing.T) {
	b := newTestBackend(t)
	tok := b.register(t, "alice", "pw")
	conn := b.dial(t, "general", tok)

	text := strings.Repeat("<", protocol.MaxTextSize)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(text)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), protocol.MaxFrameSize)
	msg, err := protocol.DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, text, msg.Text)
}

func TestWebSocket_OversizedFrameIsDropped(t *testing.T) {
	b := newTestBackend(t)
	tok := b.register(t, "alice", "pw")
	room := strings.Repeat("r", 5000)
	conn := b.dial(t, room, tok)

	// Текст в пределах лимита, но вместе с длинным именем комнаты фрейм
	// не влезает в то, что читает клиент
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("<", protocol.MaxTextSize))))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ok")))

	got := readMessage(t, conn)
	assert.Equal(t, "ok", got.Text)

	bob := b.dial(t, room, b.register(t, "bob", "pw"))
	replayed := readMessage(t, bob)
	assert.Equal(t, "ok", replayed.Text)
}
