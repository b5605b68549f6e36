package client

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladimirruppel/roomchat/internal/protocol"
)

func runConsole(t *testing.T, c *Client, input string) string {
	t.Helper()
	var out bytes.Buffer
	con := NewConsole(strings.NewReader(input), &out, zerolog.Nop())
	require.NoError(t, con.Run(context.Background(), c))
	return out.String()
}

func TestConsole_ExitFromLoginMenu(t *testing.T) {
	c := newFakeClient(t, &fakeDialer{})
	out := runConsole(t, c, "3\n")

	assert.Contains(t, out, "--- Chat Menu ---")
	assert.Contains(t, out, "Exiting...")
}

func TestConsole_LoginJoinQuit(t *testing.T) {
	d := &fakeDialer{}
	c := newFakeClient(t, d)
	out := runConsole(t, c, strings.Join([]string{
		"1", "Alice", "abc", // вход
		"2",        // список комнат
		"1", "dev", // вход в комнату
		"   ",      // пустая строка не отправляется
		"/quit",
	}, "\n")+"\n")

	assert.Contains(t, out, "Login successful! Welcome, Alice.")
	assert.Contains(t, out, "No rooms active yet")
	assert.Contains(t, out, "--- Room: dev ---")
	assert.Contains(t, out, "Exiting...")
	assert.Equal(t, ViewChat, c.State().View())
	assert.Equal(t, "dev", c.State().Room())

	require.Eventually(t, func() bool { return d.conn(0) != nil }, time.Second, time.Millisecond)
	assert.Empty(t, d.conn(0).written())
}

func TestConsole_EndOfInput(t *testing.T) {
	c := newFakeClient(t, &fakeDialer{})
	out := runConsole(t, c, "1\nAlice\n")

	assert.Contains(t, out, "Enter password: ")
	_, ok := c.Session()
	assert.False(t, ok)
}

func TestConsole_FailedRegistrationReturnsToLogin(t *testing.T) {
	c, err := New(defaultTestConfig(), WithAuthenticator(authFunc(func() (protocol.TokenResponse, error) {
		return protocol.TokenResponse{}, &AuthError{Op: "register", Reason: "could not create user bob: username is already taken"}
	})), WithDialer(&fakeDialer{}))
	require.NoError(t, err)
	defer c.Close()

	out := runConsole(t, c, "2\nbob\npw\n3\n")
	assert.Contains(t, out, "Registration failed: could not create user bob: username is already taken")
	assert.Equal(t, ViewLogin, c.State().View())
}

func TestFormatMessage(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 5, 7, 0, time.Local)
	got := FormatMessage(protocol.Message{User: "alice", Text: "hi", Timestamp: ts})
	assert.Equal(t, "[09:05:07] alice: hi", got)
}
