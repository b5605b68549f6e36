package client

import (
	"fmt"
	"time"

	"github.com/vladimirruppel/roomchat/internal/protocol"
)

// FormatMessage - строка сообщения для консоли: "[15:04:05] user: text".
func FormatMessage(msg protocol.Message) string {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("[%s] %s: %s", ts.Local().Format("15:04:05"), msg.User, msg.Text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
