package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vladimirruppel/roomchat/internal/protocol"
)

// errQuit - пользователь выбрал выход.
var errQuit = errors.New("quit")

// Console - построчный терминальный интерфейс поверх Client.
// Он только выдает намерения (вход, регистрация, вход в комнату, отправка)
// и показывает состояние ядра.
type Console struct {
	reader *bufio.Reader
	log    zerolog.Logger

	outMu sync.Mutex
	out   io.Writer

	client *Client
}

func NewConsole(in io.Reader, out io.Writer, logger zerolog.Logger) *Console {
	return &Console{
		reader: bufio.NewReader(in),
		out:    out,
		log:    logger,
	}
}

// PrintMessage выводит сообщение выбранной комнаты. Подходит для WithOnMessage.
func (con *Console) PrintMessage(msg protocol.Message) {
	con.printf("\r%s\n", FormatMessage(msg))
}

// Run крутит главный цикл до выхода пользователя, конца ввода или отмены ctx.
func (con *Console) Run(ctx context.Context, c *Client) error {
	con.client = c
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var err error
		switch c.State().View() {
		case ViewLogin:
			err = con.handleUnauthenticatedState(ctx)
		case ViewRegister:
			err = con.handleRegisterState(ctx)
		case ViewLobby:
			err = con.handleLobbyState(ctx)
		case ViewChat:
			err = con.handleChatState(ctx)
		}

		switch {
		case errors.Is(err, errQuit):
			con.println("Exiting...")
			return nil
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
	}
}

func (con *Console) handleUnauthenticatedState(ctx context.Context) error {
	con.withOut(displayUnauthenticatedMenu)
	choice, err := con.readLine()
	if err != nil {
		return err
	}

	switch choice {
	case "1":
		username, password, err := con.promptCredentials()
		if err != nil {
			return err
		}
		sess, err := con.client.Login(ctx, username, password)
		if err != nil {
			con.printf("Error: %v\n", err)
			return nil
		}
		con.printf("Login successful! Welcome, %s.\n", sess.Username)
	case "2":
		con.client.State().SetView(ViewRegister)
	case "3":
		return errQuit
	default:
		con.println("Invalid option. Please try again.")
	}
	return nil
}

func (con *Console) handleRegisterState(ctx context.Context) error {
	con.println("\n--- Register ---")
	username, password, err := con.promptCredentials()
	if err != nil {
		return err
	}
	if _, err := con.client.Register(ctx, username, password); err != nil {
		con.printf("Registration failed: %v\n", err)
		con.client.State().SetView(ViewLogin)
		return nil
	}
	con.println("Registration successful! Please login.")
	return nil
}

func (con *Console) handleLobbyState(ctx context.Context) error {
	sess, _ := con.client.Session()
	room := con.client.State().Room()
	con.withOut(func(w io.Writer) { displayLobbyMenu(w, sess.Username, room) })

	choice, err := con.readLine()
	if err != nil {
		return err
	}

	switch choice {
	case "1":
		con.printf("Room name [%s]: ", room)
		name, err := con.readLine()
		if err != nil {
			return err
		}
		if name == "" {
			name = room
		}
		if _, err := con.client.Join(ctx, name); err != nil {
			con.printf("Cannot join: %v\n", err)
		}
	case "2":
		con.withOut(func(w io.Writer) { displayRooms(w, con.client.Rooms()) })
	case "3":
		con.print("Room name: ")
		name, err := con.readLine()
		if err != nil {
			return err
		}
		if err := con.client.SelectRoom(ctx, name); err != nil {
			con.printf("Cannot select room: %v\n", err)
		}
	case "4":
		return errQuit
	default:
		con.println("Invalid option.")
	}
	return nil
}

func (con *Console) handleChatState(ctx context.Context) error {
	sess, _ := con.client.Session()
	con.withOut(func(w io.Writer) { displayChatHeader(w, con.client.State().Room(), sess.Username) })
	con.printHistory()

	for {
		line, err := con.readRawLine()
		if err != nil {
			return err
		}
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "/quit":
			return errQuit
		case trimmed == "/rooms":
			con.withOut(func(w io.Writer) { displayRooms(w, con.client.Rooms()) })
		case trimmed == "/history":
			con.printHistory()
		case strings.HasPrefix(trimmed, "/join"):
			room := strings.TrimSpace(strings.TrimPrefix(trimmed, "/join"))
			if err := con.client.SelectRoom(ctx, room); err != nil {
				con.printf("Cannot join: %v\n", err)
				continue
			}
			// Перерисовываем заголовок и историю новой комнаты
			return nil
		default:
			err := con.client.Send(line)
			switch {
			case err == nil, errors.Is(err, ErrEmptyMessage):
			case errors.Is(err, ErrSendRejected):
				con.println("Not connected, message was not sent.")
			default:
				con.printf("Send failed: %v\n", err)
			}
		}
	}
}

func (con *Console) printHistory() {
	for _, msg := range con.client.Messages() {
		con.println(FormatMessage(msg))
	}
}

func (con *Console) promptCredentials() (string, string, error) {
	con.print("Enter username: ")
	username, err := con.readLine()
	if err != nil {
		return "", "", err
	}
	con.print("Enter password: ")
	password, err := con.readLine()
	if err != nil {
		return "", "", err
	}
	return username, password, nil
}

func (con *Console) readLine() (string, error) {
	line, err := con.readRawLine()
	return strings.TrimSpace(line), err
}

// readRawLine возвращает строку без перевода строки, но с пробелами:
// текст сообщения уходит на сервер без изменений.
func (con *Console) readRawLine() (string, error) {
	line, err := con.reader.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (con *Console) withOut(fn func(io.Writer)) {
	con.outMu.Lock()
	defer con.outMu.Unlock()
	fn(con.out)
}

func (con *Console) print(s string) {
	con.withOut(func(w io.Writer) { fmt.Fprint(w, s) })
}

func (con *Console) println(s string) {
	con.withOut(func(w io.Writer) { fmt.Fprintln(w, s) })
}

func (con *Console) printf(format string, args ...any) {
	con.withOut(func(w io.Writer) { fmt.Fprintf(w, format, args...) })
}
