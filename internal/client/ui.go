package client

import (
	"fmt"
	"io"
)

func displayUnauthenticatedMenu(w io.Writer) {
	fmt.Fprintln(w, "\n--- Chat Menu ---")
	fmt.Fprintln(w, "1. Login")
	fmt.Fprintln(w, "2. Register")
	fmt.Fprintln(w, "3. Exit")
	fmt.Fprint(w, "Choose an option: ")
}

// Главное меню для вошедшего пользователя
func displayLobbyMenu(w io.Writer, username, room string) {
	fmt.Fprintln(w, "\n--- Chat Rooms ---")
	fmt.Fprintf(w, "Logged in as: %s, selected room: %s\n", username, room)
	fmt.Fprintln(w, "1. Join Chat")
	fmt.Fprintln(w, "2. Show Active Rooms")
	fmt.Fprintln(w, "3. Select Room")
	fmt.Fprintln(w, "4. Exit")
	fmt.Fprint(w, "Choose an option: ")
}

// Список активных комнат
func displayRooms(w io.Writer, rooms []string) {
	fmt.Fprintln(w, "\n--- Active Rooms ---")
	if len(rooms) == 0 {
		fmt.Fprintln(w, "No rooms active yet")
		return
	}
	for i, room := range rooms {
		fmt.Fprintf(w, "%d. %s\n", i+1, room)
	}
}

func displayChatHeader(w io.Writer, room, username string) {
	fmt.Fprintf(w, "\n--- Room: %s ---\n", room)
	fmt.Fprintf(w, "User: %s\n", username)
	fmt.Fprintln(w, "Type a message and press Enter. Commands: /rooms, /join <room>, /history, /quit")
}
