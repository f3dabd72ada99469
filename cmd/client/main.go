package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"go-liveclass/internal/client"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "hub websocket url")
	token := flag.String("token", "", "identity token (optional unless the server requires it)")
	user := flag.String("user", "", "user id to join as (prompted when empty)")
	class := flag.String("class", "", "class id to join")
	flag.Parse()

	if *class == "" {
		slog.Error("missing -class")
		os.Exit(2)
	}

	ch := make(chan tea.Msg, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	ws, err := client.Dial(ctx, *url, *token, ch)
	cancel()
	if err != nil {
		slog.Error("failed to connect", "err", err)
		os.Exit(1)
	}
	defer ws.Close()
	ws.Start()

	p := tea.NewProgram(client.NewModel(ws, ch, *user, *class))
	if _, err := p.Run(); err != nil {
		slog.Error("client stopped", "err", err)
		os.Exit(1)
	}
}
