package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/proctorai/proctor/internal/tui/app"
	"github.com/proctorai/proctor/internal/tui/client"
)

func main() {
	wsURL := flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL of the proctord server")
	token := flag.String("token", os.Getenv("PROCTOR_AUTH_TOKEN"), "Auth token (if the server requires it)")
	flag.Parse()

	httpBase := deriveHTTPBase(*wsURL)

	ws := client.NewWSClient(*wsURL, *token)
	httpClient := client.NewHTTPClient(httpBase, *token)

	if h, err := httpClient.Health(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: health check failed: %v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "server %s: %d sessions, up %ss, rss %s\n",
			h.Status, h.Sessions, humanize.Comma(h.UptimeSeconds), humanize.Bytes(h.RSSBytes))
	}

	m := app.New(ws, httpClient)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// deriveHTTPBase converts ws://host:port/ws to http://host:port.
func deriveHTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "http://127.0.0.1:8080"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
