package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dotdevdotdev/agentwire-sub003/internal/style"
)

var attachCmd = &cobra.Command{
	Use:     "attach NAME[@MACHINE]",
	GroupID: GroupSessions,
	Short:   "Attach this terminal to a session through the server",
	Long: `Attach connects the local terminal to a session through a running
agentwire server, over the same WebSocket endpoint browsers use.
Detach with Ctrl+B d as usual; closing the connection never kills the
session.`,
	Args: cobra.ExactArgs(1),
	RunE: runAttach,
}

var attachServer string

func init() {
	attachCmd.Flags().StringVar(&attachServer, "server", "http://127.0.0.1:7600", "Server base URL")

	rootCmd.AddCommand(attachCmd)
}

func runAttach(cmd *cobra.Command, args []string) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("attach requires a terminal")
	}

	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return fmt.Errorf("reading terminal size: %w", err)
	}

	wsBase := strings.Replace(attachServer, "http", "ws", 1)
	endpoint := fmt.Sprintf("%s/ws/terminal?session=%s&cols=%d&rows=%d",
		wsBase, url.QueryEscape(args[0]), cols, rows)

	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer conn.Close()

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("entering raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	// The resize and stdin goroutines share the socket; gorilla allows
	// one writer at a time.
	var writeMu sync.Mutex
	send := func(kind int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(kind, data)
	}

	// Propagate window size changes for as long as we are attached.
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			c, r, err := term.GetSize(fd)
			if err != nil {
				continue
			}
			msg, _ := json.Marshal(map[string]any{
				"type":    "resize",
				"columns": c,
				"rows":    r,
			})
			send(websocket.TextMessage, msg)
		}
	}()

	// stdin to socket.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if werr := send(websocket.BinaryMessage, buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				conn.Close()
				return
			}
		}
	}()

	// Socket to stdout, with text frames as control.
	var endReason string
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		switch kind {
		case websocket.BinaryMessage:
			os.Stdout.Write(data)
		case websocket.TextMessage:
			var f struct {
				Type    string `json:"type"`
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			if json.Unmarshal(data, &f) != nil {
				continue
			}
			switch f.Type {
			case "error":
				endReason = f.Message
			case "ended":
				if endReason == "" {
					endReason = f.Code
				}
			}
		}
	}

	term.Restore(fd, oldState)
	if endReason != "" {
		fmt.Printf("\n%s session ended: %s\n", style.Error.Render("✗"), endReason)
		return fmt.Errorf("session ended: %s", endReason)
	}
	fmt.Printf("\n%s detached\n", style.Dim.Render("–"))
	return nil
}
