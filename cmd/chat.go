package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"techtribe-client/internal/models"
	"techtribe-client/internal/services"

	"github.com/spf13/cobra"
)

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <user-id>",
		Short: "Chat with a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				self, err := services.NewProfileService(a.sessions, a.store).FetchProfile(ctx)
				if err != nil {
					return err
				}

				chat := services.NewChatSession(a.sessions, a.sessions, services.NewWSDialer(cfg.API.SocketURL), a.events)
				defer chat.Close()

				out := cmd.OutOrStdout()
				printer := &transcript{out: out, selfID: self.ID}
				unsubscribe := chat.Subscribe(printer.update)
				defer unsubscribe()

				if err := chat.Open(ctx, *self, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(out, "Type a message and press enter. /quit leaves the chat.")

				return chatInput(ctx, chat, cmd.InOrStdin())
			})
		},
	}
}

// chatInput sends each input line until the input ends, the user quits or ctx is cancelled
func chatInput(ctx context.Context, chat *services.ChatSession, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				return nil
			}
			if err := chat.Send(line); err != nil {
				return err
			}
		}
	}
}

// transcript prints messages as they are appended to the conversation
type transcript struct {
	mu      sync.Mutex
	out     io.Writer
	selfID  string
	printed int
	status  services.ChatStatus
}

func (t *transcript) update(u services.ChatUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if u.Status != t.status {
		if u.Status == services.ChatDisconnected {
			fmt.Fprintln(t.out, "-- connection lost, run the command again to reconnect --")
		}
		t.status = u.Status
	}

	if len(u.Messages) < t.printed {
		t.printed = 0
	}
	for _, m := range u.Messages[t.printed:] {
		fmt.Fprintln(t.out, t.format(m))
	}
	t.printed = len(u.Messages)
}

func (t *transcript) format(m models.ChatMessage) string {
	name := m.SenderFirstName
	if m.SenderID == t.selfID {
		name = "you"
	}
	ts := ""
	if !m.Timestamp.IsZero() {
		ts = m.Timestamp.Local().Format("15:04") + " "
	}
	return fmt.Sprintf("%s%s: %s", ts, name, m.Text)
}
