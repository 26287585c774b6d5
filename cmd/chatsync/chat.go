package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haeun9634/chatsync/internal/chat"
	"github.com/haeun9634/chatsync/internal/connmgr"
)

func newChatCmd() *cobra.Command {
	var roomID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a room and chat interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			if roomID == "" {
				return fmt.Errorf("--room is required")
			}

			sess, logger, token, err := buildSession()
			if err != nil {
				return err
			}
			defer sess.Logout()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := sess.Login(ctx, token); err != nil {
				return err
			}

			store, err := sess.OpenRoom(roomID)
			if store == nil {
				return err
			}
			if err != nil {
				logger.Warn().Err(err).Msg("initial history load failed")
			}
			defer sess.CloseRoom(roomID)

			for _, msg := range store.Messages() {
				printMessage(msg)
			}
			seen := markSeen(store.Messages())

			// Echo new messages as they merge in.
			go func() {
				ticker := time.NewTicker(200 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						for _, msg := range store.Messages() {
							if _, ok := seen[msg.ID]; ok {
								continue
							}
							seen[msg.ID] = struct{}{}
							printMessage(msg)
						}
					}
				}
			}()

			go func() {
				for state := range sess.States() {
					switch state {
					case connmgr.StateConnected:
						fmt.Fprintln(os.Stderr, "-- connected --")
					case connmgr.StateReconnecting:
						fmt.Fprintln(os.Stderr, "-- reconnecting --")
					}
				}
			}()

			fmt.Printf("Joined room %s as %s. Type messages, /more for history, Ctrl+C to quit.\n",
				roomID, sess.Identity().Username)

			lines := make(chan string)
			go func() {
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					lines <- scanner.Text()
				}
				close(lines)
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					line = strings.TrimSpace(line)
					if line == "" {
						continue
					}
					if line == "/more" {
						older, err := sess.LoadOlder(roomID)
						if err != nil {
							fmt.Fprintf(os.Stderr, "load more: %v\n", err)
							continue
						}
						if len(older) == 0 {
							fmt.Fprintln(os.Stderr, "no more history")
						}
						continue
					}
					if _, err := sess.Send(ctx, roomID, line); err != nil {
						if errors.Is(err, chat.ErrNotConnected) {
							fmt.Fprintln(os.Stderr, "not connected, message not sent")
							continue
						}
						fmt.Fprintf(os.Stderr, "send: %v\n", err)
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&roomID, "room", "", "room id to open")
	return cmd
}

func printMessage(msg chat.Message) {
	ts := msg.SentAt.Local().Format("15:04:05")
	switch msg.Type {
	case chat.MessageTalk:
		fmt.Printf("[%s] %s: %s\n", ts, msg.SenderName, msg.Content)
	default:
		fmt.Printf("[%s] * %s\n", ts, msg.Content)
	}
}

func markSeen(msgs []chat.Message) map[string]struct{} {
	seen := make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		seen[msg.ID] = struct{}{}
	}
	return seen
}
