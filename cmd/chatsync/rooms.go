package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRoomsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List your chat rooms by latest activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, token, err := buildSession()
			if err != nil {
				return err
			}
			defer sess.Logout()

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			if err := sess.Login(ctx, token); err != nil {
				return err
			}

			rooms := sess.Rooms()
			if len(rooms) == 0 {
				fmt.Println("no rooms")
				return nil
			}
			for _, room := range rooms {
				name := room.Name
				if name == "" {
					name = room.RoomID
				}
				when := "-"
				if room.HasActivity() {
					when = room.LatestTime.Local().Format("2006-01-02 15:04")
				}
				latest := room.LatestMessage
				if latest == "" {
					latest = "(no messages yet)"
				}
				fmt.Printf("%-24s  %s  %s\n", name, when, latest)
			}
			return nil
		},
	}
}
