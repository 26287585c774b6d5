package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/haeun9634/chatsync/internal/api"
	"github.com/haeun9634/chatsync/internal/config"
	"github.com/haeun9634/chatsync/internal/log"
	"github.com/haeun9634/chatsync/internal/session"
	"github.com/haeun9634/chatsync/internal/transport/ws"
)

var (
	flagConfig   string
	flagServer   string
	flagPushURL  string
	flagToken    string
	flagLogLevel string
)

func main() {
	root := &cobra.Command{
		Use:           "chatsync",
		Short:         "Synchronized chat client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path")
	root.PersistentFlags().StringVar(&flagServer, "server", "", "API base URL")
	root.PersistentFlags().StringVar(&flagPushURL, "push-url", "", "push channel websocket URL")
	root.PersistentFlags().StringVar(&flagToken, "token", "", "bearer credential (or CHATSYNC_TOKEN)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(newRoomsCmd(), newChatCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chatsync: %v\n", err)
		os.Exit(1)
	}
}

// buildSession loads config, applies flag overrides, and wires up an
// unauthenticated Session plus its logger.
func buildSession() (*session.Session, *zerolog.Logger, string, error) {
	bootstrapLog := log.New("warn")
	cfg, _, err := config.Load(bootstrapLog, flagConfig)
	if err != nil {
		return nil, nil, "", err
	}
	cfg.UpdateFrom(config.Config{
		APIBaseURL: flagServer,
		PushURL:    flagPushURL,
		LogLevel:   flagLogLevel,
	})

	token := flagToken
	if token == "" {
		token = os.Getenv("CHATSYNC_TOKEN")
	}
	if token == "" {
		return nil, nil, "", fmt.Errorf("no credential: pass --token or set CHATSYNC_TOKEN")
	}

	logger := log.New(cfg.LogLevel)
	client := api.NewClient(cfg.APIBaseURL, token, logger)
	transport := ws.NewTransport(cfg.PushURL)
	sess := session.New(client, transport, session.Options{
		ReconnectDelay: cfg.ReconnectDelay,
		PageSize:       cfg.PageSize,
	}, logger)
	return sess, logger, token, nil
}
