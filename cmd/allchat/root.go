package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hemantsingh443/allchat-sub000/internal/client"
)

var (
	serverURL    string
	token        string
	modelID      string
	useWebSearch bool
	userAPIKey   string
	debug        bool
)

var rootCmd = &cobra.Command{
	Use:   "allchat",
	Short: "Terminal client for the allchat server",
	Long: `allchat talks to an allchat server: it streams replies from any
configured model, edits and regenerates messages, and branches chats.
Without a token, the guest command offers a limited trial.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		if serverURL == "" {
			serverURL = envOr("ALLCHAT_URL", "http://localhost:8080")
		}
		if token == "" {
			token = os.Getenv("ALLCHAT_TOKEN")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "Server URL (default $ALLCHAT_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Access token (default $ALLCHAT_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&modelID, "model", "m", "", "Model id (default: server default)")
	rootCmd.PersistentFlags().BoolVarP(&useWebSearch, "web", "w", false, "Augment the prompt with web search results")
	rootCmd.PersistentFlags().StringVar(&userAPIKey, "api-key", os.Getenv("ALLCHAT_API_KEY"), "Your own provider API key")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log client diagnostics to stderr")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger() *slog.Logger {
	var out io.Writer = io.Discard
	level := slog.LevelInfo
	if debug {
		out = os.Stderr
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

// newConversation builds a signed-in conversation. Every command except
// guest requires a token.
func newConversation() (*client.Conversation, error) {
	if token == "" {
		return nil, fmt.Errorf("no token: set ALLCHAT_TOKEN or pass --token, or use the guest command")
	}
	api := client.NewAPI(serverURL, token)
	return client.NewConversation(api, client.NewStore(), notifier{}, newLogger()), nil
}

// resolveModel falls back to the server's default model.
func resolveModel(ctx context.Context, api *client.API) (string, error) {
	if modelID != "" {
		return modelID, nil
	}
	ctx, cancel := client.WithTimeout(ctx)
	defer cancel()
	catalog, err := api.ListModels(ctx)
	if err != nil {
		return "", err
	}
	return catalog.DefaultModel, nil
}

func sendOptions(model string) client.SendOptions {
	return client.SendOptions{
		ModelID:      model,
		UseWebSearch: useWebSearch,
		UserAPIKey:   userAPIKey,
	}
}

// guestStoragePath is where guest chats live on this device.
func guestStoragePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "allchat", "guest.json"), nil
}

// interruptible returns a context cancelled by a second Ctrl-C. The first
// Ctrl-C calls onInterrupt so the server can stop the stream cleanly.
func interruptible(onInterrupt func()) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		count := 0
		for {
			select {
			case <-sigs:
				count++
				if count == 1 && onInterrupt != nil {
					go onInterrupt()
					continue
				}
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}
