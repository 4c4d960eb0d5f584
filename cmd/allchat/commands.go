package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hemantsingh443/allchat-sub000/internal/client"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
)

var (
	chatID     string
	attachPath string
	branchTo   string
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List your chats with their branches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, err := newConversation()
		if err != nil {
			return err
		}
		ctx, cancel := client.WithTimeout(cmd.Context())
		defer cancel()
		if err := conv.LoadChats(ctx); err != nil {
			return err
		}
		printForest(conv.Store().Forest())
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show CHAT_ID",
	Short: "Print a chat's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, err := newConversation()
		if err != nil {
			return err
		}
		ctx, cancel := client.WithTimeout(cmd.Context())
		defer cancel()
		if err := conv.OpenChat(ctx, args[0]); err != nil {
			return err
		}
		printMessages(conv.Store().History(args[0]))
		return nil
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the server offers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := client.WithTimeout(cmd.Context())
		defer cancel()
		catalog, err := client.NewAPI(serverURL, token).ListModels(ctx)
		if err != nil {
			return err
		}
		for _, p := range catalog.Providers {
			key := "needs your key"
			if p.ServerKey {
				key = "server key"
			}
			fmt.Printf("%s %s\n", aiStyle.Render(p.Name), dimStyle.Render("("+key+")"))
			for _, m := range p.Models {
				marker := "  "
				if m.ID == catalog.DefaultModel {
					marker = "* "
				}
				fmt.Printf("  %s%s  %s\n", marker, m.ID, dimStyle.Render(m.DisplayName))
			}
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send MESSAGE...",
	Short: "Send a message and stream the reply",
	Long:  "Send a message to an existing chat (--chat) or start a new one.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, err := newConversation()
		if err != nil {
			return err
		}
		model, err := resolveModel(cmd.Context(), client.NewAPI(serverURL, token))
		if err != nil {
			return err
		}
		opts := sendOptions(model)
		if attachPath != "" {
			if err := attachFile(&opts, attachPath); err != nil {
				return err
			}
		}
		if chatID != "" {
			if err := openChat(cmd.Context(), conv, chatID); err != nil {
				return err
			}
		}

		content := strings.Join(args, " ")
		return runStream(conv, func(ctx context.Context) (*models.Message, error) {
			return conv.HandleSendMessage(ctx, chatID, content, opts)
		})
	},
}

var editCmd = &cobra.Command{
	Use:   "edit CHAT_ID MESSAGE_ID NEW_CONTENT...",
	Short: "Rewrite one of your messages and regenerate from it",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, err := newConversation()
		if err != nil {
			return err
		}
		model, err := resolveModel(cmd.Context(), client.NewAPI(serverURL, token))
		if err != nil {
			return err
		}
		if err := openChat(cmd.Context(), conv, args[0]); err != nil {
			return err
		}

		content := strings.Join(args[2:], " ")
		return runStream(conv, func(ctx context.Context) (*models.Message, error) {
			return conv.HandleEditAndResubmit(ctx, args[0], args[1], content, sendOptions(model))
		})
	},
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate CHAT_ID MESSAGE_ID",
	Short: "Regenerate a reply, optionally with another model (--model)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, err := newConversation()
		if err != nil {
			return err
		}
		model, err := resolveModel(cmd.Context(), client.NewAPI(serverURL, token))
		if err != nil {
			return err
		}
		if err := openChat(cmd.Context(), conv, args[0]); err != nil {
			return err
		}

		return runStream(conv, func(ctx context.Context) (*models.Message, error) {
			return conv.HandleRegenerate(ctx, args[0], args[1], sendOptions(model))
		})
	},
}

var branchCmd = &cobra.Command{
	Use:   "branch CHAT_ID AI_MESSAGE_ID",
	Short: "Copy a chat up to a reply into a new chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, err := newConversation()
		if err != nil {
			return err
		}
		ctx, cancel := client.WithTimeout(cmd.Context())
		defer cancel()
		chat, err := conv.HandleBranch(ctx, args[0], args[1], branchTo)
		if err != nil {
			return errReported
		}
		fmt.Printf("%s  %s\n", dimStyle.Render(chat.ID), chat.Title)
		return nil
	},
}

var deleteMessageCmd = &cobra.Command{
	Use:   "delete-message CHAT_ID MESSAGE_ID",
	Short: "Delete a message and its reply",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, err := newConversation()
		if err != nil {
			return err
		}
		ctx, cancel := client.WithTimeout(cmd.Context())
		defer cancel()
		if err := conv.HandleDeleteMessage(ctx, args[0], args[1]); err != nil {
			return errReported
		}
		fmt.Println("Deleted.")
		return nil
	},
}

var deleteChatCmd = &cobra.Command{
	Use:   "delete-chat CHAT_ID",
	Short: "Delete a chat; its branches are kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, err := newConversation()
		if err != nil {
			return err
		}
		ctx, cancel := client.WithTimeout(cmd.Context())
		defer cancel()
		if err := conv.HandleDeleteChat(ctx, args[0]); err != nil {
			return errReported
		}
		fmt.Println("Deleted.")
		return nil
	},
}

var interruptCmd = &cobra.Command{
	Use:   "interrupt STREAM_ID",
	Short: "Stop a running generation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := client.WithTimeout(cmd.Context())
		defer cancel()
		if err := client.NewAPI(serverURL, token).Interrupt(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("Interrupted.")
		return nil
	},
}

var guestCmd = &cobra.Command{
	Use:   "guest MESSAGE...",
	Short: "Chat without an account (limited trial)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := guestStoragePath()
		if err != nil {
			return err
		}
		storage, err := client.OpenFileStorage(path)
		if err != nil {
			return err
		}
		api := client.NewAPI(serverURL, "")
		guest, err := client.NewGuestSession(api, storage, notifier{}, newLogger())
		if err != nil {
			return err
		}
		model, err := resolveModel(cmd.Context(), api)
		if err != nil {
			return err
		}

		p := &printer{}
		guest.SetObserver(p)
		ctx, stop := interruptible(nil)
		defer stop()

		if _, err := guest.Send(ctx, chatID, strings.Join(args, " "), model); err != nil {
			return errReported
		}
		fmt.Fprintln(os.Stderr, dimStyle.Render(fmt.Sprintf("chat %s · %d guest messages left", guest.Store().Active(), guest.Remaining())))
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVarP(&chatID, "chat", "c", "", "Chat to continue (default: start a new chat)")
	sendCmd.Flags().StringVarP(&attachPath, "file", "f", "", "Attach a file")
	guestCmd.Flags().StringVarP(&chatID, "chat", "c", "", "Guest chat to continue")
	branchCmd.Flags().StringVar(&branchTo, "new-model", "", "Model for the branched chat")

	rootCmd.AddCommand(chatsCmd, showCmd, modelsCmd, sendCmd, editCmd, regenerateCmd,
		branchCmd, deleteMessageCmd, deleteChatCmd, interruptCmd, guestCmd)
}

func openChat(ctx context.Context, conv *client.Conversation, id string) error {
	ctx, cancel := client.WithTimeout(ctx)
	defer cancel()
	return conv.OpenChat(ctx, id)
}

// runStream prints the reply as it streams. The first Ctrl-C asks the
// server to stop; a second one drops the connection.
func runStream(conv *client.Conversation, fn func(ctx context.Context) (*models.Message, error)) error {
	p := &printer{}
	conv.SetObserver(p)
	ctx, stop := interruptible(func() {
		id := p.placeholder()
		if id == "" {
			return
		}
		ictx, cancel := client.WithTimeout(context.Background())
		defer cancel()
		if err := conv.Interrupt(ictx, id); err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render("interrupt failed: "+err.Error()))
		}
	})
	defer stop()

	if _, err := fn(ctx); err != nil {
		return errReported
	}
	return nil
}

// attachFile reads path into opts as base64 with a detected MIME type.
func attachFile(opts *client.SendOptions, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	opts.FileData = base64.StdEncoding.EncodeToString(data)
	opts.FileMimeType = mimeType
	opts.FileName = filepath.Base(path)
	return nil
}
