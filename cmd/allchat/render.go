package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/hemantsingh443/allchat-sub000/internal/client"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/frame"
)

var (
	reasoningStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#F2C94C"))
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EB5757"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	aiStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	dimStyle       = lipgloss.NewStyle().Faint(true)
)

// notifier prints notifications to stderr.
type notifier struct{}

func (notifier) Notify(level client.NoticeLevel, message string) {
	if level == client.NoticeError {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+message))
		return
	}
	fmt.Fprintln(os.Stderr, infoStyle.Render(message))
}

// printer writes snapshots to stdout as they grow.
type printer struct {
	mu            sync.Mutex
	placeholderID string
	reasoningLen  int
	contentLen    int
	inReasoning   bool
}

func (p *printer) placeholder() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.placeholderID
}

func (p *printer) track(placeholderID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placeholderID = placeholderID
}

func (p *printer) OnChatInfo(placeholderID string, info frame.ChatInfo) {
	p.track(placeholderID)
	if info.Chat != nil {
		fmt.Fprintln(os.Stderr, dimStyle.Render(fmt.Sprintf("chat %s: %s", info.Chat.ID, info.Chat.Title)))
	}
}

func (p *printer) OnSnapshot(placeholderID string, acc client.Accumulator) {
	p.track(placeholderID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(acc.Reasoning) > p.reasoningLen {
		fmt.Print(reasoningStyle.Render(acc.Reasoning[p.reasoningLen:]))
		p.reasoningLen = len(acc.Reasoning)
		p.inReasoning = true
	}
	if len(acc.Content) > p.contentLen {
		if p.inReasoning {
			fmt.Print("\n\n")
			p.inReasoning = false
		}
		fmt.Print(acc.Content[p.contentLen:])
		p.contentLen = len(acc.Content)
	}
}

func (p *printer) OnKeyUsage(placeholderID string, source string) {
	p.track(placeholderID)
}

func (p *printer) OnComplete(placeholderID string, msg models.Message) {
	fmt.Println()
	var meta []string
	if msg.ModelID != "" {
		meta = append(meta, msg.ModelID)
	}
	if msg.UsedWebSearch {
		meta = append(meta, fmt.Sprintf("%d search results", len(msg.SearchResults)))
	}
	meta = append(meta, "message "+msg.ID)
	fmt.Fprintln(os.Stderr, dimStyle.Render(strings.Join(meta, " · ")))
}

func printMessages(messages []models.Message) {
	for _, m := range messages {
		label := userStyle.Render("you")
		if m.Role == models.RoleAI {
			label = aiStyle.Render(m.ModelID)
		}
		fmt.Printf("%s %s\n", label, dimStyle.Render(m.ID))
		if m.Reasoning != nil && *m.Reasoning != "" {
			fmt.Println(reasoningStyle.Render(*m.Reasoning))
		}
		fmt.Println(m.Content)
		fmt.Println()
	}
}

func printForest(rows []models.FlatChat) {
	if len(rows) == 0 {
		fmt.Println("No chats yet.")
		return
	}
	for _, row := range rows {
		title := row.Chat.Title
		if row.Chat.IsPublic {
			title += dimStyle.Render(" (shared)")
		}
		fmt.Printf("%s%s  %s\n", strings.Repeat("  ", row.Depth), dimStyle.Render(row.Chat.ID), title)
	}
}
