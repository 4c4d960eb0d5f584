package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mstream "github.com/haowjy/meridian-stream-go"

	"github.com/hemantsingh443/allchat-sub000/internal/config"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	domainllm "github.com/hemantsingh443/allchat-sub000/internal/domain/services/llm"
	"github.com/hemantsingh443/allchat-sub000/internal/frame"
	"github.com/hemantsingh443/allchat-sub000/internal/handler"
	"github.com/hemantsingh443/allchat-sub000/internal/httputil"
	"github.com/hemantsingh443/allchat-sub000/internal/repository/memory"
	"github.com/hemantsingh443/allchat-sub000/internal/service/auth"
	serviceChat "github.com/hemantsingh443/allchat-sub000/internal/service/chat"
	"github.com/hemantsingh443/allchat-sub000/internal/service/session"
)

// stallingGenerator sends one word and then waits for cancellation.
type stallingGenerator struct{}

func (stallingGenerator) Name() string { return "stalling" }

func (stallingGenerator) Stream(ctx context.Context, _ *domainllm.GenerateRequest) (<-chan domainllm.StreamEvent, error) {
	out := make(chan domainllm.StreamEvent)
	go func() {
		defer close(out)
		select {
		case out <- domainllm.StreamEvent{Delta: &domainllm.Delta{Kind: domainllm.DeltaContent, Text: "Hel"}}:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
	}()
	return out, nil
}

// serverKeyRouter serves every model with one server-held key.
type serverKeyRouter struct{}

func (serverKeyRouter) Route(model string) domainllm.Route {
	return domainllm.Route{Provider: "stalling", UpstreamModel: model}
}

func (r serverKeyRouter) Resolve(model, _ string) (domainllm.Credential, error) {
	cred, _ := r.ServerCredential(model)
	return cred, nil
}

func (serverKeyRouter) ServerCredential(string) (domainllm.Credential, bool) {
	return domainllm.Credential{Provider: "stalling", APIKey: "server", Source: domainllm.KeySourceServerDefault}, true
}

func (serverKeyRouter) Generator(domainllm.Credential) (domainllm.Generator, error) {
	return stallingGenerator{}, nil
}

// newBackend serves the chat and stream routes over an in-memory store,
// with every request authenticated as userID.
func newBackend(t *testing.T, userID string) (*memory.Store, string) {
	t.Helper()
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authz := auth.NewOwnerBasedAuthorizer(store.Chats(), store.Messages())

	chatService := serviceChat.NewService(store.Chats(), store.Messages(), store.TxManager(), authz, logger)
	sessionService := session.NewService(store.Chats(), store.Messages(), store.TxManager(), authz,
		serverKeyRouter{}, nil, mstream.NewRegistry(), &config.Config{}, logger)

	chatHandler := handler.NewChatHandler(chatService, logger)
	sessionHandler := handler.NewSessionHandler(sessionService, nil, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chats", chatHandler.ListChats)
	mux.HandleFunc("GET /api/chats/{id}", chatHandler.GetChat)
	mux.HandleFunc("POST /api/chat", sessionHandler.Send)
	mux.HandleFunc("POST /api/streams/{id}/interrupt", sessionHandler.Interrupt)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, httputil.WithUserID(r, userID))
	}))
	t.Cleanup(ts.Close)
	return store, ts.URL
}

func TestInterruptLeavesClientAndServerInSync(t *testing.T) {
	store, url := newBackend(t, "alice")
	ctx := testContext(t)

	conv := NewConversation(NewAPI(url, "token"), newTestStore(), &noticeLog{}, discardLogger())
	observer := &interruptingObserver{conv: conv}
	conv.SetObserver(observer)

	_, err := conv.HandleSendMessage(ctx, "", "hello", SendOptions{ModelID: "m1"})
	if observer.err != nil {
		t.Fatalf("Interrupt() error = %v", observer.err)
	}
	var streamErr *StreamError
	if !errors.As(err, &streamErr) || streamErr.Code != frame.CodeInterrupted {
		t.Fatalf("error = %v, want interrupted StreamError", err)
	}

	if n := len(conv.Store().Chats()); n != 0 {
		t.Errorf("client has %d chats after interrupt, want 0", n)
	}
	serverChats, err := store.Chats().ListChats(ctx, "alice")
	if err != nil {
		t.Fatalf("ListChats: %v", err)
	}
	if len(serverChats) != 0 {
		t.Errorf("server has %d chats after interrupt, want 0", len(serverChats))
	}

	// A reload must not bring back anything the client dropped.
	if err := conv.LoadChats(ctx); err != nil {
		t.Fatalf("LoadChats() error = %v", err)
	}
	if n := len(conv.Store().Chats()); n != 0 {
		t.Errorf("client has %d chats after reload, want 0", n)
	}
}

func TestInterruptFollowUpKeepsEarlierTurns(t *testing.T) {
	store, url := newBackend(t, "alice")
	ctx := testContext(t)

	chat := &models.Chat{UserID: "alice", Title: "existing", ModelID: "m0"}
	if err := store.Chats().CreateChat(ctx, chat); err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, m := range []models.Message{
		{ChatID: chat.ID, Role: models.RoleUser, Content: "q1", CreatedAt: base},
		{ChatID: chat.ID, Role: models.RoleAI, Content: "a1", CreatedAt: base.Add(time.Second)},
	} {
		if err := store.Messages().CreateMessage(ctx, &m); err != nil {
			t.Fatalf("CreateMessage %d: %v", i, err)
		}
	}

	conv := NewConversation(NewAPI(url, "token"), newTestStore(), &noticeLog{}, discardLogger())
	if err := conv.OpenChat(ctx, chat.ID); err != nil {
		t.Fatalf("OpenChat() error = %v", err)
	}
	observer := &interruptingObserver{conv: conv}
	conv.SetObserver(observer)

	_, err := conv.HandleSendMessage(ctx, chat.ID, "q2", SendOptions{ModelID: "m1"})
	var streamErr *StreamError
	if !errors.As(err, &streamErr) || streamErr.Code != frame.CodeInterrupted {
		t.Fatalf("error = %v, want interrupted StreamError", err)
	}

	serverMessages, err := store.Messages().ListMessages(ctx, chat.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	client, server := ids(conv.Store().Display(chat.ID)), historyIDs(serverMessages)
	if client != server || len(serverMessages) != 2 {
		t.Errorf("client messages %q, server messages %q, want the same two", client, server)
	}

	stored, err := store.Chats().GetChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("GetChat: %v", err)
	}
	if stored.ModelID != "m0" {
		t.Errorf("chat model = %q after interrupt, want unchanged m0", stored.ModelID)
	}
}
