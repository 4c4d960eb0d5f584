package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hemantsingh443/allchat-sub000/internal/config"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/services"
	"github.com/hemantsingh443/allchat-sub000/internal/frame"
)

type notice struct {
	level   NoticeLevel
	message string
}

type noticeLog struct {
	mu      sync.Mutex
	notices []notice
}

func (n *noticeLog) Notify(level NoticeLevel, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{level, message})
}

func (n *noticeLog) all() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.notices...)
}

// chatServer answers stream routes with scripted frames.
type chatServer struct {
	mu       sync.Mutex
	frames   []frame.Event
	status   int
	problem  string
	sends    []services.SendRequest
	guests   []services.GuestRequest
	streamID string
}

func (s *chatServer) script(frames ...frame.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = frames
	s.status = 0
}

func (s *chatServer) fail(status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.problem = detail
}

func (s *chatServer) stream(w http.ResponseWriter) {
	s.mu.Lock()
	status, problem, frames := s.status, s.problem, s.frames
	s.mu.Unlock()

	if status != 0 {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{"status": status, "detail": problem})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set(streamIDHeader, s.streamID)
	w.WriteHeader(http.StatusOK)
	fw := frame.NewWriter(w)
	for _, ev := range frames {
		fw.Send(ev)
	}
}

func (s *chatServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req services.SendRequest
		json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		s.sends = append(s.sends, req)
		s.mu.Unlock()
		s.stream(w)
	})
	mux.HandleFunc("POST /api/guest/chat", func(w http.ResponseWriter, r *http.Request) {
		var req services.GuestRequest
		json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		s.guests = append(s.guests, req)
		s.mu.Unlock()
		s.stream(w)
	})
	return mux
}

func newConversation(t *testing.T, srv *chatServer) (*Conversation, *noticeLog) {
	t.Helper()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)
	notices := &noticeLog{}
	return NewConversation(NewAPI(ts.URL, "token"), newTestStore(), notices, discardLogger()), notices
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func replyTo(id string) *string { return &id }

func TestConversationSendNewChatThenFollowUp(t *testing.T) {
	srv := &chatServer{streamID: "s-1"}
	conv, notices := newConversation(t, srv)
	ctx := testContext(t)

	u1 := msg("u1", models.RoleUser, "hi")
	a1 := msg("a1", models.RoleAI, "Hello")
	a1.ReplyToID = replyTo("u1")
	a1.ModelID = "m1"
	srv.script(
		frame.ChatInfo{Chat: &models.Chat{ID: "c1", Title: "hi", ModelID: "m1"}, UserMessage: &u1},
		frame.KeyUsage{Source: frame.KeySourceServerDefault},
		frame.ContentWord{Content: "Hel"},
		frame.ContentWord{Content: "lo"},
		frame.Complete{Message: a1},
	)

	got, err := conv.HandleSendMessage(ctx, "", "hi", SendOptions{ModelID: "m1"})
	if err != nil {
		t.Fatalf("HandleSendMessage() error = %v", err)
	}
	if got.ID != "a1" {
		t.Errorf("message = %+v", got)
	}
	store := conv.Store()
	if got := ids(store.Display("c1")); got != "u1,a1" {
		t.Errorf("entries = %s, want u1,a1", got)
	}
	if chats := store.Chats(); len(chats) != 1 || chats[0].ID != "c1" {
		t.Errorf("chats = %+v", chats)
	}

	u2 := msg("u2", models.RoleUser, "again")
	a2 := msg("a2", models.RoleAI, "Sure")
	srv.script(
		frame.ChatInfo{UserMessage: &u2},
		frame.KeyUsage{Source: frame.KeySourceServerDefault},
		frame.Complete{Message: a2},
	)
	if _, err := conv.HandleSendMessage(ctx, "c1", "again", SendOptions{ModelID: "m1"}); err != nil {
		t.Fatalf("follow-up error = %v", err)
	}
	if got := ids(store.Display("c1")); got != "u1,a1,u2,a2" {
		t.Errorf("entries = %s", got)
	}

	req := srv.sends[1]
	if req.ChatID != "c1" || len(req.Messages) != 3 || req.Messages[2].Content != "again" {
		t.Errorf("follow-up request = %+v", req)
	}

	infos := 0
	for _, n := range notices.all() {
		if n.level == NoticeInfo {
			infos++
		}
	}
	if infos != 1 {
		t.Errorf("server key notices = %d, want 1", infos)
	}
}

func TestConversationMidStreamErrorRollsBack(t *testing.T) {
	srv := &chatServer{streamID: "s-1"}
	conv, notices := newConversation(t, srv)
	conv.Store().SetChats([]models.Chat{{ID: "c1"}})
	conv.Store().SetMessages("c1", []models.Message{msg("u0", models.RoleUser, "q"), msg("a0", models.RoleAI, "a")})

	u1 := msg("u1", models.RoleUser, "next")
	srv.script(
		frame.ChatInfo{UserMessage: &u1},
		frame.ContentWord{Content: "par"},
		frame.Error{Message: "The model failed to respond.", Code: frame.CodeUpstream},
	)

	_, err := conv.HandleSendMessage(testContext(t), "c1", "next", SendOptions{ModelID: "m1"})
	var streamErr *StreamError
	if !errors.As(err, &streamErr) || streamErr.Code != frame.CodeUpstream {
		t.Fatalf("error = %v, want upstream StreamError", err)
	}
	if got := ids(conv.Store().Display("c1")); got != "u0,a0" {
		t.Errorf("entries = %s, want u0,a0", got)
	}
	all := notices.all()
	if len(all) != 1 || all[0].level != NoticeError || all[0].message != "The model failed to respond." {
		t.Errorf("notices = %+v", all)
	}
}

func TestConversationRejectedRequestRollsBackNewChat(t *testing.T) {
	srv := &chatServer{}
	conv, notices := newConversation(t, srv)
	srv.fail(http.StatusUnauthorized, "invalid token")

	_, err := conv.HandleSendMessage(testContext(t), "", "hi", SendOptions{ModelID: "m1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || apiErr.Detail != "invalid token" {
		t.Fatalf("error = %v, want 401 APIError", err)
	}
	if n := len(conv.Store().Chats()); n != 0 {
		t.Errorf("%d chats after rejected send", n)
	}
	if conv.Store().Active() != "" {
		t.Errorf("active = %q after rejected send", conv.Store().Active())
	}
	all := notices.all()
	if len(all) != 1 || all[0].message != "invalid token" {
		t.Errorf("notices = %+v", all)
	}
}

// interruptingObserver interrupts the stream as soon as it starts.
type interruptingObserver struct {
	recordingHandler
	conv *Conversation
	err  error
}

func (o *interruptingObserver) OnChatInfo(placeholderID string, info frame.ChatInfo) {
	o.err = o.conv.Interrupt(context.Background(), placeholderID)
}

func TestConversationInterrupt(t *testing.T) {
	interrupted := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(streamIDHeader, "s-42")
		fw := frame.NewWriter(w)
		u1 := msg("u1", models.RoleUser, "hi")
		fw.Send(frame.ChatInfo{UserMessage: &u1})
		select {
		case <-interrupted:
			fw.Send(frame.Error{Message: "Generation stopped.", Code: frame.CodeInterrupted})
		case <-time.After(5 * time.Second):
		}
	})
	mux.HandleFunc("POST /api/streams/{id}/interrupt", func(w http.ResponseWriter, r *http.Request) {
		interrupted <- r.PathValue("id")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"success":true}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	conv := NewConversation(NewAPI(ts.URL, "token"), newTestStore(), &noticeLog{}, discardLogger())
	conv.Store().SetChats([]models.Chat{{ID: "c1"}})
	observer := &interruptingObserver{conv: conv}
	conv.SetObserver(observer)

	_, err := conv.HandleSendMessage(testContext(t), "c1", "hi", SendOptions{ModelID: "m1"})
	if observer.err != nil {
		t.Fatalf("Interrupt() error = %v", observer.err)
	}
	var streamErr *StreamError
	if !errors.As(err, &streamErr) || streamErr.Code != frame.CodeInterrupted {
		t.Fatalf("error = %v, want interrupted StreamError", err)
	}
	if n := len(conv.Store().Display("c1")); n != 0 {
		t.Errorf("%d entries after interrupt, want 0", n)
	}
	if err := conv.Interrupt(context.Background(), "unknown"); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("Interrupt(unknown) error = %v", err)
	}
}

func TestGuestSessionTrial(t *testing.T) {
	srv := &chatServer{streamID: "g-1"}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()
	storage := NewMemoryStorage()
	notices := &noticeLog{}

	guest, err := NewGuestSession(NewAPI(ts.URL, ""), storage, notices, discardLogger())
	if err != nil {
		t.Fatalf("NewGuestSession() error = %v", err)
	}
	guest.limit = 2
	ctx := testContext(t)

	srv.script(frame.ContentWord{Content: "Hi"}, frame.Complete{Message: models.Message{ID: "a1", Role: models.RoleAI, Content: "Hi"}})
	if _, err := guest.Send(ctx, "", "hello", "m1"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	chatID := guest.Store().Active()
	if !IsLocalChat(chatID) {
		t.Fatalf("guest chat id %q is not local", chatID)
	}

	srv.script(frame.Complete{Message: models.Message{ID: "a2", Role: models.RoleAI, Content: "Again"}})
	if _, err := guest.Send(ctx, chatID, "more", "m1"); err != nil {
		t.Fatalf("second Send() error = %v", err)
	}
	if got := srv.guests[1].Messages; len(got) != 3 || got[0].Content != "hello" || got[2].Content != "more" {
		t.Errorf("guest history sent = %+v", got)
	}
	if guest.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", guest.Remaining())
	}

	if _, err := guest.Send(ctx, chatID, "one more", "m1"); !errors.Is(err, ErrGuestTrialExhausted) {
		t.Fatalf("third Send() error = %v, want ErrGuestTrialExhausted", err)
	}
	if len(srv.guests) != 2 {
		t.Errorf("server saw %d guest requests, want 2", len(srv.guests))
	}

	reloaded, err := NewGuestSession(NewAPI(ts.URL, ""), storage, notices, discardLogger())
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if got := len(reloaded.Store().History(chatID)); got != 4 {
		t.Errorf("reloaded history has %d messages, want 4", got)
	}
	if reloaded.Remaining() != config.GuestTrialLimit-2 {
		t.Errorf("reloaded Remaining() = %d", reloaded.Remaining())
	}
}

func TestGuestSessionFailedFirstSendLeavesNoChat(t *testing.T) {
	srv := &chatServer{}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	guest, err := NewGuestSession(NewAPI(ts.URL, ""), NewMemoryStorage(), &noticeLog{}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	srv.script(frame.Error{Message: "Guest mode is unavailable.", Code: frame.CodeUpstream})

	if _, err := guest.Send(testContext(t), "", "hello", "m1"); err == nil {
		t.Fatal("Send() succeeded")
	}
	if n := len(guest.Store().Chats()); n != 0 {
		t.Errorf("%d chats after failed first send", n)
	}
}
