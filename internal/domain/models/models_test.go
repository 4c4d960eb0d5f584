package models

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestBuildForestAndFlatten(t *testing.T) {
	chats := []Chat{
		{ID: "a"},
		{ID: "b", SourceChatID: strPtr("a")},
		{ID: "c", SourceChatID: strPtr("b")},
		{ID: "d", SourceChatID: strPtr("deleted")},
		{ID: "e", SourceChatID: strPtr("a")},
	}

	flat := Flatten(BuildForest(chats))

	want := []struct {
		id    string
		depth int
	}{
		{"a", 0}, {"b", 1}, {"c", 2}, {"e", 1}, {"d", 0},
	}
	if len(flat) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(flat))
	}
	for i, w := range want {
		if flat[i].Chat.ID != w.id || flat[i].Depth != w.depth {
			t.Errorf("row %d: expected %s@%d, got %s@%d", i, w.id, w.depth, flat[i].Chat.ID, flat[i].Depth)
		}
	}
}

func TestBuildForestBreaksCycles(t *testing.T) {
	chats := []Chat{
		{ID: "x", SourceChatID: strPtr("y")},
		{ID: "y", SourceChatID: strPtr("x")},
	}

	flat := Flatten(BuildForest(chats))
	if len(flat) != 2 {
		t.Fatalf("expected every chat exactly once, got %d rows", len(flat))
	}
}

func TestFindReply(t *testing.T) {
	tests := []struct {
		name     string
		messages []Message
		index    int
		want     int
	}{
		{
			name: "explicit reply reference",
			messages: []Message{
				{ID: "u1", Role: RoleUser},
				{ID: "u2", Role: RoleUser},
				{ID: "a1", Role: RoleAI, ReplyToID: strPtr("u1")},
			},
			index: 0,
			want:  2,
		},
		{
			name: "positional fallback",
			messages: []Message{
				{ID: "u1", Role: RoleUser},
				{ID: "a1", Role: RoleAI},
			},
			index: 0,
			want:  1,
		},
		{
			name: "adjacent reply belongs to another prompt",
			messages: []Message{
				{ID: "u1", Role: RoleUser},
				{ID: "a1", Role: RoleAI, ReplyToID: strPtr("u0")},
			},
			index: 0,
			want:  -1,
		},
		{
			name:     "ai message has no reply",
			messages: []Message{{ID: "a1", Role: RoleAI}},
			index:    0,
			want:     -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindReply(tt.messages, tt.index); got != tt.want {
				t.Errorf("FindReply() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFindPrompt(t *testing.T) {
	messages := []Message{
		{ID: "u1", Role: RoleUser},
		{ID: "a1", Role: RoleAI},
		{ID: "u2", Role: RoleUser},
		{ID: "a2", Role: RoleAI, ReplyToID: strPtr("u1")},
	}
	if got := FindPrompt(messages, 1); got != 0 {
		t.Errorf("positional prompt: got %d", got)
	}
	if got := FindPrompt(messages, 3); got != 0 {
		t.Errorf("explicit prompt: got %d", got)
	}
}

func TestMessageBeforeUsesSeqOnTies(t *testing.T) {
	now := time.Now()
	a := Message{CreatedAt: now, Seq: 1}
	b := Message{CreatedAt: now, Seq: 2}
	if !a.Before(&b) || b.Before(&a) {
		t.Error("expected seq to break timestamp ties")
	}
}

func TestDefaultChatTitle(t *testing.T) {
	if got := DefaultChatTitle(""); got != "New Chat" {
		t.Errorf("empty prompt: %q", got)
	}
	long := "ééééééééééééééééééééééééééééééééééééééééééééééééééééééé"
	got := DefaultChatTitle(long)
	if len([]rune(got)) != 53 {
		t.Errorf("expected 50 runes plus ellipsis, got %d", len([]rune(got)))
	}
}
