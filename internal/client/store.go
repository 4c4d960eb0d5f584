package client

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/frame"
)

// localChatPrefix marks chat ids minted on the device before the server
// confirms a new chat.
const localChatPrefix = "local-"

// Phase is the state of one interaction.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseOptimistic
	PhaseStreaming
	PhaseConfirmed
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhaseOptimistic:
		return "optimistic-pending"
	case PhaseStreaming:
		return "streaming"
	case PhaseConfirmed:
		return "confirmed"
	case PhaseRolledBack:
		return "rolled-back"
	default:
		return "idle"
	}
}

// Store errors.
var (
	ErrUnknownMessage = errors.New("message not in chat")
	ErrMessagePending = errors.New("message is not confirmed yet")
)

// Entry is one row of a chat's message list: a confirmed message, an
// optimistic user message, or a streaming placeholder.
type Entry struct {
	models.Message
	IsStreaming bool `json:"isStreaming,omitempty"`
	Pending     bool `json:"pending,omitempty"`
}

// Turn names the entries created for one interaction.
type Turn struct {
	ChatID        string
	UserEntryID   string
	PlaceholderID string
}

type interaction struct {
	chatID      string
	userEntryID string
	userIsNew   bool
	createdChat bool
	phase       Phase
	snapshot    *Accumulator
}

// Store holds the chat list and per-chat message lists, reconciling
// optimistic entries with server confirmations. All state is keyed by
// placeholder id; updates for unknown or finished placeholders are no-ops.
type Store struct {
	mu           sync.Mutex
	chats        []models.Chat
	messages     map[string][]Entry
	interactions map[string]*interaction
	finished     map[string]Phase
	keyNotices   map[string]bool
	active       string
	newID        func() string
	now          func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		messages:     make(map[string][]Entry),
		interactions: make(map[string]*interaction),
		finished:     make(map[string]Phase),
		keyNotices:   make(map[string]bool),
		newID:        uuid.NewString,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// IsLocalChat reports whether chatID was minted on the device.
func IsLocalChat(chatID string) bool {
	return strings.HasPrefix(chatID, localChatPrefix)
}

// BeginSend appends an optimistic user entry and a placeholder. An empty
// chatID starts a new chat under a local id.
func (s *Store) BeginSend(chatID, content, modelID string) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := false
	if chatID == "" {
		chatID = localChatPrefix + s.newID()
		created = true
	}

	user := Entry{
		Message: models.Message{
			ID:        s.newID(),
			ChatID:    chatID,
			Role:      models.RoleUser,
			Content:   content,
			ModelID:   modelID,
			CreatedAt: s.now(),
		},
		Pending: true,
	}
	placeholder := s.placeholderLocked(chatID, user.ID, modelID)
	s.messages[chatID] = append(s.messages[chatID], user, placeholder)
	s.interactions[placeholder.ID] = &interaction{
		chatID:      chatID,
		userEntryID: user.ID,
		userIsNew:   true,
		createdChat: created,
		phase:       PhaseOptimistic,
	}
	s.active = chatID

	return Turn{ChatID: chatID, UserEntryID: user.ID, PlaceholderID: placeholder.ID}
}

// BeginEdit rewrites a confirmed user message, drops everything after it
// and appends a placeholder.
func (s *Store) BeginEdit(chatID, messageID, newContent, modelID string) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.anchorLocked(chatID, messageID)
	if err != nil {
		return Turn{}, err
	}
	if s.messages[chatID][idx].Role != models.RoleUser {
		return Turn{}, fmt.Errorf("only user messages can be edited")
	}

	s.truncateLocked(chatID, idx+1)
	anchor := &s.messages[chatID][idx]
	anchor.Content = newContent
	anchor.EditCount++
	return s.appendPlaceholderLocked(chatID, anchor.ID, modelID), nil
}

// BeginRegenerate drops the reply to a user message and appends a
// placeholder. messageID may name the user message or its AI reply.
func (s *Store) BeginRegenerate(chatID, messageID, modelID string) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.anchorLocked(chatID, messageID)
	if err != nil {
		return Turn{}, err
	}
	if s.messages[chatID][idx].Role == models.RoleAI {
		if idx = models.FindPrompt(messagesOf(s.messages[chatID]), idx); idx < 0 {
			return Turn{}, fmt.Errorf("reply %s has no prompt", messageID)
		}
		if s.messages[chatID][idx].Pending {
			return Turn{}, ErrMessagePending
		}
	}

	s.truncateLocked(chatID, idx+1)
	return s.appendPlaceholderLocked(chatID, s.messages[chatID][idx].ID, modelID), nil
}

// ApplyChatInfo registers a server-created chat and swaps the optimistic
// user entry for the confirmed one.
func (s *Store) ApplyChatInfo(placeholderID string, info frame.ChatInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.interactions[placeholderID]
	if !ok {
		return false
	}

	if info.Chat != nil {
		s.rekeyChatLocked(it.chatID, info.Chat.ID)
		s.upsertChatLocked(*info.Chat)
		it.createdChat = true
	}

	if info.UserMessage != nil {
		entries := s.messages[it.chatID]
		if idx := indexOfEntry(entries, it.userEntryID); idx >= 0 {
			entries[idx] = Entry{Message: *info.UserMessage}
			it.userEntryID = info.UserMessage.ID
			if p := indexOfEntry(entries, placeholderID); p >= 0 {
				id := info.UserMessage.ID
				entries[p].ReplyToID = &id
			}
		}
	}
	return true
}

// ApplySnapshot records the text received so far for a placeholder.
func (s *Store) ApplySnapshot(placeholderID string, acc Accumulator) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.interactions[placeholderID]
	if !ok {
		return false
	}
	snap := acc
	it.snapshot = &snap
	it.phase = PhaseStreaming
	return true
}

// Confirm replaces the placeholder in place with the confirmed message.
func (s *Store) Confirm(placeholderID string, msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.interactions[placeholderID]
	if !ok {
		return false
	}
	s.finishLocked(placeholderID, PhaseConfirmed)

	entries := s.messages[it.chatID]
	idx := indexOfEntry(entries, placeholderID)
	if idx < 0 {
		return false
	}
	msg.ChatID = it.chatID
	entries[idx] = Entry{Message: msg}
	if u := indexOfEntry(entries, it.userEntryID); u >= 0 {
		entries[u].Pending = false
	}

	if c := s.chatIndexLocked(it.chatID); c >= 0 {
		s.chats[c].ModelID = msg.ModelID
		s.chats[c].UpdatedAt = msg.CreatedAt
	}
	return true
}

// Rollback removes the placeholder and, when this interaction created
// them, the user entry and the chat.
func (s *Store) Rollback(placeholderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.interactions[placeholderID]
	if !ok {
		return false
	}
	s.finishLocked(placeholderID, PhaseRolledBack)

	remove := map[string]bool{placeholderID: true}
	if it.userIsNew {
		remove[it.userEntryID] = true
	}
	s.removeEntriesLocked(it.chatID, remove)

	if it.createdChat && len(s.messages[it.chatID]) == 0 {
		s.removeChatLocked(it.chatID)
	}
	return true
}

// Phase reports the state of an interaction.
func (s *Store) Phase(placeholderID string) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.interactions[placeholderID]; ok {
		return it.phase
	}
	return s.finished[placeholderID]
}

// ChatOf returns the chat a live interaction belongs to.
func (s *Store) ChatOf(placeholderID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.interactions[placeholderID]; ok {
		return it.chatID
	}
	return ""
}

// Display returns the chat's entries with streaming text taken from the
// latest snapshot.
func (s *Store) Display(chatID string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.messages[chatID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	for i := range out {
		if !out[i].IsStreaming {
			continue
		}
		it, ok := s.interactions[out[i].ID]
		if !ok || it.snapshot == nil {
			continue
		}
		out[i].Content = it.snapshot.Content
		if it.snapshot.Reasoning != "" {
			r := it.snapshot.Reasoning
			out[i].Reasoning = &r
		}
	}
	return out
}

// History returns the chat's messages without streaming placeholders.
func (s *Store) History(chatID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Message
	for _, e := range s.messages[chatID] {
		if !e.IsStreaming {
			out = append(out, e.Message)
		}
	}
	return out
}

// SetMessages replaces a chat's confirmed messages. In-flight entries are
// kept at the end.
func (s *Store) SetMessages(chatID string, messages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(messages))
	seen := make(map[string]bool, len(messages))
	for _, m := range messages {
		entries = append(entries, Entry{Message: m})
		seen[m.ID] = true
	}
	for _, e := range s.messages[chatID] {
		if (e.IsStreaming || e.Pending) && !seen[e.ID] {
			entries = append(entries, e)
		}
	}
	s.messages[chatID] = entries
}

// SetChats replaces the chat list.
func (s *Store) SetChats(chats []models.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = append([]models.Chat(nil), chats...)
}

// UpsertChat replaces a chat in place or puts a new one first.
func (s *Store) UpsertChat(chat models.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertChatLocked(chat)
}

// RemoveChat drops a chat and its messages. Its branches become top level.
func (s *Store) RemoveChat(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeChatLocked(chatID)
}

// RemoveMessages drops entries by id.
func (s *Store) RemoveMessages(chatID string, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	s.removeEntriesLocked(chatID, remove)
}

// Chats returns the chat list.
func (s *Store) Chats() []models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Chat(nil), s.chats...)
}

// Chat returns one chat from the list.
func (s *Store) Chat(chatID string) (models.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.chatIndexLocked(chatID); i >= 0 {
		return s.chats[i], true
	}
	return models.Chat{}, false
}

// Forest returns the chat list as a depth-annotated tree walk.
func (s *Store) Forest() []models.FlatChat {
	return models.Flatten(models.BuildForest(s.Chats()))
}

// Active returns the chat currently shown.
func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActive selects the chat currently shown.
func (s *Store) SetActive(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = chatID
}

// NoteKeyUsage reports whether a server key notice should be shown for the
// chat. It returns true once per chat.
func (s *Store) NoteKeyUsage(chatID, source string) bool {
	if source != frame.KeySourceServerDefault {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keyNotices[chatID] {
		return false
	}
	s.keyNotices[chatID] = true
	return true
}

func (s *Store) placeholderLocked(chatID, replyTo, modelID string) Entry {
	return Entry{
		Message: models.Message{
			ID:        s.newID(),
			ChatID:    chatID,
			Role:      models.RoleAI,
			ModelID:   modelID,
			ReplyToID: &replyTo,
			CreatedAt: s.now(),
		},
		IsStreaming: true,
	}
}

func (s *Store) appendPlaceholderLocked(chatID, anchorID, modelID string) Turn {
	placeholder := s.placeholderLocked(chatID, anchorID, modelID)
	s.messages[chatID] = append(s.messages[chatID], placeholder)
	s.interactions[placeholder.ID] = &interaction{
		chatID:      chatID,
		userEntryID: anchorID,
		phase:       PhaseOptimistic,
	}
	return Turn{ChatID: chatID, UserEntryID: anchorID, PlaceholderID: placeholder.ID}
}

// anchorLocked finds a confirmed message to edit or regenerate from.
func (s *Store) anchorLocked(chatID, messageID string) (int, error) {
	entries := s.messages[chatID]
	idx := indexOfEntry(entries, messageID)
	if idx < 0 {
		return -1, fmt.Errorf("%s: %w", messageID, ErrUnknownMessage)
	}
	if entries[idx].Pending || entries[idx].IsStreaming {
		return -1, ErrMessagePending
	}
	return idx, nil
}

// truncateLocked drops entries from index from on. Live placeholders in the
// dropped range are superseded.
func (s *Store) truncateLocked(chatID string, from int) {
	entries := s.messages[chatID]
	if from >= len(entries) {
		return
	}
	for _, e := range entries[from:] {
		if e.IsStreaming {
			s.finishLocked(e.ID, PhaseRolledBack)
		}
	}
	s.messages[chatID] = entries[:from:from]
}

func (s *Store) removeEntriesLocked(chatID string, remove map[string]bool) {
	entries := s.messages[chatID]
	kept := entries[:0]
	for _, e := range entries {
		if remove[e.ID] {
			if e.IsStreaming {
				s.finishLocked(e.ID, PhaseRolledBack)
			}
			continue
		}
		kept = append(kept, e)
	}
	s.messages[chatID] = kept
}

func (s *Store) finishLocked(placeholderID string, phase Phase) {
	if _, ok := s.interactions[placeholderID]; !ok {
		return
	}
	delete(s.interactions, placeholderID)
	s.finished[placeholderID] = phase
}

// rekeyChatLocked moves a local chat's entries under the server id.
func (s *Store) rekeyChatLocked(from, to string) {
	if from == to {
		return
	}
	entries := s.messages[from]
	delete(s.messages, from)
	for i := range entries {
		entries[i].ChatID = to
	}
	s.messages[to] = append(s.messages[to], entries...)

	for _, it := range s.interactions {
		if it.chatID == from {
			it.chatID = to
		}
	}
	if s.keyNotices[from] {
		s.keyNotices[to] = true
		delete(s.keyNotices, from)
	}
	if s.active == from {
		s.active = to
	}
}

func (s *Store) upsertChatLocked(chat models.Chat) {
	if i := s.chatIndexLocked(chat.ID); i >= 0 {
		s.chats[i] = chat
		return
	}
	s.chats = append([]models.Chat{chat}, s.chats...)
}

func (s *Store) removeChatLocked(chatID string) {
	if i := s.chatIndexLocked(chatID); i >= 0 {
		s.chats = append(s.chats[:i], s.chats[i+1:]...)
	}
	for i := range s.chats {
		if s.chats[i].SourceChatID != nil && *s.chats[i].SourceChatID == chatID {
			s.chats[i].SourceChatID = nil
			s.chats[i].BranchedFromMessageID = nil
		}
	}
	for _, e := range s.messages[chatID] {
		if e.IsStreaming {
			s.finishLocked(e.ID, PhaseRolledBack)
		}
	}
	delete(s.messages, chatID)
	delete(s.keyNotices, chatID)
	if s.active == chatID {
		s.active = ""
	}
}

func (s *Store) chatIndexLocked(chatID string) int {
	for i := range s.chats {
		if s.chats[i].ID == chatID {
			return i
		}
	}
	return -1
}

func indexOfEntry(entries []Entry, id string) int {
	for i := range entries {
		if entries[i].ID == id {
			return i
		}
	}
	return -1
}

func messagesOf(entries []Entry) []models.Message {
	out := make([]models.Message, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}
