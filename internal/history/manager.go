// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/huandu/go-clone"
	"github.com/rs/zerolog"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/logging"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/model"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/storage"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Options configures a Manager.
type Options struct {
	// UserAvatar is the avatar given to new user groups
	UserAvatar string

	// DefaultTemperature and DefaultTopP seed the character copy of a new chat
	DefaultTemperature float64
	DefaultTopP        float64

	Logger zerolog.Logger

	// Now returns the current time (default: time.Now)
	Now func() time.Time
}

// DefaultOptions returns the default manager options.
func DefaultOptions() Options {
	return Options{
		UserAvatar:         "/user-avatar.png",
		DefaultTemperature: 0.7,
		DefaultTopP:        0.9,
		Logger:             zerolog.Nop(),
		Now:                time.Now,
	}
}

// StartChatParams describes a new conversation.
type StartChatParams struct {
	Avatar       string
	SystemPrompt string
	Name         string
}

// Direction moves the active variant of a group.
type Direction int

const (
	Prev Direction = -1
	Next Direction = 1
)

// ParseDirection accepts "prev" or "next".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "prev":
		return Prev, nil
	case "next":
		return Next, nil
	default:
		return 0, fmt.Errorf("invalid direction %q, must be prev or next", s)
	}
}

// Variants is a copy of one group's variants and its active index.
type Variants struct {
	Variants     []model.Message
	CurrentIndex int
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager holds the chat state and persists it after every mutation.
//
// Mutations are serialized by one mutex. Each one takes a deep copy of the
// state and a sequence number before releasing the lock; saves run in
// sequence order and a snapshot older than the last one written is dropped,
// so concurrent callers can never persist stale state over newer state.
type Manager struct {
	gw   storage.Gateway
	opts Options
	log  zerolog.Logger

	mu    sync.Mutex
	state model.ChatState
	seq   uint64 // last snapshot handed out, guarded by mu

	saveMu sync.Mutex
	saved  uint64 // last snapshot written, guarded by saveMu
}

// NewManager creates a manager over gw with an empty state. Call Load to
// read the persisted state.
func NewManager(gw storage.Gateway, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		gw:    gw,
		opts:  opts,
		log:   logging.Component(opts.Logger, "history"),
		state: model.NewChatState(),
	}
}

// Load replaces the in-memory state with the persisted chatState record.
// On a read or validation failure the state is empty and the error is
// returned after being logged.
func (m *Manager) Load(ctx context.Context) error {
	state, err := storage.LoadChatState(ctx, m.gw)
	if err != nil {
		m.log.Warn().Err(err).Msg("chat state unreadable, starting empty")
	}

	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	return err
}

// Replace swaps in a whole new state, as an import does, and persists it.
func (m *Manager) Replace(ctx context.Context, state model.ChatState) {
	m.mu.Lock()
	m.state = state.Clone()
	m.commit(ctx)
}

// commit snapshots the state, releases mu and saves the snapshot.
// Callers must hold mu.
func (m *Manager) commit(ctx context.Context) {
	m.seq++
	seq := m.seq
	snapshot := m.state.Clone()
	m.mu.Unlock()

	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	if seq <= m.saved {
		return
	}
	if err := storage.SaveChatState(ctx, m.gw, snapshot); err != nil {
		// the in-memory mutation stands; the next successful save catches up
		m.log.Error().Err(err).Uint64("seq", seq).Msg("failed to persist chat state")
		return
	}
	m.saved = seq
}

// touch refreshes the summary of chatID from its tail group.
// Callers must hold mu.
func (m *Manager) touch(chatID string) {
	i := m.state.ItemIndex(chatID)
	if i < 0 {
		return
	}
	h := m.state.ChatHistories[chatID]
	m.state.ChatList[i].LastMessage = h.TailContent()
	m.state.ChatList[i].UpdatedAt = m.opts.Now()
}

// =============================================================================
// CONVERSATION LIFECYCLE
// =============================================================================

// StartNewChat creates a conversation seeded with one system message,
// makes it the active one and returns its id.
func (m *Manager) StartNewChat(ctx context.Context, p StartChatParams) string {
	now := m.opts.Now()
	id := model.NewID()

	character := model.CharacterConfig{
		Name:         p.Name,
		Avatar:       p.Avatar,
		SystemPrompt: p.SystemPrompt,
		Temperature:  m.opts.DefaultTemperature,
		TopP:         m.opts.DefaultTopP,
	}
	seed := model.Message{
		ID:        model.NewID(),
		Content:   p.SystemPrompt,
		Role:      model.RoleSystem,
		Timestamp: now,
	}

	m.mu.Lock()
	m.state.ChatHistories[id] = model.NewChatHistory(id, character, seed)
	m.state.ChatList = append(m.state.ChatList, model.ChatListItem{
		ID:           id,
		Name:         p.Name,
		Avatar:       p.Avatar,
		SystemPrompt: p.SystemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	m.state.CurrentChatID = id
	m.commit(ctx)

	m.log.Debug().Str("chat", id).Str("name", p.Name).Msg("chat started")
	return id
}

// SwitchChat makes id the active conversation.
func (m *Manager) SwitchChat(ctx context.Context, id string) {
	m.mu.Lock()
	if _, ok := m.state.ChatHistories[id]; !ok {
		m.mu.Unlock()
		return
	}
	m.state.CurrentChatID = id
	m.commit(ctx)
}

// DeleteChat removes a conversation and its summary. If it was active, the
// first remaining conversation becomes active, or none.
func (m *Manager) DeleteChat(ctx context.Context, id string) {
	m.mu.Lock()
	i := m.state.ItemIndex(id)
	_, known := m.state.ChatHistories[id]
	if i < 0 && !known {
		m.mu.Unlock()
		return
	}

	if i >= 0 {
		m.state.ChatList = append(m.state.ChatList[:i], m.state.ChatList[i+1:]...)
	}
	delete(m.state.ChatHistories, id)

	if m.state.CurrentChatID == id {
		m.state.CurrentChatID = ""
		if len(m.state.ChatList) > 0 {
			m.state.CurrentChatID = m.state.ChatList[0].ID
		}
	}
	m.commit(ctx)
}

// TogglePin flips the pinned flag of a conversation.
func (m *Manager) TogglePin(ctx context.Context, id string) {
	m.mu.Lock()
	i := m.state.ItemIndex(id)
	if i < 0 {
		m.mu.Unlock()
		return
	}
	m.state.ChatList[i].Pinned = !m.state.ChatList[i].Pinned
	m.commit(ctx)
}

// =============================================================================
// MESSAGE MUTATIONS
// =============================================================================

// AddMessage appends msg to a conversation and returns the stored id.
//
// If the tail group has msg's role, msg becomes a new variant of that group
// and the active one, so the summary always shows what the tail displays.
// Otherwise it starts a new group. A system message is
// only accepted while the tail is the system group. An empty id or zero
// timestamp is filled in. Returns "" when nothing was added.
func (m *Manager) AddMessage(ctx context.Context, chatID string, msg model.Message) string {
	if !msg.Role.Valid() {
		return ""
	}
	if msg.ID == "" {
		msg.ID = model.NewID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.opts.Now()
	}

	m.mu.Lock()
	h, ok := m.state.ChatHistories[chatID]
	if !ok {
		m.mu.Unlock()
		return ""
	}

	tail := h.Tail()
	switch {
	case tail != nil && tail.Role == msg.Role:
		tail.Variants = append(tail.Variants, msg)
		tail.CurrentIndex = len(tail.Variants) - 1
	case msg.Role == model.RoleSystem:
		m.mu.Unlock()
		return ""
	default:
		avatar := h.CharacterConfig.Avatar
		if msg.Role == model.RoleUser {
			avatar = m.opts.UserAvatar
		}
		h.Groups = append(h.Groups, model.MessageGroup{
			Role:     msg.Role,
			Avatar:   avatar,
			Variants: []model.Message{msg},
		})
	}

	m.state.ChatHistories[chatID] = h
	m.touch(chatID)
	m.commit(ctx)
	return msg.ID
}

// EditMessage changes the content of a message and returns the id of the
// message now holding the content.
//
// User messages, and any message when forceInPlace is set, are edited in
// place. Other messages branch: the group's variants after the edited one
// are discarded and a new variant with the content is appended and made
// active. Returns "" when the message is unknown.
func (m *Manager) EditMessage(ctx context.Context, chatID, messageID, content string, forceInPlace bool) string {
	m.mu.Lock()
	h, ok := m.state.ChatHistories[chatID]
	if !ok {
		m.mu.Unlock()
		return ""
	}
	gi, vi, ok := h.FindMessage(messageID)
	if !ok {
		m.mu.Unlock()
		return ""
	}

	g := &h.Groups[gi]
	isTail := gi == len(h.Groups)-1
	resultID := messageID

	if g.Variants[vi].Role == model.RoleUser || forceInPlace {
		g.Variants[vi].Content = content
	} else {
		branch := model.Message{
			ID:        model.NewID(),
			Content:   content,
			Role:      g.Role,
			Timestamp: m.opts.Now(),
		}
		// the three-index slice forces a fresh backing array
		g.Variants = append(g.Variants[:vi+1:vi+1], branch)
		g.CurrentIndex = len(g.Variants) - 1
		resultID = branch.ID
	}

	m.state.ChatHistories[chatID] = h
	if isTail {
		m.touch(chatID)
	}
	m.commit(ctx)
	return resultID
}

// SwitchMessageVariant moves the active variant of the group holding
// messageID by one step. Moving past either end does nothing.
func (m *Manager) SwitchMessageVariant(ctx context.Context, chatID, messageID string, dir Direction) {
	m.mu.Lock()
	h, ok := m.state.ChatHistories[chatID]
	if !ok {
		m.mu.Unlock()
		return
	}
	gi, _, ok := h.FindMessage(messageID)
	if !ok {
		m.mu.Unlock()
		return
	}

	g := &h.Groups[gi]
	next := g.CurrentIndex + int(dir)
	if next < 0 || next >= len(g.Variants) || next == g.CurrentIndex {
		m.mu.Unlock()
		return
	}
	g.CurrentIndex = next
	m.state.ChatHistories[chatID] = h
	if gi == len(h.Groups)-1 {
		m.touch(chatID)
	}
	m.commit(ctx)
}

// DeleteMessageGroup removes the group at index. The system group at index
// 0 cannot be removed.
func (m *Manager) DeleteMessageGroup(ctx context.Context, chatID string, index int) {
	m.mu.Lock()
	h, ok := m.state.ChatHistories[chatID]
	if !ok || index <= 0 || index >= len(h.Groups) {
		m.mu.Unlock()
		return
	}

	h.Groups = append(h.Groups[:index], h.Groups[index+1:]...)
	m.state.ChatHistories[chatID] = h
	m.touch(chatID)
	m.commit(ctx)
}

// =============================================================================
// READS
// =============================================================================

// GetMessageVariants returns the variants of the group holding messageID.
func (m *Manager) GetMessageVariants(chatID, messageID string) (Variants, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.state.ChatHistories[chatID]
	if !ok {
		return Variants{}, false
	}
	gi, _, ok := h.FindMessage(messageID)
	if !ok {
		return Variants{}, false
	}
	g := h.Groups[gi]
	return Variants{
		Variants:     append([]model.Message(nil), g.Variants...),
		CurrentIndex: g.CurrentIndex,
	}, true
}

// CurrentChatID returns the active conversation id, or "".
func (m *Manager) CurrentChatID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CurrentChatID
}

// CurrentChat returns a copy of the active conversation.
func (m *Manager) CurrentChat() (model.ChatHistory, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chat(m.state.CurrentChatID)
}

// Chat returns a copy of the conversation with id.
func (m *Manager) Chat(id string) (model.ChatHistory, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chat(id)
}

func (m *Manager) chat(id string) (model.ChatHistory, bool) {
	h, ok := m.state.ChatHistories[id]
	if !ok {
		return model.ChatHistory{}, false
	}
	return clone.Clone(h).(model.ChatHistory), true
}

// ChatList returns the summaries in creation order.
func (m *Manager) ChatList() []model.ChatListItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ChatListItem(nil), m.state.ChatList...)
}

// SortedChatList returns the summaries pinned first, then most recently
// updated first.
func (m *Manager) SortedChatList() []model.ChatListItem {
	items := m.ChatList()
	model.SortChatList(items)
	return items
}

// Flatten returns the active-variant projection of a conversation.
func (m *Manager) Flatten(chatID string) ([]model.FlatMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.state.ChatHistories[chatID]
	if !ok {
		return nil, false
	}
	return h.Flatten(), true
}

// Snapshot returns a deep copy of the whole state.
func (m *Manager) Snapshot() model.ChatState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}
