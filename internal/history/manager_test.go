// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/model"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/storage"
)

// =============================================================================
// HELPERS
// =============================================================================

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestManager(t *testing.T) (*Manager, *storage.MemoryStore) {
	t.Helper()
	gw := storage.NewMemoryStore()
	opts := DefaultOptions()
	opts.Now = (&clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}).Now
	return NewManager(gw, opts), gw
}

func startChat(t *testing.T, m *Manager) string {
	t.Helper()
	return m.StartNewChat(context.Background(), StartChatParams{
		Avatar:       "/mirau.png",
		SystemPrompt: "You are Mirau.",
		Name:         "Mirau",
	})
}

func add(t *testing.T, m *Manager, chatID string, role model.Role, content string) string {
	t.Helper()
	id := m.AddMessage(context.Background(), chatID, model.Message{Role: role, Content: content})
	require.NotEmpty(t, id)
	return id
}

func persisted(t *testing.T, gw storage.Gateway) model.ChatState {
	t.Helper()
	state, err := storage.LoadChatState(context.Background(), gw)
	require.NoError(t, err)
	return state
}

func summary(t *testing.T, m *Manager, chatID string) model.ChatListItem {
	t.Helper()
	for _, item := range m.ChatList() {
		if item.ID == chatID {
			return item
		}
	}
	t.Fatalf("no summary for %s", chatID)
	return model.ChatListItem{}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestStartNewChat(t *testing.T) {
	m, gw := newTestManager(t)
	id := startChat(t, m)

	require.Equal(t, id, m.CurrentChatID())

	chat, ok := m.CurrentChat()
	require.True(t, ok)
	require.Len(t, chat.Groups, 1)
	require.Equal(t, model.RoleSystem, chat.Groups[0].Role)
	require.Equal(t, "/mirau.png", chat.Groups[0].Avatar)
	require.Equal(t, "You are Mirau.", chat.Groups[0].Variants[0].Content)
	require.Equal(t, model.CharacterConfig{
		Name: "Mirau", Avatar: "/mirau.png", SystemPrompt: "You are Mirau.", Temperature: 0.7, TopP: 0.9,
	}, chat.CharacterConfig)

	item := summary(t, m, id)
	require.Equal(t, "Mirau", item.Name)
	require.Empty(t, item.LastMessage)
	require.False(t, item.Pinned)
	require.Equal(t, item.CreatedAt, item.UpdatedAt)

	saved := persisted(t, gw)
	require.Equal(t, id, saved.CurrentChatID)
	require.Contains(t, saved.ChatHistories, id)
}

func TestSwitchChat(t *testing.T) {
	m, gw := newTestManager(t)
	first := startChat(t, m)
	second := startChat(t, m)
	require.Equal(t, second, m.CurrentChatID())

	m.SwitchChat(context.Background(), first)
	require.Equal(t, first, m.CurrentChatID())
	require.Equal(t, first, persisted(t, gw).CurrentChatID)

	m.SwitchChat(context.Background(), "missing")
	require.Equal(t, first, m.CurrentChatID())
}

func TestDeleteChat(t *testing.T) {
	ctx := context.Background()
	m, gw := newTestManager(t)
	a := startChat(t, m)
	b := startChat(t, m)
	c := startChat(t, m)

	// deleting a non-active chat keeps the pointer
	m.DeleteChat(ctx, a)
	require.Equal(t, c, m.CurrentChatID())
	_, ok := m.Chat(a)
	require.False(t, ok)

	// deleting the active chat falls back to the first remaining
	m.DeleteChat(ctx, c)
	require.Equal(t, b, m.CurrentChatID())

	m.DeleteChat(ctx, b)
	require.Empty(t, m.CurrentChatID())
	require.Empty(t, m.ChatList())

	saved := persisted(t, gw)
	require.Empty(t, saved.ChatHistories)
	require.Empty(t, saved.ChatList)

	m.DeleteChat(ctx, "missing")
}

func TestTogglePinAndSortedChatList(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	a := startChat(t, m)
	b := startChat(t, m)
	c := startChat(t, m)

	// a is updated last, c is pinned
	add(t, m, a, model.RoleUser, "bump")
	m.TogglePin(ctx, c)

	var order []string
	for _, item := range m.SortedChatList() {
		order = append(order, item.ID)
	}
	require.Equal(t, []string{c, a, b}, order)

	m.TogglePin(ctx, c)
	require.False(t, summary(t, m, c).Pinned)

	// creation order is untouched by sorting
	require.Equal(t, a, m.ChatList()[0].ID)

	m.TogglePin(ctx, "missing")
}

// =============================================================================
// ADD MESSAGE
// =============================================================================

func TestAddMessageThenGetVariants(t *testing.T) {
	m, _ := newTestManager(t)
	chatID := startChat(t, m)

	msg := model.NewMessage(model.RoleUser, "hello")
	id := m.AddMessage(context.Background(), chatID, msg)
	require.Equal(t, msg.ID, id)

	v, ok := m.GetMessageVariants(chatID, id)
	require.True(t, ok)
	require.Equal(t, 0, v.CurrentIndex)
	require.Len(t, v.Variants, 1)
	require.Equal(t, msg.ID, v.Variants[0].ID)
	require.Equal(t, msg.Content, v.Variants[0].Content)
	require.Equal(t, msg.Role, v.Variants[0].Role)
	require.True(t, msg.Timestamp.Equal(v.Variants[0].Timestamp))
}

func TestAddMessageGrouping(t *testing.T) {
	m, _ := newTestManager(t)
	chatID := startChat(t, m)

	add(t, m, chatID, model.RoleUser, "hi")
	add(t, m, chatID, model.RoleAssistant, "hello")
	add(t, m, chatID, model.RoleAssistant, "hello again")

	chat, _ := m.Chat(chatID)
	require.Len(t, chat.Groups, 3)
	require.Equal(t, "/user-avatar.png", chat.Groups[1].Avatar)
	require.Equal(t, "/mirau.png", chat.Groups[2].Avatar)

	tail := chat.Groups[2]
	require.Len(t, tail.Variants, 2)
	require.Equal(t, 1, tail.CurrentIndex)
	require.Equal(t, "hello again", summary(t, m, chatID).LastMessage)
}

func TestAddMessageRefreshesSummary(t *testing.T) {
	m, _ := newTestManager(t)
	chatID := startChat(t, m)
	before := summary(t, m, chatID)

	add(t, m, chatID, model.RoleUser, "what's new")

	after := summary(t, m, chatID)
	require.Equal(t, "what's new", after.LastMessage)
	require.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestAddMessageNoOps(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	chatID := startChat(t, m)
	add(t, m, chatID, model.RoleUser, "hi")

	require.Empty(t, m.AddMessage(ctx, "missing", model.NewMessage(model.RoleUser, "x")))
	require.Empty(t, m.AddMessage(ctx, chatID, model.Message{Role: "robot", Content: "x"}))
	// system only extends the system group
	require.Empty(t, m.AddMessage(ctx, chatID, model.NewMessage(model.RoleSystem, "x")))

	chat, _ := m.Chat(chatID)
	require.Len(t, chat.Groups, 2)
}

// =============================================================================
// EDIT MESSAGE
// =============================================================================

func TestEditAssistantBranches(t *testing.T) {
	ctx := context.Background()

	for n := 1; n <= 4; n++ {
		for k := 0; k < n; k++ {
			t.Run(fmt.Sprintf("n=%d,k=%d", n, k), func(t *testing.T) {
				m, _ := newTestManager(t)
				chatID := startChat(t, m)
				add(t, m, chatID, model.RoleUser, "q")

				ids := make([]string, n)
				for i := range n {
					ids[i] = add(t, m, chatID, model.RoleAssistant, fmt.Sprintf("v%d", i))
				}

				newID := m.EditMessage(ctx, chatID, ids[k], "edited", false)
				require.NotEmpty(t, newID)
				require.NotEqual(t, ids[k], newID)

				v, ok := m.GetMessageVariants(chatID, newID)
				require.True(t, ok)
				require.Len(t, v.Variants, k+2)
				require.Equal(t, k+1, v.CurrentIndex)
				require.Equal(t, "edited", v.Variants[k+1].Content)
				require.Equal(t, model.RoleAssistant, v.Variants[k+1].Role)
				for i := 0; i <= k; i++ {
					require.Equal(t, ids[i], v.Variants[i].ID)
				}
				require.Equal(t, "edited", summary(t, m, chatID).LastMessage)
			})
		}
	}
}

func TestEditUserInPlace(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	chatID := startChat(t, m)
	first := add(t, m, chatID, model.RoleUser, "draft")
	add(t, m, chatID, model.RoleUser, "draft 2")

	got := m.EditMessage(ctx, chatID, first, "final", false)
	require.Equal(t, first, got)

	v, _ := m.GetMessageVariants(chatID, first)
	require.Len(t, v.Variants, 2)
	require.Equal(t, "final", v.Variants[0].Content)
	// the active variant is the second one, so the summary is unchanged
	require.Equal(t, "draft 2", summary(t, m, chatID).LastMessage)
}

func TestEditUserTailRefreshesSummary(t *testing.T) {
	m, _ := newTestManager(t)
	chatID := startChat(t, m)
	id := add(t, m, chatID, model.RoleUser, "typo")

	m.EditMessage(context.Background(), chatID, id, "fixed", false)
	require.Equal(t, "fixed", summary(t, m, chatID).LastMessage)
}

func TestEditForceInPlace(t *testing.T) {
	m, _ := newTestManager(t)
	chatID := startChat(t, m)
	add(t, m, chatID, model.RoleUser, "q")
	id := add(t, m, chatID, model.RoleAssistant, "partial")

	got := m.EditMessage(context.Background(), chatID, id, "partial answer", true)
	require.Equal(t, id, got)

	v, _ := m.GetMessageVariants(chatID, id)
	require.Len(t, v.Variants, 1)
	require.Equal(t, "partial answer", v.Variants[0].Content)
	require.Equal(t, "partial answer", summary(t, m, chatID).LastMessage)
}

func TestEditNonTailDoesNotTouchSummary(t *testing.T) {
	m, _ := newTestManager(t)
	chatID := startChat(t, m)
	add(t, m, chatID, model.RoleUser, "q1")
	a1 := add(t, m, chatID, model.RoleAssistant, "a1")
	add(t, m, chatID, model.RoleUser, "q2")
	before := summary(t, m, chatID)

	m.EditMessage(context.Background(), chatID, a1, "a1 redo", false)

	after := summary(t, m, chatID)
	require.Equal(t, "q2", after.LastMessage)
	require.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestEditUnknownIsNoOp(t *testing.T) {
	ctx := context.Background()
	m, gw := newTestManager(t)
	chatID := startChat(t, m)
	before, err := gw.Get(ctx, storage.KeyChatState)
	require.NoError(t, err)

	require.Empty(t, m.EditMessage(ctx, chatID, "missing", "x", false))
	require.Empty(t, m.EditMessage(ctx, "missing", "missing", "x", false))

	after, err := gw.Get(ctx, storage.KeyChatState)
	require.NoError(t, err)
	require.True(t, bytes.Equal(before, after))
}

// =============================================================================
// VARIANT NAVIGATION
// =============================================================================

func TestSwitchMessageVariant(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	chatID := startChat(t, m)
	add(t, m, chatID, model.RoleUser, "q")
	first := add(t, m, chatID, model.RoleAssistant, "one")
	add(t, m, chatID, model.RoleAssistant, "two")
	add(t, m, chatID, model.RoleAssistant, "three")

	current := func() int {
		v, ok := m.GetMessageVariants(chatID, first)
		require.True(t, ok)
		return v.CurrentIndex
	}

	require.Equal(t, 2, current())

	// next at the last index is a no-op
	m.SwitchMessageVariant(ctx, chatID, first, Next)
	require.Equal(t, 2, current())

	m.SwitchMessageVariant(ctx, chatID, first, Prev)
	require.Equal(t, 1, current())
	require.Equal(t, "two", summary(t, m, chatID).LastMessage)

	m.SwitchMessageVariant(ctx, chatID, first, Prev)
	require.Equal(t, 0, current())

	// prev at index 0 is a no-op
	m.SwitchMessageVariant(ctx, chatID, first, Prev)
	require.Equal(t, 0, current())
	require.Equal(t, "one", summary(t, m, chatID).LastMessage)

	m.SwitchMessageVariant(ctx, chatID, "missing", Next)
	m.SwitchMessageVariant(ctx, "missing", first, Next)
	require.Equal(t, 0, current())
}

func TestSwitchThenBranchDiscardsFuture(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	chatID := startChat(t, m)
	add(t, m, chatID, model.RoleUser, "q")
	a := add(t, m, chatID, model.RoleAssistant, "a")
	add(t, m, chatID, model.RoleAssistant, "b")
	add(t, m, chatID, model.RoleAssistant, "c")

	m.SwitchMessageVariant(ctx, chatID, a, Prev)
	m.SwitchMessageVariant(ctx, chatID, a, Prev)

	v, _ := m.GetMessageVariants(chatID, a)
	require.Equal(t, 0, v.CurrentIndex)
	m.EditMessage(ctx, chatID, v.Variants[0].ID, "a'", false)

	v, _ = m.GetMessageVariants(chatID, a)
	require.Len(t, v.Variants, 2)
	require.Equal(t, []string{"a", "a'"}, []string{v.Variants[0].Content, v.Variants[1].Content})
	require.Equal(t, 1, v.CurrentIndex)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("prev")
	require.NoError(t, err)
	require.Equal(t, Prev, d)

	d, err = ParseDirection("next")
	require.NoError(t, err)
	require.Equal(t, Next, d)

	_, err = ParseDirection("sideways")
	require.Error(t, err)
}

// =============================================================================
// DELETE GROUP
// =============================================================================

func TestDeleteMessageGroup(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	chatID := startChat(t, m)
	add(t, m, chatID, model.RoleUser, "q")
	add(t, m, chatID, model.RoleAssistant, "a")

	m.DeleteMessageGroup(ctx, chatID, 2)
	chat, _ := m.Chat(chatID)
	require.Len(t, chat.Groups, 2)
	require.Equal(t, "q", summary(t, m, chatID).LastMessage)

	m.DeleteMessageGroup(ctx, chatID, 1)
	chat, _ = m.Chat(chatID)
	require.Len(t, chat.Groups, 1)
	// only the system group is left, so the summary shows its text
	require.Equal(t, "You are Mirau.", summary(t, m, chatID).LastMessage)
}

func TestDeleteMessageGroupRejects(t *testing.T) {
	ctx := context.Background()

	for _, groups := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("extra groups=%d", groups), func(t *testing.T) {
			m, _ := newTestManager(t)
			chatID := startChat(t, m)
			roles := []model.Role{model.RoleUser, model.RoleAssistant}
			for i := range groups {
				add(t, m, chatID, roles[i%2], "x")
			}

			for _, idx := range []int{0, -1, groups + 1, 100} {
				m.DeleteMessageGroup(ctx, chatID, idx)
			}
			m.DeleteMessageGroup(ctx, "missing", 1)

			chat, _ := m.Chat(chatID)
			require.Len(t, chat.Groups, groups+1)
			require.Equal(t, model.RoleSystem, chat.Groups[0].Role)
		})
	}
}

// =============================================================================
// READS AND PERSISTENCE
// =============================================================================

func TestFlatten(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	chatID := startChat(t, m)
	add(t, m, chatID, model.RoleUser, "q")
	a := add(t, m, chatID, model.RoleAssistant, "a1")
	add(t, m, chatID, model.RoleAssistant, "a2")
	m.SwitchMessageVariant(ctx, chatID, a, Prev)

	flat, ok := m.Flatten(chatID)
	require.True(t, ok)
	require.Equal(t, []model.FlatMessage{
		{Role: model.RoleSystem, Content: "You are Mirau."},
		{Role: model.RoleUser, Content: "q"},
		{Role: model.RoleAssistant, Content: "a1"},
	}, flat)

	_, ok = m.Flatten("missing")
	require.False(t, ok)
}

func TestReadsReturnCopies(t *testing.T) {
	m, _ := newTestManager(t)
	chatID := startChat(t, m)
	add(t, m, chatID, model.RoleUser, "q")

	chat, _ := m.Chat(chatID)
	chat.Groups[1].Variants[0].Content = "mutated"
	snap := m.Snapshot()
	snap.ChatList[0].Name = "mutated"

	fresh, _ := m.Chat(chatID)
	require.Equal(t, "q", fresh.Groups[1].Variants[0].Content)
	require.Equal(t, "Mirau", m.ChatList()[0].Name)
}

func TestLoadRestoresState(t *testing.T) {
	ctx := context.Background()
	m, gw := newTestManager(t)
	chatID := startChat(t, m)
	add(t, m, chatID, model.RoleUser, "q")

	reloaded := NewManager(gw, DefaultOptions())
	require.NoError(t, reloaded.Load(ctx))
	require.Equal(t, chatID, reloaded.CurrentChatID())

	flat, ok := reloaded.Flatten(chatID)
	require.True(t, ok)
	require.Len(t, flat, 2)
}

func TestLoadKeepsUnnamedChat(t *testing.T) {
	ctx := context.Background()
	m, gw := newTestManager(t)
	named := startChat(t, m)
	add(t, m, named, model.RoleUser, "q")
	unnamed := m.StartNewChat(ctx, StartChatParams{SystemPrompt: "x"})

	reloaded := NewManager(gw, DefaultOptions())
	require.NoError(t, reloaded.Load(ctx))
	require.Len(t, reloaded.ChatList(), 2)
	require.Equal(t, unnamed, reloaded.CurrentChatID())

	chat, ok := reloaded.Chat(unnamed)
	require.True(t, ok)
	require.Empty(t, chat.CharacterConfig.Name)

	flat, ok := reloaded.Flatten(named)
	require.True(t, ok)
	require.Len(t, flat, 2)
}

func TestLoadFallsBackOnCorruptRecord(t *testing.T) {
	ctx := context.Background()
	gw := storage.NewMemoryStore()
	require.NoError(t, gw.Set(ctx, storage.KeyChatState, []byte(`{"chatList": 42}`)))

	var logs bytes.Buffer
	opts := DefaultOptions()
	opts.Logger = zerolog.New(&logs)
	m := NewManager(gw, opts)

	require.Error(t, m.Load(ctx))
	require.Empty(t, m.ChatList())
	require.Contains(t, logs.String(), "chat state unreadable")
	require.Contains(t, logs.String(), `"component":"history"`)

	// still usable
	id := startChat(t, m)
	require.Equal(t, id, m.CurrentChatID())
}

type flakyGateway struct {
	storage.Gateway
	mu   sync.Mutex
	fail bool
}

func (g *flakyGateway) Set(ctx context.Context, key string, value []byte) error {
	g.mu.Lock()
	fail := g.fail
	g.mu.Unlock()
	if fail {
		return errors.New("quota exceeded")
	}
	return g.Gateway.Set(ctx, key, value)
}

func TestPersistenceFailureKeepsMutation(t *testing.T) {
	gw := &flakyGateway{Gateway: storage.NewMemoryStore(), fail: true}

	var logs bytes.Buffer
	opts := DefaultOptions()
	opts.Logger = zerolog.New(&logs)
	m := NewManager(gw, opts)

	chatID := startChat(t, m)
	add(t, m, chatID, model.RoleUser, "kept")

	flat, _ := m.Flatten(chatID)
	require.Len(t, flat, 2)
	require.Contains(t, logs.String(), "failed to persist chat state")

	// the next successful save carries everything
	gw.mu.Lock()
	gw.fail = false
	gw.mu.Unlock()
	m.TogglePin(context.Background(), chatID)

	saved := persisted(t, gw)
	require.Len(t, saved.ChatHistories[chatID].Groups, 2)
	require.True(t, saved.ChatList[0].Pinned)
}

func TestConcurrentMutationsPersistLatest(t *testing.T) {
	m, gw := newTestManager(t)
	chatID := startChat(t, m)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.AddMessage(context.Background(), chatID, model.NewMessage(model.RoleUser, fmt.Sprintf("m%d", i)))
		}(i)
	}
	wg.Wait()

	mem := m.Snapshot()
	saved := persisted(t, gw)
	require.Len(t, mem.ChatHistories[chatID].Groups[1].Variants, 50)
	require.Len(t, saved.ChatHistories[chatID].Groups[1].Variants, 50)
	require.Equal(t, mem.ChatList[0].LastMessage, saved.ChatList[0].LastMessage)
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	m, gw := newTestManager(t)
	startChat(t, m)

	other, _ := newTestManager(t)
	keep := startChat(t, other)

	m.Replace(ctx, other.Snapshot())
	require.Equal(t, keep, m.CurrentChatID())
	require.Len(t, m.ChatList(), 1)
	require.Equal(t, keep, persisted(t, gw).CurrentChatID)
}
