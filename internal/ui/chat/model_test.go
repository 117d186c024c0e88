// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/wiserchat/internal/forwarder"
	"github.com/jeranaias/wiserchat/internal/model"
	"github.com/jeranaias/wiserchat/internal/storage"
	"github.com/jeranaias/wiserchat/internal/stream"
	"github.com/jeranaias/wiserchat/internal/ui/styles"
	"github.com/jeranaias/wiserchat/internal/upstream"
	"github.com/jeranaias/wiserchat/internal/workspace"
)

// =============================================================================
// HELPERS
// =============================================================================

type fakeSender struct {
	answer string
	err    error
	block  bool
}

func (s *fakeSender) Stream(ctx context.Context, query string) (stream.Source, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return stream.FromText(s.answer), nil
}

func newTestModel(t *testing.T, sender forwarder.Sender) (Model, *workspace.Workspace) {
	t.Helper()
	store, err := storage.Open(storage.BackendFile, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ws := workspace.New(store)
	m := New(forwarder.New(sender), ws, styles.NewThemeFor(termenv.Ascii, true))
	m = step(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	return m, ws
}

func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func stepCmd(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	return step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

// collect runs cmd and every command it batches, returning the messages.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func forwardDone(t *testing.T, cmd tea.Cmd) ForwardDoneMsg {
	t.Helper()
	for _, msg := range collect(cmd) {
		if done, ok := msg.(ForwardDoneMsg); ok {
			return done
		}
	}
	t.Fatal("command did not produce ForwardDoneMsg")
	return ForwardDoneMsg{}
}

// =============================================================================
// SEND
// =============================================================================

func TestSubmit_SavesExchange(t *testing.T) {
	m, ws := newTestModel(t, &fakeSender{answer: "Hello!"})

	m = typeText(t, m, "Hi")
	m, cmd := stepCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, StateStreaming, m.State())
	require.Empty(t, m.input.Value())
	require.NotNil(t, cmd)

	m = step(t, m, forwardDone(t, cmd))
	require.Equal(t, StateReady, m.State())
	require.NoError(t, m.Err())

	conv := m.Conversation()
	require.Equal(t, "Hi", conv.Name)
	require.Equal(t, model.Transcript{
		model.UserMessage("Hi"),
		model.AssistantMessage("Hello!"),
	}, conv.Messages)

	stored, err := ws.Conversation(conv.ID)
	require.NoError(t, err)
	require.Equal(t, conv.Messages, stored.Messages)

	selected, err := ws.Selected()
	require.NoError(t, err)
	require.Equal(t, conv.ID, selected.ID)

	view := m.View()
	require.Contains(t, view, "Hello!")
	require.Contains(t, view, "2 messages")
	require.Equal(t, 0, m.Tasks().RunningCount())
}

func TestSubmit_EmptyInputIgnored(t *testing.T) {
	m, _ := newTestModel(t, &fakeSender{answer: "x"})

	m = typeText(t, m, "   ")
	m, cmd := stepCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Equal(t, StateReady, m.State())
}

func TestSubmit_IgnoredWhileAnswering(t *testing.T) {
	m, _ := newTestModel(t, &fakeSender{block: true})

	m = typeText(t, m, "first")
	m, _ = stepCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, StateStreaming, m.State())

	m = typeText(t, m, "second")
	m, cmd := stepCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Equal(t, 1, m.Tasks().RunningCount())
	require.Equal(t, "second", m.input.Value())

	m.Tasks().StopAll()
}

// =============================================================================
// STOP AND ERRORS
// =============================================================================

func TestStop_KeepsUserMessage(t *testing.T) {
	m, ws := newTestModel(t, &fakeSender{block: true})

	m = typeText(t, m, "slow question")
	m, cmd := stepCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	m = step(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.Equal(t, "stopping...", m.statusMsg)

	done := forwardDone(t, cmd)
	require.NoError(t, done.Err)
	require.True(t, done.Result.Stopped)

	m = step(t, m, done)
	require.Equal(t, StateReady, m.State())
	require.Equal(t, model.Transcript{model.UserMessage("slow question")}, m.Conversation().Messages)
	require.Contains(t, m.View(), "answer stopped")

	stored, err := ws.Conversation(m.Conversation().ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 1)

	history := m.Tasks().History()
	require.Len(t, history, 1)
	require.Equal(t, "Stopped", history[0].GetStatus().String())
}

func TestUpstreamError_LeavesConversation(t *testing.T) {
	apiErr := &upstream.APIError{Type: "rate_limit", Message: "Too many requests", Code: "429", Status: 429}
	m, ws := newTestModel(t, &fakeSender{err: apiErr})
	before := m.Conversation()

	m = typeText(t, m, "Hi")
	m, cmd := stepCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = step(t, m, forwardDone(t, cmd))

	require.ErrorIs(t, m.Err(), apiErr)
	require.Equal(t, before, m.Conversation())
	require.Empty(t, m.Conversation().Messages)
	require.Contains(t, m.View(), "Too many requests (429)")

	convs, err := ws.Conversations()
	require.NoError(t, err)
	require.Empty(t, convs)

	// Esc clears the error.
	m = step(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NoError(t, m.Err())
}

// =============================================================================
// REGENERATE AND NEW CONVERSATION
// =============================================================================

func TestRegenerate(t *testing.T) {
	m, ws := newTestModel(t, &fakeSender{answer: "second"})

	conv := model.NewConversation()
	conv.Name = "q"
	conv.Messages = model.Transcript{model.UserMessage("q"), model.AssistantMessage("first")}
	require.NoError(t, ws.UpdateConversation(conv))

	m, err := m.WithConversationID(conv.ID)
	require.NoError(t, err)

	m, cmd := stepCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	require.Equal(t, StateStreaming, m.State())
	m = step(t, m, forwardDone(t, cmd))

	require.Equal(t, model.Transcript{model.UserMessage("q"), model.AssistantMessage("second")}, m.Conversation().Messages)
}

func TestRegenerate_NothingToRegenerate(t *testing.T) {
	m, _ := newTestModel(t, &fakeSender{answer: "x"})

	m, cmd := stepCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	require.Nil(t, cmd)
	require.Equal(t, StateReady, m.State())
	require.Equal(t, "nothing to regenerate", m.statusMsg)
}

func TestNewConversation(t *testing.T) {
	m, ws := newTestModel(t, &fakeSender{answer: "x"})
	first := m.Conversation().ID

	m, cmd := stepCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	require.NotNil(t, cmd)
	msgs := collect(cmd)
	require.Len(t, msgs, 1)
	m = step(t, m, msgs[0])

	require.NotEqual(t, first, m.Conversation().ID)
	require.Empty(t, m.Conversation().Messages)

	selected, err := ws.Selected()
	require.NoError(t, err)
	require.Equal(t, m.Conversation().ID, selected.ID)
}

func TestWithConversationID_Missing(t *testing.T) {
	m, _ := newTestModel(t, &fakeSender{answer: "x"})
	_, err := m.WithConversationID("missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// =============================================================================
// RENDERING
// =============================================================================

func TestStreamTick_ShowsPartialAnswer(t *testing.T) {
	m, _ := newTestModel(t, &fakeSender{block: true})

	m = typeText(t, m, "question")
	m, _ = stepCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	m.live.Set(model.Transcript{model.UserMessage("question"), model.AssistantMessage("partial answ")})
	m, cmd := stepCmd(t, m, StreamTickMsg{})
	require.NotNil(t, cmd)
	require.Contains(t, m.View(), "partial answ")
	require.Contains(t, m.View(), "answering...")

	m.Tasks().StopAll()
}

func TestView_BeforeResize(t *testing.T) {
	store, err := storage.Open(storage.BackendFile, t.TempDir())
	require.NoError(t, err)
	m := New(forwarder.New(&fakeSender{}), workspace.New(store), styles.NewThemeFor(termenv.Ascii, true))
	require.Equal(t, "Loading...", m.View())
}

func TestHelpToggle(t *testing.T) {
	m, _ := newTestModel(t, &fakeSender{answer: "x"})
	require.NotContains(t, m.View(), "scroll up")

	m = step(t, m, tea.KeyMsg{Type: tea.KeyF1})
	require.Contains(t, m.View(), "scroll up")
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t, &fakeSender{answer: "x"})
	_, cmd := stepCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestLiveTranscript_Snapshot(t *testing.T) {
	live := newLiveTranscript()
	tr := model.Transcript{model.UserMessage("a")}
	live.Set(tr)
	tr[0].Content = "changed"

	got, version := live.Snapshot()
	require.Equal(t, 1, version)
	require.Equal(t, "a", got[0].Content)

	live.Reset()
	got, version = live.Snapshot()
	require.Equal(t, 0, version)
	require.Empty(t, got)
}

func TestMarkdownRenderer(t *testing.T) {
	r := newMarkdownRenderer(styles.GlamourASCII)
	require.Equal(t, "", r.Render("", 80))
	require.Contains(t, r.Render("some **bold** text", 80), "bold")

	r.Render("again", 40)
	require.Equal(t, 40, r.width)
}
