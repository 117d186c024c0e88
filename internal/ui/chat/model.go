// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/wiserchat/internal/forwarder"
	"github.com/jeranaias/wiserchat/internal/model"
	"github.com/jeranaias/wiserchat/internal/tasks"
	"github.com/jeranaias/wiserchat/internal/ui/styles"
	"github.com/jeranaias/wiserchat/internal/workspace"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// State represents the current state of the chat view.
type State int

const (
	StateReady     State = iota // Ready for input
	StateStreaming              // Waiting for or receiving an answer
)

// ErrNoConversation is returned when the view has no conversation loaded.
var ErrNoConversation = errors.New("no conversation loaded")

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	state State

	// Styling
	theme    *styles.Theme
	markdown *markdownRenderer

	// Dimensions
	width  int
	height int

	// Conversation and the services that act on it
	conversation *model.Conversation
	forwarder    *forwarder.Forwarder
	workspace    *workspace.Workspace
	registry     *tasks.Registry

	// Running forward
	task        *tasks.Task
	live        *liveTranscript
	liveVersion int

	// UI Components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	help     help.Model
	keyMap   KeyMap

	// Status line
	lastError error
	statusMsg string
	showHelp  bool
}

// New creates a chat view on a fresh conversation. Use WithConversationID
// to open an existing one.
func New(fwd *forwarder.Forwarder, ws *workspace.Workspace, theme *styles.Theme) Model {
	keyMap := DefaultKeyMap()

	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline = keyMap.Newline
	ta.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = styles.LineSpinner.Bubbles()
	sp.Style = theme.Spinner

	return Model{
		state:        StateReady,
		theme:        theme,
		markdown:     newMarkdownRenderer(theme.GlamourStyle()),
		conversation: model.NewConversation(),
		forwarder:    fwd,
		workspace:    ws,
		registry:     tasks.NewRegistry(tasks.DefaultMaxHistory),
		live:         newLiveTranscript(),
		viewport:     vp,
		input:        ta,
		spinner:      sp,
		help:         help.New(),
		keyMap:       keyMap,
	}
}

// WithConversationID opens a stored conversation. An empty id opens the
// workspace's selected conversation.
func (m Model) WithConversationID(id string) (Model, error) {
	var (
		conv *model.Conversation
		err  error
	)
	if id == "" {
		conv, err = m.workspace.Selected()
	} else {
		conv, err = m.workspace.Conversation(id)
	}
	if err != nil {
		return m, fmt.Errorf("open conversation: %w", err)
	}
	m.conversation = conv
	m.updateViewport()
	return m, nil
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if m.state != StateStreaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StreamTickMsg:
		return m.handleStreamTick()

	case ForwardDoneMsg:
		return m.handleForwardDone(msg)

	case ConversationMsg:
		return m.handleConversation(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// =============================================================================
// RESIZE
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	// Conservative estimates; renderChat measures the real heights.
	const (
		headerHeight = 1
		statusHeight = 1
		inputHeight  = 5 // textarea + border
		helpHeight   = 1
	)

	vpHeight := m.height - headerHeight - statusHeight - inputHeight - helpHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = max(m.width, 1)
	m.viewport.Height = vpHeight
	m.input.SetWidth(max(m.width-2, 10))
	m.help.Width = m.width

	if m.theme != nil {
		m.theme.SetSize(m.width, m.height)
	}

	m.updateViewport()
	return m, nil
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		if n := m.registry.StopAll(); n > 0 {
			log.Printf("CHAT_QUIT | stopped=%d", n)
		}
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keyMap.Stop):
		return m.stop()

	case key.Matches(msg, m.keyMap.Regenerate):
		return m.startForward(tasks.KindRegenerate, "")

	case key.Matches(msg, m.keyMap.NewChat):
		return m.newConversation()

	case key.Matches(msg, m.keyMap.Submit):
		content := m.input.Value()
		if strings.TrimSpace(content) == "" {
			return m, nil
		}
		next, cmd := m.startForward(tasks.KindSend, content)
		if nm, ok := next.(Model); ok && nm.state == StateStreaming {
			nm.input.Reset()
			return nm, cmd
		}
		return next, cmd

	case key.Matches(msg, m.keyMap.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keyMap.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// FORWARDING
// =============================================================================

// startForward registers a task for the conversation and runs the forward
// in a command. Ignored while an answer is running.
func (m Model) startForward(kind tasks.Kind, content string) (tea.Model, tea.Cmd) {
	if m.state == StateStreaming {
		return m, nil
	}
	if m.conversation == nil {
		m.lastError = ErrNoConversation
		return m, nil
	}
	if kind == tasks.KindRegenerate && m.conversation.Messages.LastIndexOf(model.RoleUser) < 0 {
		m.statusMsg = "nothing to regenerate"
		return m, nil
	}

	task, err := m.registry.Start(context.Background(), m.conversation.ID, kind)
	if err != nil {
		m.lastError = err
		return m, nil
	}

	m.state = StateStreaming
	m.task = task
	m.lastError = nil
	m.statusMsg = ""
	m.live.Reset()
	m.liveVersion = 0

	req := forwardRequest{
		fwd:     m.forwarder,
		task:    task,
		conv:    m.conversation.Clone(),
		content: content,
		live:    m.live,
	}
	return m, tea.Batch(m.spinner.Tick, streamTickCmd(), forwardCmd(req))
}

// stop signals the running forward. The outcome still arrives as a
// ForwardDoneMsg.
func (m Model) stop() (tea.Model, tea.Cmd) {
	if m.state != StateStreaming {
		m.lastError = nil
		m.statusMsg = ""
		return m, nil
	}
	if m.registry.Stop(m.conversation.ID) {
		m.statusMsg = "stopping..."
	}
	return m, nil
}

func (m Model) handleStreamTick() (tea.Model, tea.Cmd) {
	if m.state != StateStreaming {
		return m, nil
	}
	if _, version := m.live.Snapshot(); version != m.liveVersion {
		m.liveVersion = version
		m.updateViewport()
		m.viewport.GotoBottom()
	}
	return m, streamTickCmd()
}

func (m Model) handleForwardDone(msg ForwardDoneMsg) (tea.Model, tea.Cmd) {
	if msg.Task == nil || msg.Task != m.task {
		return m, nil
	}

	err := msg.Err
	if err == nil && msg.Result != nil {
		err = m.persist(msg.Result.Conversation)
	}
	stopped := msg.Result != nil && msg.Result.Stopped
	m.registry.Finish(msg.Task, stopped, err)

	m.state = StateReady
	m.task = nil
	m.live.Reset()
	m.liveVersion = 0

	switch {
	case err != nil:
		m.lastError = err
		m.statusMsg = ""
	case stopped:
		m.conversation = msg.Result.Conversation
		m.statusMsg = "answer stopped"
	default:
		m.conversation = msg.Result.Conversation
		m.statusMsg = ""
	}

	m.updateViewport()
	m.viewport.GotoBottom()
	return m, textarea.Blink
}

// persist saves a finished conversation and selects it.
func (m Model) persist(conv *model.Conversation) error {
	if err := m.workspace.UpdateConversation(conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	if _, err := m.workspace.Select(conv.ID); err != nil {
		return fmt.Errorf("select conversation: %w", err)
	}
	return nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func (m Model) newConversation() (tea.Model, tea.Cmd) {
	if m.state == StateStreaming {
		return m, nil
	}
	ws := m.workspace
	return m, func() tea.Msg {
		conv, err := ws.NewConversation()
		return ConversationMsg{Conversation: conv, Err: err}
	}
}

func (m Model) handleConversation(msg ConversationMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.lastError = msg.Err
		return m, nil
	}
	m.conversation = msg.Conversation
	m.lastError = nil
	m.statusMsg = ""
	m.input.Reset()
	m.updateViewport()
	return m, nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Conversation returns the conversation on screen.
func (m Model) Conversation() *model.Conversation {
	return m.conversation
}

// State returns the current state.
func (m Model) State() State {
	return m.state
}

// Err returns the last error shown in the status line.
func (m Model) Err() error {
	return m.lastError
}

// Tasks returns the view's task registry.
func (m Model) Tasks() *tasks.Registry {
	return m.registry
}
