// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package forwarder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/wiserchat/internal/budget"
	"github.com/jeranaias/wiserchat/internal/model"
	"github.com/jeranaias/wiserchat/internal/stream"
)

// =============================================================================
// TYPES
// =============================================================================

// Sender delivers a query upstream and returns the answer as chunks.
type Sender interface {
	Stream(ctx context.Context, query string) (stream.Source, error)
}

// Scope selects which messages are offered to the byte budget.
type Scope string

const (
	// ScopeLatest budgets only the message just appended.
	ScopeLatest Scope = "latest"

	// ScopeTranscript budgets the whole transcript, newest first.
	ScopeTranscript Scope = "transcript"
)

// ParseScope converts a config value to a Scope. Empty means ScopeLatest.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeLatest:
		return ScopeLatest, nil
	case ScopeTranscript:
		return ScopeTranscript, nil
	default:
		return "", fmt.Errorf("unknown history scope %q (want %q or %q)", s, ScopeLatest, ScopeTranscript)
	}
}

var (
	// ErrNilConversation is returned when no conversation is given.
	ErrNilConversation = errors.New("forwarder: nil conversation")

	// ErrInvalidMessage is returned for a message with an unknown role.
	ErrInvalidMessage = errors.New("forwarder: invalid message")

	// ErrNothingToRegenerate is returned when the transcript has no user message.
	ErrNothingToRegenerate = errors.New("forwarder: no user message to regenerate")

	// ErrNotEditable is returned when the edit target is not a user message.
	ErrNotEditable = errors.New("forwarder: message is not an editable user message")
)

// Options tunes a single forward.
type Options struct {
	// DeleteCount trailing messages are removed before the new one is appended.
	DeleteCount int

	// OnStart is called once the new message is in place, before the request.
	OnStart func(*model.Conversation)

	// OnUpdate is called after every change to the assistant message.
	OnUpdate stream.UpdateFunc
}

// Result is the finalized conversation of a forward.
type Result struct {
	// Conversation is the updated copy, ready to persist.
	Conversation *model.Conversation

	// Stopped is true when the answer was cut short by the token.
	Stopped bool

	// TitleChanged is true when the first exchange renamed the conversation.
	TitleChanged bool

	// Query is the text that was sent upstream.
	Query string

	// Chunks is the number of answer chunks consumed.
	Chunks int
}

// =============================================================================
// FORWARDER
// =============================================================================

// Forwarder composes the byte budget, the upstream sender and the stream
// reconstruction into a single operation.
type Forwarder struct {
	sender Sender

	mu        sync.RWMutex
	byteLimit int
	scope     Scope
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithByteLimit sets the query byte budget.
func WithByteLimit(n int) Option {
	return func(f *Forwarder) { f.byteLimit = n }
}

// WithScope sets the history scope.
func WithScope(s Scope) Option {
	return func(f *Forwarder) { f.scope = s }
}

// New creates a forwarder that sends through sender.
func New(sender Sender, opts ...Option) *Forwarder {
	f := &Forwarder{
		sender:    sender,
		byteLimit: budget.DefaultByteLimit,
		scope:     ScopeLatest,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Reconfigure swaps the budget settings for subsequent forwards.
func (f *Forwarder) Reconfigure(byteLimit int, scope Scope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byteLimit = byteLimit
	f.scope = scope
}

// SetSender swaps the upstream used by subsequent forwards.
func (f *Forwarder) SetSender(sender Sender) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sender = sender
}

// Settings returns the current budget settings.
func (f *Forwarder) Settings() (int, Scope) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.byteLimit, f.scope
}

// Forward appends msg to a copy of conv, sends it upstream, and streams the
// answer into the copy.
func (f *Forwarder) Forward(tok *stream.Token, conv *model.Conversation, msg model.Message, opts Options) (*Result, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}
	if !msg.Role.Valid() {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidMessage, msg.Role)
	}

	work := conv.Clone()
	work.Messages = work.Messages.TrimTail(opts.DeleteCount).Append(msg)

	first := len(work.Messages) == 1
	res := &Result{Conversation: work}
	work.Touch()

	if opts.OnStart != nil {
		opts.OnStart(work)
	}

	f.mu.RLock()
	sender, byteLimit, scope := f.sender, f.byteLimit, f.scope
	f.mu.RUnlock()
	candidates := []model.Message(work.Messages)
	if scope != ScopeTranscript {
		candidates = candidates[len(candidates)-1:]
	}
	sel := budget.SelectDetailed(candidates, byteLimit)
	res.Query = sel.Text

	log.Printf("FORWARD_START | conversation=%s messages=%d scope=%s included=%d query_bytes=%d",
		work.ID, len(work.Messages), scope, sel.Included, sel.Bytes())
	start := time.Now()

	src, err := sender.Stream(tok.Context(), sel.Text)
	if err != nil {
		if tok.Stopped() {
			res.Stopped = true
			log.Printf("FORWARD_STOPPED | conversation=%s phase=request", work.ID)
			return res, nil
		}
		log.Printf("FORWARD_FAILED | conversation=%s error=%v", work.ID, err)
		return nil, err
	}

	out, err := stream.Reconstruct(tok, src, &work.Messages, opts.OnUpdate)
	if err != nil {
		log.Printf("FORWARD_FAILED | conversation=%s chunks=%d error=%v", work.ID, out.Chunks, err)
		return nil, err
	}
	res.Stopped = out.Stopped
	res.Chunks = out.Chunks
	// The title follows the first answer; a stop before any chunk keeps the old name.
	if first && len(work.Messages) > 1 {
		title := model.DeriveTitle(msg.Content)
		res.TitleChanged = title != work.Name
		work.Name = title
	}
	work.Touch()

	log.Printf("FORWARD_DONE | conversation=%s chunks=%d answer_bytes=%d stopped=%t duration=%v",
		work.ID, out.Chunks, len(out.Text), out.Stopped, time.Since(start).Round(time.Millisecond))
	return res, nil
}

// Regenerate drops everything from the last user message on and sends that
// message again.
func (f *Forwarder) Regenerate(tok *stream.Token, conv *model.Conversation, opts Options) (*Result, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}
	idx := conv.Messages.LastIndexOf(model.RoleUser)
	if idx < 0 {
		return nil, ErrNothingToRegenerate
	}
	opts.DeleteCount = len(conv.Messages) - idx
	return f.Forward(tok, conv, conv.Messages[idx], opts)
}

// Edit replaces the user message at index with content, drops everything
// after it, and sends the edited message.
func (f *Forwarder) Edit(tok *stream.Token, conv *model.Conversation, index int, content string, opts Options) (*Result, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}
	if index < 0 || index >= len(conv.Messages) || conv.Messages[index].Role != model.RoleUser {
		return nil, fmt.Errorf("%w: index %d", ErrNotEditable, index)
	}
	opts.DeleteCount = len(conv.Messages) - index
	return f.Forward(tok, conv, model.UserMessage(content), opts)
}
