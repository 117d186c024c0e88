// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"sync/atomic"
)

// Token is a cooperative stop signal for one forward operation.
//
// Stop may be called from any goroutine, any number of times. The zero value
// is not usable; create tokens with NewToken. A nil *Token is never stopped.
type Token struct {
	stopped atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewToken returns a token whose context is derived from parent.
func NewToken(parent context.Context) *Token {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Stop marks the token stopped and cancels its context.
func (t *Token) Stop() {
	if t == nil {
		return
	}
	t.stopped.Store(true)
	t.cancel()
}

// Stopped reports whether Stop has been called.
func (t *Token) Stopped() bool {
	return t != nil && t.stopped.Load()
}

// Context returns the context that in-flight requests should use.
func (t *Token) Context() context.Context {
	if t == nil {
		return context.Background()
	}
	return t.ctx
}

// Release frees the token's context without marking it stopped.
// Call it once the operation has finished.
func (t *Token) Release() {
	if t == nil {
		return
	}
	t.cancel()
}
