// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"io"
)

// Source is a finite, non-restartable sequence of byte chunks.
//
// Next returns io.EOF once every chunk has been delivered, and keeps
// returning io.EOF afterwards.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
}

// =============================================================================
// SLICE SOURCES
// =============================================================================

type sliceSource struct {
	chunks [][]byte
	pos    int
}

// FromText wraps a buffered answer as a single-chunk source.
// An empty answer still yields one (empty) chunk.
func FromText(text string) Source {
	return &sliceSource{chunks: [][]byte{[]byte(text)}}
}

// FromChunks returns a source that yields the given chunks in order.
func FromChunks(chunks ...[]byte) Source {
	return &sliceSource{chunks: chunks}
}

func (s *sliceSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.chunks[s.pos] = nil
	s.pos++
	return chunk, nil
}
