// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/jeranaias/wiserchat/internal/model"
)

// Outcome summarizes a Reconstruct run.
type Outcome struct {
	// Stopped is true when the token was stopped before the source ended.
	Stopped bool

	// Chunks is the number of chunks consumed.
	Chunks int

	// Text is the decoded answer received so far.
	Text string
}

// Started reports whether an assistant message was appended.
func (o Outcome) Started() bool {
	return o.Chunks > 0
}

// UpdateFunc observes the transcript after each change.
// The transcript is only valid for the duration of the call.
type UpdateFunc func(model.Transcript)

// Reconstruct consumes src and writes the answer into transcript.
//
// A stop is not an error: Reconstruct returns a stopped Outcome and leaves
// any partial answer in the transcript. Errors from src are returned as is
// unless the token was stopped while the read was pending.
func Reconstruct(tok *Token, src Source, transcript *model.Transcript, onUpdate UpdateFunc) (Outcome, error) {
	var out Outcome
	if transcript == nil {
		return out, errors.New("stream: nil transcript")
	}

	if tok.Stopped() {
		out.Stopped = true
		return out, nil
	}

	dec := newDecoder()
	var text strings.Builder

	for {
		chunk, err := src.Next(tok.Context())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if tok.Stopped() {
				out.Stopped = true
				out.Text = text.String()
				return out, nil
			}
			out.Text = text.String()
			return out, fmt.Errorf("read answer chunk %d: %w", out.Chunks+1, err)
		}

		decoded, err := dec.decode(chunk, false)
		if err != nil {
			out.Text = text.String()
			return out, fmt.Errorf("decode answer chunk %d: %w", out.Chunks+1, err)
		}
		text.WriteString(decoded)
		out.Chunks++

		if out.Chunks == 1 {
			*transcript = transcript.Append(model.AssistantMessage(text.String()))
		} else {
			transcript.SetLastContent(text.String())
		}
		notify(onUpdate, *transcript)

		if tok.Stopped() {
			out.Stopped = true
			out.Text = text.String()
			return out, nil
		}
	}

	// An answer that ends inside a multi-byte sequence still gets its
	// trailing bytes, as replacement characters.
	if tail, err := dec.decode(nil, true); err == nil && tail != "" && out.Chunks > 0 {
		text.WriteString(tail)
		transcript.SetLastContent(text.String())
		notify(onUpdate, *transcript)
	}

	out.Text = text.String()
	return out, nil
}

func notify(onUpdate UpdateFunc, t model.Transcript) {
	if onUpdate != nil {
		onUpdate(t)
	}
}

// =============================================================================
// UTF-8 DECODING
// =============================================================================

// decoder turns chunks into text, holding back a multi-byte sequence that
// is split across chunk boundaries. Invalid bytes become U+FFFD.
type decoder struct {
	t       transform.Transformer
	pending []byte
}

func newDecoder() *decoder {
	return &decoder{t: unicode.UTF8.NewDecoder()}
}

func (d *decoder) decode(chunk []byte, atEOF bool) (string, error) {
	src := append(d.pending, chunk...)
	d.pending = nil
	if len(src) == 0 {
		return "", nil
	}

	var out strings.Builder
	dst := make([]byte, 3*len(src)+utf8.UTFMax)

	for {
		nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
		out.Write(dst[:nDst])
		src = src[nSrc:]

		switch {
		case err == nil:
			return out.String(), nil
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = append([]byte(nil), src...)
			return out.String(), nil
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				dst = make([]byte, 2*len(dst))
			}
		default:
			return out.String(), err
		}
	}
}
