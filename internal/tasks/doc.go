// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks tracks in-flight forward operations.
//
// Forwards against the same conversation must not overlap, so the Registry
// admits at most one running Task per conversation and hands each one a
// stream.Token. Stopping a conversation stops its token, which both
// cancels the outbound request and ends the chunk loop.
//
// # Key Types
//
//   - Task: one forward operation with status and timing
//   - Registry: running tasks by conversation plus a bounded history
//   - TaskStatus: Running, Complete, Stopped, Failed
//
// # Usage
//
//	task, err := registry.Start(ctx, conv.ID, tasks.KindSend)
//	if errors.Is(err, tasks.ErrBusy) {
//	    // another answer is still streaming
//	}
//	defer registry.Finish(task, result, err)
//	result, err := fwd.Forward(task.Token(), conv, msg, opts)
package tasks
