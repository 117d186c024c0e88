// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small file helpers shared by the storage, config and
// export code.
//
// Conversations, the config file and exports are all written with
// AtomicWriteFile so a crash mid-write never leaves a truncated file:
//
//	err := util.AtomicWriteFile(path, data, 0600)
//
// Use AtomicWriteFileWithDir with PrivateDirPerm when the parent directory
// should not be world-readable.
package util
