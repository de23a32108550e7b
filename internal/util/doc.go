// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the arth packages.
//
// Display: TruncateRunes, TruncateWidth, StringWidth, PadRight and FirstLine
// measure and cut text by runes or terminal columns, so CJK and emoji in
// replies line up in the chat view.
//
// Numbers: IntToString, Int64ToString, FloatToStringPrec and FormatBytes,
// the last used for attachment sizes.
//
// Files: AtomicWriteFile and AtomicWrite replace a file through a synced
// temp file and a rename. The config file and the chat input history are
// saved this way.
//
//	err := util.AtomicWriteFile(path, data, 0600, 0700)
package util
