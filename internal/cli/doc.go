// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the commands of arth.
//
// # Key Types
//
//   - Command: Enumeration of the available commands
//   - Args: Parsed global and command-specific flags
//   - App: Configuration, API client and I/O shared by commands
//   - ChatSession: The interactive REPL state
//
// # Usage
//
//	cmd, args, err := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdAsk:
//	    err = cli.HandleAsk(ctx, app, args)
//	case cli.CmdChat:
//	    err = cli.HandleChat(ctx, app, args)
//	// ... other commands
//	}
//
// # Commands Overview
//
//   - chat: Interactive session with partial replies and follow-ups
//   - ask: Send one message and print the reply
//   - replay: Decode a captured reply body offline
//   - upload: Upload images and print their URLs
//   - config: View and modify configuration
//   - doctor: Configuration and connectivity checks
//
// Commands that print results support --json.
package cli
