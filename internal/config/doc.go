// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads, validates and saves the arth settings.
//
// The file is TOML (config.toml) with a JSON fallback (config.json), kept
// in ARTH_HOME or ~/.arth with 0600 permissions since it holds the token.
// Keys are addressed in dot notation ("api.transport") by Get and Set.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - APIConfig: Chat service URL, token, customer and transport
//   - StreamConfig: Reply stream display and replay settings
//   - LogConfig, MetricsConfig, UIConfig: Ambient settings
//
// # Configuration Precedence
//
// Environment variables (ARTH_TOKEN, ARTH_API_URL, ARTH_CUSTOMER_ID,
// ARTH_TRANSPORT, ARTH_LOG_LEVEL, ARTH_METRICS_ADDR) win over the file,
// which wins over Default.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := api.NewClient(&api.ClientConfig{BaseURL: cfg.API.BaseURL, Token: cfg.API.Token})
package config
