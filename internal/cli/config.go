// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - "arth config" views and changes configuration.
//
// Command: config [subcommand]
// Short:   View and modify configuration
//
// Subcommands:
//   show (default)      Display current configuration
//   get <key>           Print one value
//   set <key> <value>   Set a value and save
//   reset               Reset to default configuration
//   path                Show configuration file path
//
// Examples:
//   arth config
//   arth config get api.transport
//   arth config set api.transport websocket
//   arth config set api.token eyJhbGciOi...
//   arth config set ui.color never
//   arth config show --json

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/arth-chat/internal/config"
)

// HandleConfig runs a config subcommand against cfg.
func HandleConfig(w io.Writer, cfg *config.Config, args Args) error {
	switch args.Subcommand {
	case "", "show", "list":
		return handleConfigShow(w, cfg, args.JSON)
	case "get":
		return handleConfigGet(w, cfg, args.ConfigKey, args.JSON)
	case "set":
		return handleConfigSet(w, cfg, args.ConfigKey, args.ConfigVal)
	case "reset":
		return handleConfigReset(w)
	case "path":
		return handleConfigPath(w, args.JSON)
	default:
		return &ValidationError{
			Field:   "config subcommand",
			Value:   args.Subcommand,
			Reason:  "unknown subcommand",
			Example: "arth config show|get|set|reset|path",
		}
	}
}

// configValues returns every key with its display value.
func configValues(cfg *config.Config) map[string]string {
	values := make(map[string]string)
	for _, key := range config.GetAllKeys() {
		v, err := cfg.Get(key)
		if err != nil {
			continue
		}
		values[key] = maskIfSecret(key, fmt.Sprint(v))
	}
	return values
}

func configFile() (string, bool) {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return "", false
	}
	_, statErr := os.Stat(path)
	return path, statErr == nil
}

func handleConfigShow(w io.Writer, cfg *config.Config, jsonMode bool) error {
	path, exists := configFile()
	values := configValues(cfg)

	if jsonMode {
		return NewJSONResponse("config show", ConfigData{Path: path, Exists: exists, Values: values}).Write(w)
	}

	fmt.Fprintln(w, TitleStyle.Render("arth configuration"))
	section := ""
	for _, key := range config.GetAllKeys() {
		value, ok := values[key]
		if !ok {
			continue
		}
		name := key
		if s, field, found := strings.Cut(key, "."); found {
			if s != section {
				section = s
				fmt.Fprintln(w)
				fmt.Fprintln(w, SectionStyle.Render("["+s+"]"))
			}
			name = field
		}
		if value == "" {
			value = DimStyle.Render("(not set)")
		}
		fmt.Fprintf(w, "  %s%s\n", RenderLabel(name+":"), ValueStyle.Render(value))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, RenderSeparator(41))
	note := ""
	if !exists {
		note = DimStyle.Render(" (not created yet)")
	}
	fmt.Fprintf(w, "Config file: %s%s\n", path, note)
	return nil
}

func handleConfigGet(w io.Writer, cfg *config.Config, key string, jsonMode bool) error {
	if key == "" {
		return ErrMissingArgument("key", "arth config get api.transport")
	}
	v, err := cfg.Get(key)
	if err != nil {
		return unknownKeyError(key, err)
	}
	value := maskIfSecret(key, fmt.Sprint(v))
	if jsonMode {
		return NewJSONResponse("config get", map[string]string{"key": key, "value": value}).Write(w)
	}
	fmt.Fprintln(w, value)
	return nil
}

func handleConfigSet(w io.Writer, cfg *config.Config, key, value string) error {
	if key == "" {
		return ErrMissingArgument("key", "arth config set <key> <value>")
	}

	updated := cfg.Clone()
	if err := updated.Set(key, value); err != nil {
		return unknownKeyError(key, err)
	}
	updated.Normalize()
	if err := updated.Validate(); err != nil {
		return err
	}
	if err := config.Save(updated); err != nil {
		return NewCommandError("config", "set", "cannot save configuration", err)
	}
	*cfg = *updated

	fmt.Fprintf(w, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, maskIfSecret(key, value))
	return nil
}

func handleConfigReset(w io.Writer) error {
	if err := config.Save(config.Default()); err != nil {
		return NewCommandError("config", "reset", "cannot save configuration", err)
	}
	path, _ := configFile()
	fmt.Fprintf(w, "%s Configuration reset to defaults\n", SuccessStyle.Render("[OK]"))
	fmt.Fprintf(w, "Config file: %s\n", path)
	return nil
}

func handleConfigPath(w io.Writer, jsonMode bool) error {
	path, exists := configFile()
	if path == "" {
		return errors.New("cannot determine the configuration directory")
	}
	if jsonMode {
		return NewJSONResponse("config path", map[string]any{"path": path, "exists": exists}).Write(w)
	}
	fmt.Fprintln(w, path)
	return nil
}

func unknownKeyError(key string, err error) error {
	verr := &ValidationError{Field: "key", Value: key, Reason: err.Error()}
	if s := SuggestConfigKey(key); s != "" {
		verr.Example = "arth config get " + s
	}
	return verr
}

// maskIfSecret hides all but the last four characters of a secret value.
func maskIfSecret(key, value string) string {
	if !config.IsSecretKey(key) || value == "" {
		return value
	}
	if len(value) <= 8 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
