// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - "arth doctor" runs setup and connectivity checks.
//
// Command: doctor
// Short:   Run health checks and diagnostics
//
// Examples:
//   arth doctor
//   arth doctor --json
//
// Health Checks Performed:
//   1. Config Valid       - Validates the configuration
//   2. Config File        - Checks that a config file exists
//   3. Access Token       - Checks api.token is set
//   4. Customer ID        - Checks api.customer_id is set
//   5. Transport          - Checks api.transport names a known transport
//   6. Config Writable    - Checks the config directory accepts writes
//   7. Service Reachable  - Sends a request to api.base_url
//
// Exit Codes:
//   0   No check failed
//   1   One or more checks failed

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/arth-chat/internal/api"
	"github.com/jeranaias/arth-chat/internal/config"
)

// pingTimeout bounds the reachability check.
const pingTimeout = 5 * time.Second

var (
	checkPassStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	checkWarnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	checkFailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	fixStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true).
			PaddingLeft(2)
)

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	// CheckPass indicates the check passed.
	CheckPass CheckStatus = iota
	// CheckWarn indicates a non-critical issue.
	CheckWarn
	// CheckFail indicates a critical issue.
	CheckFail
)

// String returns the lower-case status name used in JSON output.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	case CheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns the styled marker for the status.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return checkPassStyle.Render("[OK]")
	case CheckWarn:
		return checkWarnStyle.Render("[!!]")
	case CheckFail:
		return checkFailStyle.Render("[FAIL]")
	default:
		return "?"
	}
}

// HealthCheck is a single health check result.
type HealthCheck struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // suggested command or instruction
}

// Render formats the check for the terminal.
func (c *HealthCheck) Render() string {
	result := fmt.Sprintf("%s %s", c.Status.Symbol(), c.Message)
	if c.Status != CheckPass && c.Fix != "" {
		result += "\n" + fixStyle.Render("-> "+c.Fix)
	}
	return result
}

// Pinger reports whether the chat service answers.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// =============================================================================
// HANDLE DOCTOR
// =============================================================================

// HandleDoctor runs every check against cfg and prints the results. The
// reachability check uses client and is skipped when client is nil.
func HandleDoctor(ctx context.Context, w io.Writer, cfg *config.Config, client Pinger, args Args) error {
	checks := runAllChecks(ctx, cfg, client)

	passed, warned, failed := 0, 0, 0
	for _, check := range checks {
		switch check.Status {
		case CheckPass:
			passed++
		case CheckWarn:
			warned++
		case CheckFail:
			failed++
		}
	}

	if args.JSON {
		if err := writeDoctorJSON(w, checks, failed); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w)
		fmt.Fprintln(w, TitleStyle.Render("arth Doctor"))
		fmt.Fprintln(w, SeparatorStyle.Render(strings.Repeat("=", 41)))
		fmt.Fprintln(w)
		for _, check := range checks {
			fmt.Fprintln(w, check.Render())
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, RenderSeparator(41))

		parts := []string{fmt.Sprintf("%d passed", passed)}
		if warned > 0 {
			parts = append(parts, checkWarnStyle.Render(fmt.Sprintf("%d warning", warned)))
		}
		if failed > 0 {
			parts = append(parts, checkFailStyle.Render(fmt.Sprintf("%d failed", failed)))
		}
		fmt.Fprintln(w, DimStyle.Render(strings.Join(parts, ", ")))
		fmt.Fprintln(w)
	}

	if failed > 0 {
		return &CommandError{Command: "doctor", Action: "check", Reason: fmt.Sprintf("%d health check(s) failed", failed)}
	}
	return nil
}

func writeDoctorJSON(w io.Writer, checks []*HealthCheck, failed int) error {
	out := make([]DoctorCheck, 0, len(checks))
	for _, check := range checks {
		out = append(out, DoctorCheck{
			Name:    check.Name,
			Status:  check.Status.String(),
			Message: check.Message,
			Fix:     check.Fix,
		})
	}

	resp := NewJSONResponse("doctor", DoctorData{Checks: out, Healthy: failed == 0})
	if failed > 0 {
		msg := fmt.Sprintf("%d health check(s) failed", failed)
		resp.Success = false
		resp.Error = &msg
	}
	return resp.Write(w)
}

// =============================================================================
// HEALTH CHECK FUNCTIONS
// =============================================================================

func runAllChecks(ctx context.Context, cfg *config.Config, client Pinger) []*HealthCheck {
	checks := []*HealthCheck{
		checkConfigValid(cfg),
		checkConfigFile(),
		checkToken(cfg),
		checkCustomerID(cfg),
		checkTransport(cfg),
		checkConfigWritable(),
	}
	if client != nil {
		checks = append(checks, checkReachable(ctx, cfg, client))
	}
	return checks
}

func checkConfigValid(cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "Config Valid"}
	if err := cfg.Validate(); err != nil {
		check.Status = CheckFail
		check.Message = "Config invalid: " + err.Error()
		check.Fix = "Run: arth config reset"
		return check
	}
	check.Status = CheckPass
	check.Message = "Config valid"
	return check
}

func checkConfigFile() *HealthCheck {
	check := &HealthCheck{Name: "Config File"}
	path, exists := configFile()
	if !exists {
		check.Status = CheckWarn
		check.Message = "No config file, using defaults"
		check.Fix = "Run: arth config set api.token <token>"
		return check
	}
	check.Status = CheckPass
	check.Message = "Config file: " + path
	return check
}

func checkToken(cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "Access Token"}
	if strings.TrimSpace(cfg.API.Token) == "" {
		check.Status = CheckFail
		check.Message = "No access token configured"
		check.Fix = "Run: arth config set api.token <token> (or set ARTH_TOKEN)"
		return check
	}
	check.Status = CheckPass
	check.Message = "Access token set (" + maskIfSecret("api.token", cfg.API.Token) + ")"
	return check
}

func checkCustomerID(cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "Customer ID"}
	if strings.TrimSpace(cfg.API.CustomerID) == "" {
		check.Status = CheckWarn
		check.Message = "No customer ID configured"
		check.Fix = "Run: arth config set api.customer_id <id>"
		return check
	}
	check.Status = CheckPass
	check.Message = "Customer ID: " + cfg.API.CustomerID
	return check
}

func checkTransport(cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "Transport"}
	t, err := api.ParseTransport(cfg.API.Transport)
	if err != nil {
		check.Status = CheckFail
		check.Message = err.Error()
		check.Fix = "Run: arth config set api.transport http"
		return check
	}
	check.Status = CheckPass
	check.Message = "Transport: " + string(t)
	return check
}

func checkConfigWritable() *HealthCheck {
	check := &HealthCheck{Name: "Config Writable"}
	dir, err := config.ConfigDir()
	if err == nil {
		err = config.EnsureConfigDir()
	}
	if err == nil {
		var f *os.File
		f, err = os.CreateTemp(dir, ".doctor-*")
		if err == nil {
			name := f.Name()
			f.Close()
			os.Remove(name)
		}
	}
	if err != nil {
		check.Status = CheckWarn
		check.Message = "Config directory not writable: " + err.Error()
		check.Fix = "Check permissions of " + dir + " (or set ARTH_HOME)"
		return check
	}
	check.Status = CheckPass
	check.Message = "Config directory writable: " + dir
	return check
}

func checkReachable(ctx context.Context, cfg *config.Config, client Pinger) *HealthCheck {
	check := &HealthCheck{Name: "Service Reachable"}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	elapsed, err := client.Ping(pingCtx)
	switch {
	case err == nil:
		check.Status = CheckPass
		check.Message = fmt.Sprintf("Service reachable at %s (%s)", cfg.API.BaseURL, elapsed.Round(time.Millisecond))
	case api.IsUnauthorized(err):
		check.Status = CheckFail
		check.Message = "Service rejected the access token"
		check.Fix = "Run: arth config set api.token <token>"
	default:
		check.Status = CheckFail
		check.Message = "Service not reachable at " + cfg.API.BaseURL + ": " + err.Error()
		check.Fix = "Check api.base_url and your network connection"
	}
	return check
}
