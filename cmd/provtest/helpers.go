package main

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/newtron-network/provtest/pkg/audit"
	"github.com/newtron-network/provtest/pkg/harness"
	"github.com/newtron-network/provtest/pkg/manifest"
	"github.com/newtron-network/provtest/pkg/settings"
	"github.com/newtron-network/provtest/pkg/target"
	"github.com/newtron-network/provtest/pkg/transport"
)

// Process exit codes.
const (
	exitOK       = 0
	exitFailures = 1
	exitInfra    = 2
)

// resolveSuitesDir resolves the suites directory: flag > env > settings > default.
func resolveSuitesDir() string {
	return settings.Resolve(suitesFlag, "PROVTEST_SUITES", userSettings.SuitesDir, settings.DefaultSuitesDir)
}

// resolveInventory resolves the inventory file: flag > env > settings.
func resolveInventory() (string, error) {
	path := settings.Resolve(inventoryFlag, "PROVTEST_INVENTORY", userSettings.DefaultInventory, "")
	if path == "" {
		return "", fmt.Errorf("no inventory: pass --inventory, set PROVTEST_INVENTORY, or 'provtest settings set default_inventory <file>'")
	}
	return path, nil
}

// reportPath places a bare file name under the reports directory.
func reportPath(name string) string {
	if name == "" || filepath.Dir(name) != "." {
		return name
	}
	return filepath.Join(userSettings.GetReportsDir(), name)
}

// auditLogPath resolves the audit log file: flag > settings > reports dir.
func auditLogPath(flag string) string {
	if flag != "" {
		return flag
	}
	return userSettings.GetAuditLog()
}

func openAuditLog(flag string) (*audit.FileLogger, error) {
	return audit.NewFileLogger(auditLogPath(flag), audit.DefaultRotation)
}

// currentUser names the operator recorded in audit events.
func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

// loadInventory reads the inventory and applies settings that the file
// leaves at their defaults.
func loadInventory() (*target.Inventory, error) {
	path, err := resolveInventory()
	if err != nil {
		return nil, err
	}
	inv, err := target.LoadInventory(path)
	if err != nil {
		return nil, err
	}
	if userSettings.PuppetBin != "" && inv.PuppetBin == manifest.DefaultPuppetBin {
		inv.PuppetBin = userSettings.PuppetBin
	}
	return inv, nil
}

// connect loads the inventory and dials the target, prompting for missing
// passwords on the terminal.
func connect(ctx context.Context) (*target.Target, error) {
	inv, err := loadInventory()
	if err != nil {
		return nil, err
	}
	tgt, err := target.Connect(ctx, inv, transport.PromptPassword)
	if err != nil {
		return nil, &harness.InfraError{Op: "connect", Err: err}
	}
	return tgt, nil
}

// exitCode maps results to the process exit code: infrastructure errors
// beat failures; skips never fail a run.
func exitCode(results []*harness.SuiteResult) int {
	hasFailure, hasInfra := false, false
	for _, r := range results {
		switch {
		case r.SetupError != nil, r.Status == harness.StatusError:
			hasInfra = true
		case r.Status == harness.StatusFailed:
			hasFailure = true
		}
	}
	switch {
	case hasInfra:
		return exitInfra
	case hasFailure:
		return exitFailures
	}
	return exitOK
}
