package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modularizer/fishook/internal/config"
)

func TestRunInitCreatesConfigFile(t *testing.T) {
	dir := repoWithConfig(t, "")

	stdout, _, err := execute(t, "", "init")
	if err != nil {
		t.Fatalf("init error: %v", err)
	}

	configPath := filepath.Join(dir, "fishook.json")
	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	if !bytes.Equal(content, config.Starter()) {
		t.Error("config file content does not match starter config")
	}
	if !strings.Contains(stdout, "Configuration written to: "+configPath) {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRunInitWithExistingConfigPrintsNotice(t *testing.T) {
	dir := repoWithConfig(t, `{"pre-commit": "true"}`)

	stdout, _, err := execute(t, "", "init")
	if err != nil {
		t.Fatalf("init error: %v", err)
	}
	if !strings.Contains(stdout, "already exists") {
		t.Errorf("stdout = %q", stdout)
	}

	content, _ := os.ReadFile(filepath.Join(dir, "fishook.json"))
	if string(content) != `{"pre-commit": "true"}` {
		t.Error("existing config was modified without --force")
	}
}

func TestRunInitForce(t *testing.T) {
	dir := repoWithConfig(t, `{"pre-commit": "true"}`)

	if _, _, err := execute(t, "", "init", "--force"); err != nil {
		t.Fatalf("init error: %v", err)
	}
	content, _ := os.ReadFile(filepath.Join(dir, "fishook.json"))
	if !bytes.Equal(content, config.Starter()) {
		t.Error("--force did not overwrite the config")
	}
}

func TestInitThenValidate(t *testing.T) {
	repoWithConfig(t, "")

	if _, _, err := execute(t, "", "init"); err != nil {
		t.Fatalf("init error: %v", err)
	}
	stdout, _, err := execute(t, "", "validate")
	if err != nil {
		t.Fatalf("validate error: %v\n%s", err, stdout)
	}
	if strings.Contains(stdout, "warning:") {
		t.Errorf("starter config has lint findings:\n%s", stdout)
	}
}
