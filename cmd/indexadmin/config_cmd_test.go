package main

import (
	"os"
	"strings"
	"testing"

	"github.com/ifarchive/indexadmin/internal/config"
)

func TestRunConfigInit(t *testing.T) {
	root := setupCommandTestArchive(t)

	captureCommandStdout(t, func() {
		if err := runConfigInit(root, false); err != nil {
			t.Errorf("runConfigInit: %v", err)
		}
	})
	p := config.ConfigFilePath(root)
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	err := runConfigInit(root, false)
	if err == nil || !strings.Contains(err.Error(), "--force") {
		t.Errorf("second init should refuse to overwrite, got %v", err)
	}
	captureCommandStdout(t, func() {
		if err := runConfigInit(root, true); err != nil {
			t.Errorf("runConfigInit --force: %v", err)
		}
	})
}

func TestRunConfigInit_NotADirectory(t *testing.T) {
	root := setupCommandTestArchive(t)
	if err := runConfigInit(root+"/missing", false); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestConfigShow_UsesArchiveDir(t *testing.T) {
	root := setupCommandTestArchive(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"config", "show"})
	out := captureCommandStdout(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("config show: %v", err)
		}
	})
	if !strings.Contains(out, root) || !strings.Contains(out, "index_name") {
		t.Errorf("config show output:\n%s", out)
	}
}
