package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMigrateValidateEmbedded(t *testing.T) {
	cmd := newMigrateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"validate"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if strings.TrimSpace(out.String()) != "migrations ok" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestMigrateCreateWritesIntoDir(t *testing.T) {
	dir := t.TempDir()
	cmd := newMigrateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"create", "add review index", "--dir", dir})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("create: %v", err)
	}
	path := strings.TrimSpace(out.String())
	if filepath.Dir(path) != dir || !strings.HasSuffix(path, "_add_review_index.sql") {
		t.Fatalf("unexpected path %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("migration not written: %v", err)
	}
}

func TestMigrateToRejectsBadVersion(t *testing.T) {
	cmd := newMigrateCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"to"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected missing version argument to fail")
	}
}
