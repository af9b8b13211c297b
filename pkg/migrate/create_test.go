package migrate

import (
	"strings"
	"testing"
	"time"
)

func TestCreateSQLMigrationRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	path, err := createSQLMigration(dir, "add trial days", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "20260301120000_add_trial_days.sql") {
		t.Fatalf("unexpected path %q", path)
	}
	if _, err := createSQLMigration(dir, "add trial days", now); err == nil {
		t.Fatal("expected second create with same version to fail")
	}
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	if _, err := createSQLMigration(t.TempDir(), "  --  ", time.Now()); err == nil {
		t.Fatal("expected empty sanitized name to fail")
	}
}
