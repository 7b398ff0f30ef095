package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quailyquaily/taskrelay/db/models"
)

func TestOpenSQLiteMigrates(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "relay.sqlite")
	gdb, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = Close(gdb) }()

	for _, model := range []any{&models.TrackedList{}, &models.ChatChannel{}, &models.ThreadCorrelation{}} {
		if !gdb.Migrator().HasTable(model) {
			t.Fatalf("expected table for %T", model)
		}
	}

	row := models.ThreadCorrelation{TaskID: "t1", ChannelID: "C1", ParentThreadToken: "1700000000.000100"}
	if err := gdb.Create(&row).Error; err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if strings.TrimSpace(row.ID) == "" {
		t.Fatalf("expected BeforeCreate to assign an id")
	}
	dup := models.ThreadCorrelation{TaskID: "t1", ChannelID: "C1", ParentThreadToken: "other"}
	if err := gdb.Create(&dup).Error; err == nil {
		t.Fatalf("expected unique task_id violation")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Driver = "oracle"
	if _, err := Open(cfg); err == nil || !strings.Contains(err.Error(), "unsupported db driver") {
		t.Fatalf("Open() error mismatch: got %v", err)
	}
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Driver = DriverPostgres
	if _, err := Open(cfg); err == nil || !strings.Contains(err.Error(), "db.dsn is required") {
		t.Fatalf("Open() error mismatch: got %v", err)
	}
}

func TestSQLiteDSNWithPragmas(t *testing.T) {
	t.Parallel()

	got := sqliteDSNWithPragmas("/tmp/x.sqlite", SQLiteConfig{BusyTimeoutMs: 5000, WAL: true, ForeignKeys: true})
	want := "/tmp/x.sqlite?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL"
	if got != want {
		t.Fatalf("dsn mismatch: got %q want %q", got, want)
	}
	if got := sqliteDSNWithPragmas("/tmp/x.sqlite?mode=ro", SQLiteConfig{WAL: true}); got != "/tmp/x.sqlite?mode=ro" {
		t.Fatalf("dsn with query should be kept: got %q", got)
	}
}

// Not parallel: HOME is process-wide.
func TestResolveSQLiteDSN(t *testing.T) {
	if got, err := ResolveSQLiteDSN(" /data/relay.sqlite "); err != nil || got != "/data/relay.sqlite" {
		t.Fatalf("explicit dsn mismatch: got %q, %v", got, err)
	}

	home := t.TempDir()
	t.Setenv("HOME", home)
	got, err := ResolveSQLiteDSN("")
	if err != nil {
		t.Fatalf("ResolveSQLiteDSN() error = %v", err)
	}
	want := filepath.Join(home, ".taskrelay", "taskrelay.sqlite")
	if got != want {
		t.Fatalf("default dsn mismatch: got %q want %q", got, want)
	}
	if info, err := os.Stat(filepath.Dir(want)); err != nil || !info.IsDir() {
		t.Fatalf("state dir should be created: %v", err)
	}
}
