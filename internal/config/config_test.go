package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.TimeoutSeconds != 4 {
		t.Errorf("TimeoutSeconds = %d, want 4", cfg.Network.TimeoutSeconds)
	}
	if cfg.Dashboard.Addr != "127.0.0.1:8787" {
		t.Errorf("Dashboard.Addr = %q, want default", cfg.Dashboard.Addr)
	}
	if cfg.Archive.MaxMegabytes != 512 {
		t.Errorf("Archive.MaxMegabytes = %d, want 512", cfg.Archive.MaxMegabytes)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ticketbot.toml")
	body := `
[network]
timeout = 9

[target]
project_id = 12345
screen_id = 1
sku_id = 2

[dashboard]
addr = "0.0.0.0:9999"

[journal]
mongo_uri = "mongodb://localhost:27017"
retention_days = 3
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.TimeoutSeconds != 9 {
		t.Errorf("TimeoutSeconds = %d, want 9", cfg.Network.TimeoutSeconds)
	}
	if cfg.Target.ProjectID != 12345 {
		t.Errorf("ProjectID = %d, want 12345", cfg.Target.ProjectID)
	}
	if cfg.Dashboard.Addr != "0.0.0.0:9999" {
		t.Errorf("Dashboard.Addr = %q, want override", cfg.Dashboard.Addr)
	}
	if cfg.Journal.MongoURI != "mongodb://localhost:27017" {
		t.Errorf("Journal.MongoURI = %q, want override", cfg.Journal.MongoURI)
	}
	if cfg.Journal.RetentionDays != 3 {
		t.Errorf("Journal.RetentionDays = %d, want 3", cfg.Journal.RetentionDays)
	}
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ticketbot.toml")
	body := "[target]\nproject_id = 111\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int64("project-id", 0, "")
	fs.Float64("sleep", 0, "")
	fs.Bool("debug", false, "")
	if err := fs.Parse([]string{"--project-id=999", "--debug"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Target.ProjectID != 999 {
		t.Errorf("ProjectID = %d, want flag override 999", cfg.Target.ProjectID)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true from flag")
	}
}

func TestLoadUnsetFlagsDoNotClobberFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ticketbot.toml")
	body := "[target]\nproject_id = 111\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int64("project-id", 0, "")
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Target.ProjectID != 111 {
		t.Errorf("ProjectID = %d, want file value 111 preserved", cfg.Target.ProjectID)
	}
}

func TestWriteTemplateRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ticketbot.toml")
	if err := WriteTemplate(path); err != nil {
		t.Fatalf("WriteTemplate: %v", err)
	}
	if err := WriteTemplate(path); err == nil {
		t.Fatal("expected second WriteTemplate to fail on existing file")
	}
}

func TestTimeoutHelpers(t *testing.T) {
	cfg := Defaults()
	if got, want := cfg.Timeout().Seconds(), 4.0; got != want {
		t.Errorf("Timeout() = %v, want %v", got, want)
	}
	if got, want := cfg.DefaultSleep().Seconds(), 0.8; got != want {
		t.Errorf("DefaultSleep() = %v, want %v", got, want)
	}
	if got, want := cfg.BanCooldown().Seconds(), 30.0; got != want {
		t.Errorf("BanCooldown() = %v, want %v", got, want)
	}
}
