package secretstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.enc")

	identity := Identity{
		Cookie: map[string]string{"bili_jct": "abc123", "SESSDATA": "xyz"},
		Header: map[string]string{"User-Agent": "test-agent"},
	}

	if err := Save(path, "correct horse battery staple", identity); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got.Cookie["bili_jct"] != "abc123" {
		t.Errorf("bili_jct = %q, want %q", got.Cookie["bili_jct"], "abc123")
	}
	if got.Header["User-Agent"] != "test-agent" {
		t.Errorf("User-Agent = %q, want %q", got.Header["User-Agent"], "test-agent")
	}
}

func TestLoadWrongPassphraseFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.enc")

	if err := Save(path, "right-passphrase", Identity{Cookie: map[string]string{"a": "b"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := Load(path, "wrong-passphrase"); err == nil {
		t.Fatal("expected Load with wrong passphrase to fail")
	}
}

func TestLoadTruncatedFileFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.enc")

	if err := Save(path, "pw", Identity{Cookie: map[string]string{"a": "b"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if err := os.WriteFile(path, raw[:len(raw)-5], 0o600); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	if _, err := Load(path, "pw"); err == nil {
		t.Fatal("expected Load on truncated file to fail")
	}
}
