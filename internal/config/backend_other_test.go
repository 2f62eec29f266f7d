//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitesum", "config.json")

	b := newFileBackend(path)
	if err := b.SetString("remote.base_url", "http://localhost:9000"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := b.SetInt("server.port", 4200); err != nil {
		t.Fatalf("SetInt: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	reloaded := newFileBackend(path)
	if v, ok, _ := reloaded.GetString("remote.base_url"); !ok || v != "http://localhost:9000" {
		t.Errorf("remote.base_url = %q, %v", v, ok)
	}
	if v, ok, err := reloaded.GetInt("server.port"); !ok || err != nil || v != 4200 {
		t.Errorf("server.port = %d, %v, %v", v, ok, err)
	}

	if err := reloaded.Delete("server.port"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := newFileBackend(path).GetInt("server.port"); ok {
		t.Error("server.port still present after Delete")
	}
}

func TestFileBackend_BadInt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server.port": 41.5}`), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, _, err := newFileBackend(path).GetInt("server.port"); err == nil {
		t.Error("GetInt(41.5) succeeded, want error")
	}
}

func TestFileBackend_Bool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"workflow.purge_on_submit": "true", "bad": 3}`), 0o600); err != nil {
		t.Fatal(err)
	}

	b := newFileBackend(path)
	if v, ok, err := b.GetBool("workflow.purge_on_submit"); !ok || err != nil || !v {
		t.Errorf("string bool = %v, %v, %v; want true", v, ok, err)
	}
	if _, _, err := b.GetBool("bad"); err == nil {
		t.Error("GetBool(3) succeeded, want error")
	}

	if err := b.SetBool("workflow.purge_on_submit", false); err != nil {
		t.Fatalf("SetBool: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"workflow.purge_on_submit": false`) {
		t.Errorf("file = %s, want a JSON bool", data)
	}
}

func TestSecretsFile_RoundTrip(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if _, err := keychainGet(keychainService, remoteTokenAccount); err == nil {
		t.Error("get before set succeeded, want error")
	}
	if err := keychainSet(keychainService, remoteTokenAccount, "s3cret"); err != nil {
		t.Fatalf("keychainSet: %v", err)
	}
	if err := keychainSet(keychainService, apiTokenAccount, "other"); err != nil {
		t.Fatalf("keychainSet: %v", err)
	}

	got, err := keychainGet(keychainService, remoteTokenAccount)
	if err != nil || string(got) != "s3cret" {
		t.Errorf("remote token = %q, %v", got, err)
	}
}

func TestSecretsFile_CorruptNotOverwritten(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	p := secretsFilePath()
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := keychainSet(keychainService, apiTokenAccount, "x"); err == nil {
		t.Fatal("keychainSet over a corrupt file succeeded, want error")
	}
	data, _ := os.ReadFile(p)
	if string(data) != "{not json" {
		t.Errorf("secrets file was rewritten: %s", data)
	}
}
