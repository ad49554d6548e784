package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStore_LoadMissingFileIsEmpty(t *testing.T) {
	s := &Store{Path: filepath.Join(t.TempDir(), "nope", "settings.toml")}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Settings{}, got); diff != "" {
		t.Fatalf("unexpected settings (-want +got):\n%s", diff)
	}
}

func TestStore_SaveThenLoad(t *testing.T) {
	s := &Store{Path: filepath.Join(t.TempDir(), ".edc-ogc", "settings.toml")}
	want := Settings{
		ServiceURL:     "https://services.sentinel-hub.com/ogc/",
		DownloadFolder: "/tmp/edc",
		Proxy:          Proxy{Enabled: true, Host: "proxy.local", Port: "3128", User: "u", Password: "p"},
	}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(s.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), `service_url = "https://services.sentinel-hub.com/ogc/"`) {
		t.Fatalf("unexpected file:\n%s", raw)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestStore_LoadRejectsGarbage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(p, []byte("service_url = ["), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := (&Store{Path: p}).Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestProxy_Config(t *testing.T) {
	p := Proxy{Enabled: true, Host: "h", Port: "8080"}
	if u := p.Config().URL(); u == nil || u.Host != "h:8080" {
		t.Fatalf("proxy url=%v", u)
	}
}

func TestMemory_CountsSaves(t *testing.T) {
	m := &Memory{}
	_ = m.Save(Settings{ServiceURL: "a"})
	_ = m.Save(Settings{ServiceURL: "b"})
	got, _ := m.Load()
	if m.Saves != 2 || got.ServiceURL != "b" {
		t.Fatalf("saves=%d got=%+v", m.Saves, got)
	}
}
