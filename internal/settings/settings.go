// Package settings persists the user settings that survive restarts: the
// service base URL, the download folder and the proxy block.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	homedir "github.com/mitchellh/go-homedir"

	"github.com/eurodatacube/edc-qgis-plugin/internal/core/httpclient"
)

const (
	dirName  = ".edc-ogc"
	fileName = "settings.toml"
)

type Proxy struct {
	Enabled  bool   `mapstructure:"enabled" toml:"enabled"`
	Host     string `mapstructure:"host" toml:"host,omitempty"`
	Port     string `mapstructure:"port" toml:"port,omitempty"`
	User     string `mapstructure:"user" toml:"user,omitempty"`
	Password string `mapstructure:"password" toml:"password,omitempty"`
}

// Config returns the outbound proxy configuration.
func (p Proxy) Config() httpclient.ProxyConfig {
	return httpclient.ProxyConfig{
		Enabled:  p.Enabled,
		Host:     p.Host,
		Port:     p.Port,
		User:     p.User,
		Password: p.Password,
	}
}

type Settings struct {
	ServiceURL     string `mapstructure:"service_url" toml:"service_url"`
	DownloadFolder string `mapstructure:"download_folder" toml:"download_folder"`
	Proxy          Proxy  `mapstructure:"proxy" toml:"proxy"`
}

// Persister is what a session needs to remember settings.
type Persister interface {
	Load() (Settings, error)
	Save(Settings) error
}

// Store reads and writes one toml file.
type Store struct {
	Path string
}

// Dir returns ~/.edc-ogc.
func Dir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, dirName), nil
}

// StoreIn returns the store of the settings file in dir.
func StoreIn(dir string) *Store {
	return &Store{Path: filepath.Join(dir, fileName)}
}

// Load returns zero settings when the file does not exist yet.
func (s *Store) Load() (Settings, error) {
	var out Settings
	if _, err := toml.DecodeFile(s.Path, &out); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Settings{}, nil
		}
		return Settings{}, fmt.Errorf("settings: parse %s: %w", s.Path, err)
	}
	return out, nil
}

func (s *Store) Save(v Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("settings: create dir: %w", err)
	}
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("settings: write %s: %w", s.Path, err)
	}
	if err := toml.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return fmt.Errorf("settings: encode: %w", err)
	}
	return f.Close()
}

// Memory keeps settings in memory, for tests.
type Memory struct {
	Value Settings
	Saves int
}

func (m *Memory) Load() (Settings, error) { return m.Value, nil }

func (m *Memory) Save(v Settings) error {
	m.Value = v
	m.Saves++
	return nil
}
