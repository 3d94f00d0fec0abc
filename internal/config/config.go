package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.huddle/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
}

// Profile is the per-profile profile.toml: who the local user is and how the
// daemon reaches the event stream.
type Profile struct {
	User      User      `toml:"user"`
	Transport Transport `toml:"transport"`
	Store     Store     `toml:"store"`
	Media     Media     `toml:"media"`
	Typing    Typing    `toml:"typing"`
	Log       Log       `toml:"log"`
}

// User identifies the local user whose device holds the conversation cache.
type User struct {
	ID     string `toml:"id"`
	Name   string `toml:"name"`
	Avatar string `toml:"avatar"`
	// PeerHandle is the call-routing handle announced with presence.
	PeerHandle string  `toml:"peer_handle"`
	Latitude   float64 `toml:"latitude"`
	Longitude  float64 `toml:"longitude"`
}

type Transport struct {
	URL               string   `toml:"url"`
	Token             string   `toml:"token"`
	ReconnectBase     Duration `toml:"reconnect_base"`
	ReconnectMax      Duration `toml:"reconnect_max"`
	MaxReconnects     int      `toml:"max_reconnects"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
}

type Store struct {
	WriteQueue int `toml:"write_queue"`
}

// Media selects the media backend. "synthetic" produces in-process streams,
// "none" makes every acquisition fail so inbound calls are answered unavailable.
type Media struct {
	Mode          string `toml:"mode"`
	RecordingsDir string `toml:"recordings_dir"`
}

type Typing struct {
	StopDelay Duration `toml:"stop_delay"`
}

type Log struct {
	Level string `toml:"level"`
}

// Duration decodes TOML strings such as "800ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	return writeTOML(path, cfg)
}

// LoadProfile reads a profile file and fills unset fields with defaults.
// A missing file yields the defaults.
func LoadProfile(path string) (*Profile, error) {
	var p Profile
	if _, err := toml.DecodeFile(path, &p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	p.applyDefaults()
	return &p, nil
}

// SaveProfile writes a profile file with 0600 permissions.
func SaveProfile(path string, p *Profile) error {
	return writeTOML(path, p)
}

func (p *Profile) applyDefaults() {
	if p.Transport.ReconnectBase.Duration == 0 {
		p.Transport.ReconnectBase.Duration = time.Second
	}
	if p.Transport.ReconnectMax.Duration == 0 {
		p.Transport.ReconnectMax.Duration = 30 * time.Second
	}
	if p.Transport.MaxReconnects == 0 {
		p.Transport.MaxReconnects = 10
	}
	if p.Transport.HeartbeatInterval.Duration == 0 {
		p.Transport.HeartbeatInterval.Duration = 25 * time.Second
	}
	if p.Store.WriteQueue <= 0 {
		p.Store.WriteQueue = 256
	}
	if p.Media.Mode == "" {
		p.Media.Mode = "synthetic"
	}
	if p.Typing.StopDelay.Duration == 0 {
		p.Typing.StopDelay.Duration = 800 * time.Millisecond
	}
	if p.Log.Level == "" {
		p.Log.Level = "info"
	}
	if p.User.PeerHandle == "" {
		p.User.PeerHandle = p.User.ID
	}
}

func writeTOML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
