// Package config loads the nodectl server configuration and the component
// tree it boots with.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/nodectl/internal/protocol/session"
	"github.com/danmuck/nodectl/internal/tree"
)

// ComponentSpec describes one component created at boot. An empty Type makes
// a plain child node.
type ComponentSpec struct {
	Parent     string         `toml:"parent"`
	Name       string         `toml:"name"`
	Type       string         `toml:"type"`
	Properties map[string]any `toml:"properties"`
}

// LinkSpec describes one link created at boot, after every component.
type LinkSpec struct {
	Parent string `toml:"parent"`
	Name   string `toml:"name"`
	Target string `toml:"target"`
}

// ServerConfig is the resolved nodectl server configuration.
type ServerConfig struct {
	RootName        string
	ListenAddr      string
	AdminListenAddr string
	CorsOrigins     []string
	LogLevel        string
	MaxPayloadBytes uint32
	Session         session.Config
	Components      []ComponentSpec
	Links           []LinkSpec
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		RootName:        "root",
		ListenAddr:      "127.0.0.1:9400",
		AdminListenAddr: "",
		CorsOrigins:     []string{"http://localhost:3000"},
		MaxPayloadBytes: 4 << 20,
		Session:         session.DefaultConfig(),
	}
}

type fileConfig struct {
	RootName        string          `toml:"root_name"`
	ListenAddr      string          `toml:"listen_addr"`
	AdminListenAddr string          `toml:"admin_listen_addr"`
	CorsOrigins     []string        `toml:"cors_origins"`
	LogLevel        string          `toml:"log_level"`
	MaxPayloadBytes int64           `toml:"max_payload_bytes"`
	ReadTimeout     string          `toml:"read_timeout"`
	WriteTimeout    string          `toml:"write_timeout"`
	SendQueue       int             `toml:"send_queue"`
	Components      []ComponentSpec `toml:"components"`
	Links           []LinkSpec      `toml:"links"`
}

// Load decodes path over DefaultServerConfig and validates the result.
func Load(path string) (ServerConfig, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("load nodectl config: %w", err)
	}
	cfg, err := apply(DefaultServerConfig(), raw, meta)
	if err != nil {
		return ServerConfig{}, err
	}
	if err := Validate(cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("config %s invalid: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load for an in-memory document.
func Parse(doc string) (ServerConfig, error) {
	var raw fileConfig
	meta, err := toml.Decode(doc, &raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("parse nodectl config: %w", err)
	}
	cfg, err := apply(DefaultServerConfig(), raw, meta)
	if err != nil {
		return ServerConfig{}, err
	}
	if err := Validate(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func apply(cfg ServerConfig, raw fileConfig, meta toml.MetaData) (ServerConfig, error) {
	if meta.IsDefined("root_name") {
		cfg.RootName = strings.TrimSpace(raw.RootName)
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("max_payload_bytes") {
		if raw.MaxPayloadBytes <= 0 || raw.MaxPayloadBytes > 1<<32-1 {
			return ServerConfig{}, fmt.Errorf("max_payload_bytes out of range: %d", raw.MaxPayloadBytes)
		}
		cfg.MaxPayloadBytes = uint32(raw.MaxPayloadBytes)
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return ServerConfig{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.Session.ReadTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return ServerConfig{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.Session.WriteTimeout = d
	}
	if meta.IsDefined("send_queue") {
		cfg.Session.SendQueue = raw.SendQueue
	}
	if meta.IsDefined("components") {
		cfg.Components = raw.Components
	}
	if meta.IsDefined("links") {
		cfg.Links = raw.Links
	}
	return cfg, nil
}

// Validate checks addresses and that every boot entry names valid paths.
func Validate(cfg ServerConfig) error {
	if err := tree.ValidName(cfg.RootName); err != nil {
		return fmt.Errorf("root_name: %w", err)
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if cfg.AdminListenAddr != "" && cfg.AdminListenAddr == cfg.ListenAddr {
		return fmt.Errorf("admin_listen_addr must differ from listen_addr")
	}
	if cfg.Session.SendQueue <= 0 {
		return fmt.Errorf("send_queue must be positive")
	}
	for i, c := range cfg.Components {
		if err := validateEntry(c.Parent, c.Name); err != nil {
			return fmt.Errorf("components[%d] invalid: %w", i, err)
		}
		if _, err := Properties(c.Properties); err != nil {
			return fmt.Errorf("components[%d] invalid: %w", i, err)
		}
	}
	for i, l := range cfg.Links {
		if err := validateEntry(l.Parent, l.Name); err != nil {
			return fmt.Errorf("links[%d] invalid: %w", i, err)
		}
		if _, err := tree.CleanPath(l.Target); err != nil {
			return fmt.Errorf("links[%d] invalid target: %w", i, err)
		}
	}
	return nil
}

func validateEntry(parent, name string) error {
	if err := tree.ValidName(name); err != nil {
		return err
	}
	if parent == "" {
		return nil
	}
	_, err := tree.CleanPath(parent)
	return err
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
