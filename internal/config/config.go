// Package config loads the server configuration from YAML or TOML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/nslaift/nslaift/internal/core/observability/log"
	"github.com/nslaift/nslaift/internal/core/protocol"
	"github.com/nslaift/nslaift/internal/core/transform"
	"github.com/nslaift/nslaift/internal/imageout"
	"github.com/nslaift/nslaift/internal/server"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported config format")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// Duration is a time.Duration written as "1.5s" or "200ms" in files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Log     log.Config    `yaml:"log" toml:"log"`
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Scene   SceneConfig   `yaml:"scene" toml:"scene"`
	Output  OutputConfig  `yaml:"output" toml:"output"`
	Backend BackendConfig `yaml:"backend" toml:"backend"`
	Script  ScriptConfig  `yaml:"script" toml:"script"`
}

type ServerConfig struct {
	TCPAddr       string   `yaml:"tcp_addr" toml:"tcp_addr"`
	WebSocketAddr string   `yaml:"websocket_addr" toml:"websocket_addr"`
	WebSocketPath string   `yaml:"websocket_path" toml:"websocket_path"`
	QUICAddr      string   `yaml:"quic_addr" toml:"quic_addr"`
	MaxClients    int      `yaml:"max_clients" toml:"max_clients"`
	MaxLineSize   int      `yaml:"max_line_size" toml:"max_line_size"`
	IdleTimeout   Duration `yaml:"idle_timeout" toml:"idle_timeout"`
	TLSCertFile   string   `yaml:"tls_cert_file" toml:"tls_cert_file"`
	TLSKeyFile    string   `yaml:"tls_key_file" toml:"tls_key_file"`
}

type SceneConfig struct {
	// Reply is "status" or "ack".
	Reply string `yaml:"reply" toml:"reply"`
	// Background is an "r,g,b" triple.
	Background string `yaml:"background" toml:"background"`
}

type OutputConfig struct {
	// Dir receives the rendered images; empty discards frames.
	Dir    string `yaml:"dir" toml:"dir"`
	Format string `yaml:"format" toml:"format"`
}

type BackendConfig struct {
	Name    string `yaml:"name" toml:"name"`
	Workers int    `yaml:"workers" toml:"workers"`
}

type ScriptConfig struct {
	// Startup is a command file or .zy script run before serving.
	Startup string `yaml:"startup" toml:"startup"`
}

func DefaultConfig() Config {
	srv := server.DefaultServerConfig()
	return Config{
		Log: log.DefaultConfig(),
		Server: ServerConfig{
			TCPAddr:       srv.TCPAddr,
			WebSocketAddr: srv.WebSocketAddr,
			WebSocketPath: srv.WebSocketPath,
			QUICAddr:      srv.QUICAddr,
			MaxClients:    srv.MaxClients,
			MaxLineSize:   srv.MaxLineSize,
			IdleTimeout:   Duration(srv.IdleTimeout),
		},
		Scene: SceneConfig{
			Reply:      protocol.ReplyStatus.String(),
			Background: "0,0,0",
		},
		Output: OutputConfig{
			Dir:    "~/nslaift/renders",
			Format: string(imageout.FormatTIFF),
		},
		Backend: BackendConfig{
			Name: "soft",
		},
	}
}

// Load reads path on top of DefaultConfig. The decoder is chosen by the
// file extension: .yaml, .yml or .toml.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the format named by ext.
func Parse(data []byte, ext string) (Config, error) {
	cfg := DefaultConfig()
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("decode yaml: %w", err)
		}
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode toml: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err)
	}
	if _, err := protocol.ParseReplyMode(c.Scene.Reply); err != nil {
		return fmt.Errorf("%w: scene.reply: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Scene.BackgroundColor(); err != nil {
		return fmt.Errorf("%w: scene.background: %w", ErrInvalidConfig, err)
	}
	if _, err := imageout.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("%w: output.format: %w", ErrInvalidConfig, err)
	}
	if c.Backend.Name == "" {
		return fmt.Errorf("%w: backend.name is empty", ErrInvalidConfig)
	}
	if c.Backend.Workers < 0 {
		return fmt.Errorf("%w: backend.workers must not be negative", ErrInvalidConfig)
	}
	if err := c.Server.ServerConfig().Validate(); err != nil {
		return fmt.Errorf("%w: server: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ServerConfig converts the section into the server's own configuration.
func (c ServerConfig) ServerConfig() server.Config {
	return server.Config{
		TCPAddr:       c.TCPAddr,
		WebSocketAddr: c.WebSocketAddr,
		WebSocketPath: c.WebSocketPath,
		QUICAddr:      c.QUICAddr,
		MaxClients:    c.MaxClients,
		MaxLineSize:   c.MaxLineSize,
		IdleTimeout:   c.IdleTimeout.Std(),
		TLSCertFile:   c.TLSCertFile,
		TLSKeyFile:    c.TLSKeyFile,
	}
}

func (c SceneConfig) ReplyMode() (protocol.ReplyMode, error) {
	return protocol.ParseReplyMode(c.Reply)
}

func (c SceneConfig) BackgroundColor() (mgl64.Vec3, error) {
	if strings.TrimSpace(c.Background) == "" {
		return mgl64.Vec3{}, nil
	}
	return transform.ParseVec3(c.Background, transform.DefaultDelimiter)
}
