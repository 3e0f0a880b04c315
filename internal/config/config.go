package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the on-disk nexus configuration.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
	Notify   NotifyConfig   `toml:"notify"`
	Board    BoardConfig    `toml:"board"`
	Keys     KeyConfig      `toml:"keys"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	// DevFile enables a logfmt sink next to the database for local debugging.
	DevFile bool `toml:"dev_file"`
}

// NotifyConfig enables the redis notifier when RedisAddr is set.
type NotifyConfig struct {
	RedisAddr  string `toml:"redis_addr"`
	Channel    string `toml:"channel"`
	InboxLimit int    `toml:"inbox_limit"`
}

// BoardConfig selects the server and identity the terminal board runs as.
// An empty ServerURL drives the local database directly.
type BoardConfig struct {
	ServerURL string `toml:"server_url"`
	ProjectID string `toml:"project_id"`
	ActorID   string `toml:"actor_id"`
	ActorRole string `toml:"actor_role"`
}

type KeyConfig struct {
	MoveTaskLeft  string `toml:"move_task_left"`
	MoveTaskRight string `toml:"move_task_right"`
	BlockTask     string `toml:"block_task"`
	EditReason    string `toml:"edit_reason"`
	CopyID        string `toml:"copy_id"`
}

var validLevels = []string{"debug", "info", "warn", "error"}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:5437",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Notify: NotifyConfig{
			Channel:    "nexus:notifications",
			InboxLimit: 100,
		},
		Board: BoardConfig{
			ActorRole: "member",
		},
		Keys: KeyConfig{
			MoveTaskLeft:  "[",
			MoveTaskRight: "]",
			BlockTask:     "b",
			EditReason:    "e",
			CopyID:        "y",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}
	if strings.TrimSpace(c.Server.HTTPBind) == "" {
		return errors.New("server.http_bind is required")
	}
	for name, endpoint := range map[string]string{
		"server.api_endpoint": c.Server.APIEndpoint,
		"server.mcp_endpoint": c.Server.MCPEndpoint,
	} {
		if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
			return fmt.Errorf("%s must start with /: %q", name, endpoint)
		}
	}

	level := strings.TrimSpace(strings.ToLower(c.Logging.Level))
	if level != "" && !containsString(validLevels, level) {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	if c.Notify.InboxLimit < 0 {
		return errors.New("notify.inbox_limit must be >= 0")
	}
	if c.Notify.RedisAddr != "" && strings.TrimSpace(c.Notify.Channel) == "" {
		return errors.New("notify.channel is required when notify.redis_addr is set")
	}

	if raw := strings.TrimSpace(c.Board.ServerURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid board.server_url: %q", c.Board.ServerURL)
		}
	}
	switch strings.TrimSpace(strings.ToLower(c.Board.ActorRole)) {
	case "", "member", "lead":
	default:
		return fmt.Errorf("invalid board.actor_role: %q", c.Board.ActorRole)
	}

	return nil
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
