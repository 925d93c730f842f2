// Copyright 2024-2026 Aiku AI

package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"

	"github.com/unjoinable/whisperwire/pkg/relay"
)

//go:embed example-config.yaml
var ExampleConfig string

// EnvPrefix is prepended to every environment override, e.g.
// WHISPERWIRE_MATTERMOST_TOKEN.
const EnvPrefix = "whisperwire"

const (
	ModeBridge = "bridge"
	ModeLink   = "link"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the complete relay configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging" envconfig:"logging"`
	Admin      AdminConfig      `yaml:"admin" envconfig:"admin"`
	Relay      RelayConfig      `yaml:"relay" envconfig:"relay"`
	Mattermost MattermostConfig `yaml:"mattermost" envconfig:"mattermost"`
	Matrix     MatrixConfig     `yaml:"matrix" envconfig:"matrix"`

	messageTemplate  *template.Template `yaml:"-"`
	usernameTemplate *template.Template `yaml:"-"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"level"`
	Pretty bool   `yaml:"pretty" envconfig:"pretty"`
	// File receives a copy of every log line when set.
	File string `yaml:"file" envconfig:"file"`
}

type AdminConfig struct {
	// Addr is the admin API listen address. Empty disables the API.
	Addr string `yaml:"addr" envconfig:"addr"`
}

type RelayConfig struct {
	Mode          string `yaml:"mode" envconfig:"mode"`
	MessageFormat string `yaml:"message_format" envconfig:"message_format"`
	DropBlank     bool   `yaml:"drop_blank" envconfig:"drop_blank"`
	MaxLength     int    `yaml:"max_length" envconfig:"max_length"`
	IgnorePrefix  string `yaml:"ignore_prefix" envconfig:"ignore_prefix"`
}

type MattermostConfig struct {
	Enabled   bool   `yaml:"enabled" envconfig:"enabled"`
	ServerURL string `yaml:"server_url" envconfig:"server_url"`
	Token     string `yaml:"token" envconfig:"token"`
	ChannelID string `yaml:"channel_id" envconfig:"channel_id"`
	// BotPrefix is a username prefix for echo prevention. Posts from users
	// starting with it are never relayed.
	BotPrefix string `yaml:"bot_prefix" envconfig:"bot_prefix"`
	// UsernameFormat is a template for the display name shown on relayed
	// posts. Empty keeps the bot's own name.
	UsernameFormat string `yaml:"username_format" envconfig:"username_format"`
	IconURL        string `yaml:"icon_url" envconfig:"icon_url"`
}

type MatrixConfig struct {
	Enabled       bool   `yaml:"enabled" envconfig:"enabled"`
	HomeserverURL string `yaml:"homeserver_url" envconfig:"homeserver_url"`
	UserID        string `yaml:"user_id" envconfig:"user_id"`
	AccessToken   string `yaml:"access_token" envconfig:"access_token"`
	RoomID        string `yaml:"room_id" envconfig:"room_id"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// Load reads the YAML file at path and layers it onto the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse layers a user YAML document onto ExampleConfig. Keys missing from
// data keep their default values.
func Parse(data []byte) (*Config, error) {
	var base, user yaml.Node
	if err := yaml.Unmarshal([]byte(ExampleConfig), &base); err != nil {
		return nil, fmt.Errorf("failed to parse base config: %w", err)
	}
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if user.Kind != 0 {
		upgradeConfig(up.NewHelper(&base, &user))
	}

	var cfg Config
	if err := base.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "logging", "level")
	helper.Copy(up.Bool, "logging", "pretty")
	helper.Copy(up.Str, "logging", "file")

	helper.Copy(up.Str, "admin", "addr")

	helper.Copy(up.Str, "relay", "mode")
	helper.Copy(up.Str, "relay", "message_format")
	helper.Copy(up.Bool, "relay", "drop_blank")
	helper.Copy(up.Int, "relay", "max_length")
	helper.Copy(up.Str, "relay", "ignore_prefix")

	helper.Copy(up.Bool, "mattermost", "enabled")
	helper.Copy(up.Str, "mattermost", "server_url")
	helper.Copy(up.Str, "mattermost", "token")
	helper.Copy(up.Str, "mattermost", "channel_id")
	helper.Copy(up.Str, "mattermost", "bot_prefix")
	helper.Copy(up.Str, "mattermost", "username_format")
	helper.Copy(up.Str, "mattermost", "icon_url")

	helper.Copy(up.Bool, "matrix", "enabled")
	helper.Copy(up.Str, "matrix", "homeserver_url")
	helper.Copy(up.Str, "matrix", "user_id")
	helper.Copy(up.Str, "matrix", "access_token")
	helper.Copy(up.Str, "matrix", "room_id")
}

// ApplyEnv overrides fields from WHISPERWIRE_* environment variables.
// Variables that are not set leave the loaded value untouched.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// PostProcess compiles the message template. It must run before
// FormatMessage.
func (c *Config) PostProcess() error {
	var err error
	c.messageTemplate, err = template.New("message").Parse(c.Relay.MessageFormat)
	if err != nil {
		return fmt.Errorf("invalid message_format: %w", err)
	}
	c.usernameTemplate = nil
	if c.Mattermost.UsernameFormat != "" {
		c.usernameTemplate, err = template.New("username").Parse(c.Mattermost.UsernameFormat)
		if err != nil {
			return fmt.Errorf("invalid mattermost.username_format: %w", err)
		}
	}
	return nil
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	invalid := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Relay.Mode {
	case ModeBridge, ModeLink:
	default:
		invalid("relay.mode must be %q or %q, got %q", ModeBridge, ModeLink, c.Relay.Mode)
	}
	if c.Relay.MaxLength < 0 {
		invalid("relay.max_length must not be negative")
	}

	enabled := 0
	if c.Mattermost.Enabled {
		enabled++
		required(invalid, "mattermost", [][2]string{
			{"server_url", c.Mattermost.ServerURL},
			{"token", c.Mattermost.Token},
			{"channel_id", c.Mattermost.ChannelID},
		})
	}
	if c.Matrix.Enabled {
		enabled++
		required(invalid, "matrix", [][2]string{
			{"homeserver_url", c.Matrix.HomeserverURL},
			{"user_id", c.Matrix.UserID},
			{"access_token", c.Matrix.AccessToken},
			{"room_id", c.Matrix.RoomID},
		})
	}
	if c.Relay.Mode == ModeLink && enabled != 2 {
		invalid("link mode needs exactly two enabled platforms, got %d", enabled)
	}
	return result.ErrorOrNil()
}

// Warnings lists settings that are valid but have no effect in the chosen
// mode.
func (c *Config) Warnings() []string {
	var out []string
	if c.Relay.Mode == ModeLink && c.Relay.MaxLength > 0 {
		out = append(out, "relay.max_length is ignored in link mode; links relay content unchanged")
	}
	return out
}

func required(invalid func(string, ...any), section string, fields [][2]string) {
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			invalid("%s.%s is required when %s is enabled", section, f[0], section)
		}
	}
}

// FormatMessage renders msg with the configured message_format. It falls back
// to the bare content when the template is missing or fails.
func (c *Config) FormatMessage(msg relay.Message) string {
	if c.messageTemplate == nil {
		return msg.Content
	}
	var buf bytes.Buffer
	if err := c.messageTemplate.Execute(&buf, msg); err != nil {
		return msg.Content
	}
	return buf.String()
}

// FormatUsername renders msg with mattermost.username_format. It returns ""
// when no format is set or rendering fails.
func (c *Config) FormatUsername(msg relay.Message) string {
	if c.usernameTemplate == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := c.usernameTemplate.Execute(&buf, msg); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}
