// Copyright 2024-2026 Aiku AI

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"

	"github.com/unjoinable/whisperwire/pkg/relay"
)

func TestExampleConfigNotEmpty(t *testing.T) {
	t.Parallel()
	if ExampleConfig == "" {
		t.Error("ExampleConfig should not be empty (embedded from example-config.yaml)")
	}
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Relay.Mode != ModeBridge {
		t.Errorf("Relay.Mode: got %q, want %q", cfg.Relay.Mode, ModeBridge)
	}
	if cfg.Relay.MessageFormat != "**[{{.Username}}]** {{.Content}}" {
		t.Errorf("Relay.MessageFormat: got %q", cfg.Relay.MessageFormat)
	}
	if !cfg.Relay.DropBlank {
		t.Error("Relay.DropBlank should default to true")
	}
	if cfg.Admin.Addr != ":29320" {
		t.Errorf("Admin.Addr: got %q", cfg.Admin.Addr)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q", cfg.Logging.Level)
	}
	if cfg.Mattermost.Enabled || cfg.Matrix.Enabled {
		t.Error("platforms should be disabled by default")
	}
}

func TestParse_UserValuesOverrideDefaults(t *testing.T) {
	t.Parallel()
	input := `
relay:
    mode: link
    max_length: 500
mattermost:
    enabled: true
    server_url: http://mm.local:8065
    token: tok
    channel_id: chan1
`
	cfg, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Relay.Mode != ModeLink {
		t.Errorf("Relay.Mode: got %q", cfg.Relay.Mode)
	}
	if cfg.Relay.MaxLength != 500 {
		t.Errorf("Relay.MaxLength: got %d", cfg.Relay.MaxLength)
	}
	if !cfg.Relay.DropBlank {
		t.Error("unset Relay.DropBlank should keep its default")
	}
	if cfg.Mattermost.ServerURL != "http://mm.local:8065" || cfg.Mattermost.ChannelID != "chan1" {
		t.Errorf("Mattermost: got %+v", cfg.Mattermost)
	}
	if cfg.Matrix.HomeserverURL != "https://matrix.example.com" {
		t.Errorf("Matrix.HomeserverURL default lost: got %q", cfg.Matrix.HomeserverURL)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	t.Parallel()
	if _, err := Parse([]byte("relay: [unterminated")); err == nil {
		t.Error("Parse should fail on malformed YAML")
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("admin:\n    addr: \":9999\"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Admin.Addr != ":9999" {
		t.Errorf("Admin.Addr: got %q", cfg.Admin.Addr)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing): got %v, want ErrNotExist", err)
	}
}

func TestUpgradeConfig(t *testing.T) {
	t.Parallel()
	var baseNode yaml.Node
	if err := yaml.Unmarshal([]byte(ExampleConfig), &baseNode); err != nil {
		t.Fatalf("failed to parse base config: %v", err)
	}

	userCfg := `
relay:
    message_format: "{{.Source}} {{.Content}}"
mattermost:
    bot_prefix: "bridge_"
`
	var cfgNode yaml.Node
	if err := yaml.Unmarshal([]byte(userCfg), &cfgNode); err != nil {
		t.Fatalf("failed to parse user config: %v", err)
	}

	helper := up.NewHelper(&baseNode, &cfgNode)
	upgradeConfig(helper)

	if val, ok := helper.Get(up.Str, "relay", "message_format"); !ok || val != "{{.Source}} {{.Content}}" {
		t.Errorf("relay.message_format after upgrade: got %q, ok=%v", val, ok)
	}
	if val, ok := helper.Get(up.Str, "mattermost", "bot_prefix"); !ok || val != "bridge_" {
		t.Errorf("mattermost.bot_prefix after upgrade: got %q, ok=%v", val, ok)
	}
}

// Not parallel: mutates the process environment.
func TestApplyEnv(t *testing.T) {
	t.Setenv("WHISPERWIRE_MATTERMOST_TOKEN", "env-token")
	t.Setenv("WHISPERWIRE_RELAY_MAX_LENGTH", "42")
	t.Setenv("WHISPERWIRE_MATRIX_ENABLED", "true")

	cfg, err := Parse([]byte("mattermost:\n    token: file-token\n    channel_id: from-file\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Mattermost.Token != "env-token" {
		t.Errorf("Mattermost.Token: got %q, want env override", cfg.Mattermost.Token)
	}
	if cfg.Mattermost.ChannelID != "from-file" {
		t.Errorf("Mattermost.ChannelID: got %q, unset variable should not override", cfg.Mattermost.ChannelID)
	}
	if cfg.Relay.MaxLength != 42 {
		t.Errorf("Relay.MaxLength: got %d", cfg.Relay.MaxLength)
	}
	if !cfg.Matrix.Enabled {
		t.Error("Matrix.Enabled should be set from the environment")
	}
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	t.Setenv("WHISPERWIRE_RELAY_MAX_LENGTH", "lots")
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.ApplyEnv(); err == nil {
		t.Error("ApplyEnv should fail on a non-numeric integer")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	validMM := MattermostConfig{Enabled: true, ServerURL: "http://mm", Token: "t", ChannelID: "c"}
	validMX := MatrixConfig{Enabled: true, HomeserverURL: "http://mx", UserID: "@bot:mx", AccessToken: "t", RoomID: "!r:mx"}

	tests := []struct {
		name       string
		cfg        Config
		wantErrors int
		wantText   string
	}{
		{
			name: "bridge with one platform",
			cfg:  Config{Relay: RelayConfig{Mode: ModeBridge}, Mattermost: validMM},
		},
		{
			name: "link with two platforms",
			cfg:  Config{Relay: RelayConfig{Mode: ModeLink}, Mattermost: validMM, Matrix: validMX},
		},
		{
			name:       "unknown mode",
			cfg:        Config{Relay: RelayConfig{Mode: "mesh"}},
			wantErrors: 1,
			wantText:   "relay.mode",
		},
		{
			name:       "link with one platform",
			cfg:        Config{Relay: RelayConfig{Mode: ModeLink}, Matrix: validMX},
			wantErrors: 1,
			wantText:   "exactly two",
		},
		{
			name:       "missing credentials",
			cfg:        Config{Relay: RelayConfig{Mode: ModeBridge}, Mattermost: MattermostConfig{Enabled: true, ServerURL: "http://mm"}},
			wantErrors: 2,
			wantText:   "mattermost.token is required",
		},
		{
			name:       "negative max length",
			cfg:        Config{Relay: RelayConfig{Mode: ModeBridge, MaxLength: -1}},
			wantErrors: 1,
			wantText:   "max_length",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErrors == 0 {
				if err != nil {
					t.Fatalf("Validate: unexpected error %v", err)
				}
				return
			}
			var merr *multierror.Error
			if !errors.As(err, &merr) {
				t.Fatalf("Validate: want *multierror.Error, got %v", err)
			}
			if len(merr.Errors) != tt.wantErrors {
				t.Errorf("Validate: got %d errors, want %d: %v", len(merr.Errors), tt.wantErrors, err)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Error("Validate errors should wrap ErrInvalid")
			}
			if !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("Validate: %q does not mention %q", err, tt.wantText)
			}
		})
	}
}

func TestWarnings(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		mode      string
		maxLength int
		want      int
	}{
		{"bridge with max length", ModeBridge, 100, 0},
		{"link without max length", ModeLink, 0, 0},
		{"link with max length", ModeLink, 100, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{Relay: RelayConfig{Mode: tt.mode, MaxLength: tt.maxLength}}
			got := cfg.Warnings()
			if len(got) != tt.want {
				t.Fatalf("Warnings: got %q, want %d entries", got, tt.want)
			}
			if tt.want > 0 && !strings.Contains(got[0], "relay.max_length") {
				t.Errorf("warning should name the setting: %q", got[0])
			}
		})
	}
}

func TestPostProcess(t *testing.T) {
	t.Parallel()
	cfg := &Config{Relay: RelayConfig{MessageFormat: "{{.Bad"}}
	if err := cfg.PostProcess(); err == nil {
		t.Error("PostProcess should return error for invalid template")
	}
}

func TestFormatUsername(t *testing.T) {
	t.Parallel()
	msg := relay.NewMessage("matrix-!room", "alice", "hi")
	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"unset", "", ""},
		{"with username", "{{.Username}} (matrix)", "alice (matrix)"},
		{"unknown field", "{{.Nope}}", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{Mattermost: MattermostConfig{UsernameFormat: tt.tmpl}}
			if err := cfg.PostProcess(); err != nil {
				t.Fatalf("PostProcess: %v", err)
			}
			if got := cfg.FormatUsername(msg); got != tt.want {
				t.Errorf("FormatUsername: got %q, want %q", got, tt.want)
			}
		})
	}

	bad := &Config{Mattermost: MattermostConfig{UsernameFormat: "{{.Bad"}}
	if err := bad.PostProcess(); err == nil || !strings.Contains(err.Error(), "username_format") {
		t.Errorf("PostProcess with bad username_format: got %v", err)
	}
}

func TestFormatMessage(t *testing.T) {
	t.Parallel()
	msg := relay.NewMessage("chat-a", "bob", "hi <there>")
	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"default format", "**[{{.Username}}]** {{.Content}}", "**[bob]** hi <there>"},
		{"with source", "[{{.Source}}] {{.Username}}: {{.Content}}", "[chat-a] bob: hi <there>"},
		{"content only", "{{.Content}}", "hi <there>"},
		{"unknown field falls back", "{{.Nope}}", "hi <there>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{Relay: RelayConfig{MessageFormat: tt.tmpl}}
			if err := cfg.PostProcess(); err != nil {
				t.Fatalf("PostProcess: %v", err)
			}
			if got := cfg.FormatMessage(msg); got != tt.want {
				t.Errorf("FormatMessage: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatMessage_NilTemplate(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	if got := cfg.FormatMessage(relay.NewMessage("s", "u", "raw")); got != "raw" {
		t.Errorf("nil template should fall back to content: got %q", got)
	}
}
