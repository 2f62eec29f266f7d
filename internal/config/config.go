package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/sitesum/internal/remote"
	"github.com/kalambet/sitesum/internal/workflow"
)

type Config struct {
	Remote   RemoteConfig
	Pipeline PipelineConfig
	Workflow WorkflowConfig
	Server   ServerConfig
	Log      LogConfig
}

type RemoteConfig struct {
	BaseURL string
	Token   string
	Timeout string
}

// PipelineConfig names the objects a run creates on the service and the
// prompt that turns one into the other.
type PipelineConfig struct {
	SourceObject  string
	SummaryObject string
	DataType      string
	Prompt        string
	Mode          string
}

type WorkflowConfig struct {
	PurgeOnSubmit bool
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

const (
	keychainService    = "sitesum"
	remoteTokenAccount = "remote_token"
	apiTokenAccount    = "api_token"
)

func defaults() Config {
	return Config{
		Remote: RemoteConfig{
			BaseURL: remote.DefaultBaseURL,
		},
		Pipeline: PipelineConfig{
			SourceObject:  workflow.DefaultSourceObject,
			SummaryObject: workflow.DefaultSummaryObject,
			DataType:      workflow.DefaultDataType,
			Prompt:        workflow.DefaultPrompt,
			Mode:          remote.CombineEvents,
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.sitesum.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/sitesum/config.json
// and secrets fall back to $XDG_DATA_HOME/sitesum/secrets.json.
//
// Environment variables (SITESUM_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Remote.Token == "" {
		if tok, err := kc.Get(keychainService, remoteTokenAccount); err == nil && tok != "" {
			cfg.Remote.Token = tok
		}
	}

	if cfg.Remote.Token == "" {
		msg := "missing required config: prompt service token. " +
			"Set it via environment variable SITESUM_REMOTE_TOKEN" +
			tokenHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise only fail once a run starts.
func (c Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("invalid config: remote.base_url is empty")
	}
	if _, err := c.RemoteTimeout(); err != nil {
		return err
	}
	if c.Pipeline.SourceObject == c.Pipeline.SummaryObject {
		return fmt.Errorf("invalid config: pipeline.source_object and pipeline.summary_object are both %q", c.Pipeline.SourceObject)
	}
	placeholder := "{" + c.Pipeline.SourceObject + "}"
	if !strings.Contains(c.Pipeline.Prompt, placeholder) {
		return fmt.Errorf("invalid config: pipeline.prompt must reference %s", placeholder)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	return nil
}

// RemoteTimeout parses remote.timeout. An empty value means no timeout.
func (c Config) RemoteTimeout() (time.Duration, error) {
	if c.Remote.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Remote.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid config: remote.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid config: remote.timeout %s is negative", d)
	}
	return d, nil
}
