package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	account string // keychain account for secrets
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "remote.base_url", typ: kString, env: "SITESUM_REMOTE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Remote.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.BaseURL },
	},
	{
		key: "remote.token", typ: kString, env: "SITESUM_REMOTE_TOKEN",
		secret: true, account: remoteTokenAccount,
		apply:   func(cfg *Config, v any) { cfg.Remote.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.Token },
	},
	{
		key: "remote.timeout", typ: kString, env: "SITESUM_REMOTE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Remote.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.Timeout },
	},
	{
		key: "pipeline.source_object", typ: kString, env: "SITESUM_PIPELINE_SOURCE_OBJECT",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.SourceObject = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.SourceObject },
	},
	{
		key: "pipeline.summary_object", typ: kString, env: "SITESUM_PIPELINE_SUMMARY_OBJECT",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.SummaryObject = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.SummaryObject },
	},
	{
		key: "pipeline.data_type", typ: kString, env: "SITESUM_PIPELINE_DATA_TYPE",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.DataType = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.DataType },
	},
	{
		key: "pipeline.prompt", typ: kString, env: "SITESUM_PIPELINE_PROMPT",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Prompt = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.Prompt },
	},
	{
		key: "pipeline.mode", typ: kString, env: "SITESUM_PIPELINE_MODE",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.Mode },
	},
	{
		key: "workflow.purge_on_submit", typ: kBool, env: "SITESUM_WORKFLOW_PURGE_ON_SUBMIT",
		apply:   func(cfg *Config, v any) { cfg.Workflow.PurgeOnSubmit = v.(bool) },
		extract: func(cfg Config) any { return cfg.Workflow.PurgeOnSubmit },
	},
	{
		key: "server.port", typ: kInt, env: "SITESUM_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "SITESUM_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetBool(s.key)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] could not read bool config key %s: %v. Using default value.\n", s.key, err)
				continue
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
