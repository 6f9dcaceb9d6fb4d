package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/vzahanych/xmlstore/pkg/logger"
	"github.com/vzahanych/xmlstore/pkg/otel"
	"github.com/vzahanych/xmlstore/pkg/store"
)

// EnvPrefix prefixes every environment override, e.g. XMLSTORE_STORE_INDENT.
const EnvPrefix = "XMLSTORE"

// Settings is the complete configuration of the xmlstore tool.
type Settings struct {
	Store     store.Config  `yaml:"store"`
	Logger    logger.Config `yaml:"logger"`
	Telemetry otel.Config   `yaml:"telemetry"`
}

// DefaultSettings returns the defaults of every section.
func DefaultSettings() *Settings {
	return &Settings{
		Store:     *store.DefaultConfig(),
		Logger:    *logger.DefaultConfig(),
		Telemetry: *otel.DefaultConfig(),
	}
}

// Validate checks the sections that define validation rules.
func (s *Settings) Validate() error {
	return s.Store.Validate()
}

// Load reads Settings from defaults, the configuration file described by
// opts and XMLSTORE_ environment variables, in increasing precedence. It
// also returns the file that was read, "" if none.
func Load(ctx context.Context, opts Options) (*Settings, string, error) {
	defaults := DefaultSettings()

	keys, err := defaultKeys(defaults)
	if err != nil {
		return nil, "", err
	}
	for k, v := range opts.Defaults {
		keys[k] = v
	}
	opts.Defaults = keys
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = EnvPrefix
	}
	opts.AutomaticEnv = true
	if opts.ConfigFile == "" && opts.Name == "" {
		opts.Name = "xmlstore"
	}

	settings, loader, err := LoadNew(ctx, opts, defaults)
	if err != nil {
		return nil, "", err
	}
	if err := settings.Validate(); err != nil {
		return nil, "", err
	}
	return settings, loader.FileUsed(), nil
}

// defaultKeys flattens s into dotted viper keys.
func defaultKeys(s *Settings) (map[string]any, error) {
	var nested map[string]any
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "yaml", Result: &nested})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("encode default settings: %w", err)
	}

	keys := make(map[string]any)
	flatten("", nested, keys)
	return keys, nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if m, ok := v.(map[string]any); ok {
			flatten(key, m, out)
			continue
		}
		out[key] = v
	}
}
