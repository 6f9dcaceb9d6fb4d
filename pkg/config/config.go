package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Options describes where settings come from. Later sources win:
// defaults, then the file, then the environment.
type Options struct {
	// ConfigFile is read instead of searching Paths for Name.
	ConfigFile string

	// Name is the file base name searched for in Paths, without extension.
	Name string

	// Type forces the file format (yaml, json, toml). By default it
	// follows the extension.
	Type string

	Paths []string

	// Required makes a missing file an error. A file that exists but
	// cannot be parsed is always an error.
	Required bool

	// EnvPrefix is prepended to every environment key, e.g. XMLSTORE.
	EnvPrefix string

	// AutomaticEnv maps "store.indent" to <EnvPrefix>_STORE_INDENT.
	AutomaticEnv bool

	// Defaults are keyed by dotted path ("store.indent"). The environment
	// can only override keys that have a default or appear in the file.
	Defaults map[string]any

	// TagName is the struct tag read when decoding (default "yaml").
	TagName string
}

// Loader reads one set of settings.
type Loader struct {
	v    *viper.Viper
	opts Options
}

// NewLoader creates a Loader for opts.
func NewLoader(opts Options) *Loader {
	if opts.TagName == "" {
		opts.TagName = "yaml"
	}
	return &Loader{v: viper.New(), opts: opts}
}

// FileUsed returns the configuration file that was read, or "" when
// settings came from defaults and the environment only.
func (l *Loader) FileUsed() string {
	return l.v.ConfigFileUsed()
}

// LoadInto decodes the merged sources into out, a struct pointer. Fields
// of out without a value in any source keep what they hold.
func (l *Loader) LoadInto(_ context.Context, out any) error {
	for k, v := range l.opts.Defaults {
		l.v.SetDefault(k, v)
	}
	if err := l.readFile(); err != nil {
		return err
	}
	if l.opts.AutomaticEnv {
		l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		l.v.SetEnvPrefix(l.opts.EnvPrefix)
		l.v.AutomaticEnv()
	}

	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	tagName := func(c *mapstructure.DecoderConfig) { c.TagName = l.opts.TagName }
	if err := l.v.Unmarshal(out, hooks, tagName); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

func (l *Loader) readFile() error {
	switch {
	case l.opts.ConfigFile != "":
		l.v.SetConfigFile(l.opts.ConfigFile)
	case l.opts.Name != "":
		l.v.SetConfigName(l.opts.Name)
		for _, p := range l.opts.Paths {
			l.v.AddConfigPath(p)
		}
	default:
		return nil
	}
	if l.opts.Type != "" {
		l.v.SetConfigType(l.opts.Type)
	}

	err := l.v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !l.opts.Required && (errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)) {
		l.v.SetConfigFile("")
		return nil
	}
	return fmt.Errorf("read config: %w", err)
}
