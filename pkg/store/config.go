package store

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// AppDataSubDir is the directory created under the per-user data location.
const AppDataSubDir = "Combat Manager"

// Config holds the storage roots and document encoding settings.
type Config struct {
	// AppDataSubDir is joined to the per-user data directory to form the
	// user-data root.
	AppDataSubDir string `json:"app_data_subdir" yaml:"app_data_subdir"`

	// InstallDir overrides the directory of the running executable.
	InstallDir string `json:"install_dir" yaml:"install_dir"`

	// UserDataDir overrides the complete user-data root.
	UserDataDir string `json:"user_data_dir" yaml:"user_data_dir"`

	// DirPerm is the permission used when creating directories.
	DirPerm uint32 `json:"dir_perm" yaml:"dir_perm"`

	// Indent is the per-level indentation of saved documents. Empty writes
	// a single line.
	Indent string `json:"indent" yaml:"indent"`

	// ReloadInterval is the minimum time between two reloads of a watched
	// document.
	ReloadInterval time.Duration `json:"reload_interval" yaml:"reload_interval"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		AppDataSubDir:  AppDataSubDir,
		DirPerm:        0o755,
		Indent:         "  ",
		ReloadInterval: 200 * time.Millisecond,
	}
}

// Validate checks the configuration for values the store cannot work with.
func (c *Config) Validate() error {
	var errs []error

	if c.AppDataSubDir == "" && c.UserDataDir == "" {
		errs = append(errs, errors.New("app_data_subdir is required when user_data_dir is not set"))
	}
	if c.DirPerm&0o700 != 0o700 {
		errs = append(errs, fmt.Errorf("dir_perm %o must grant the owner rwx", c.DirPerm))
	}
	if c.ReloadInterval < 0 {
		errs = append(errs, errors.New("reload_interval must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("store configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) dirMode() os.FileMode {
	if c.DirPerm == 0 {
		return 0o755
	}
	return os.FileMode(c.DirPerm)
}
