package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
)

// Root selects the directory a logical filename is resolved against.
type Root int

const (
	// InstallRoot is the directory containing the running executable.
	// Documents there are bundled with the application.
	InstallRoot Root = iota
	// UserDataRoot is the per-user application data directory.
	UserDataRoot
)

func (r Root) String() string {
	switch r {
	case InstallRoot:
		return "install"
	case UserDataRoot:
		return "user-data"
	default:
		return fmt.Sprintf("root(%d)", int(r))
	}
}

// Roots resolves logical filenames to absolute paths. Each root is
// computed at most once per Roots and never re-derived afterwards.
type Roots struct {
	cfg Config

	executable func() (string, error)
	dataHome   func() string

	installOnce sync.Once
	installDir  string
	installErr  error

	userOnce sync.Once
	userDir  string
	userErr  error
}

// NewRoots creates a resolver for the given configuration. A nil config
// uses DefaultConfig.
func NewRoots(cfg *Config) *Roots {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.AppDataSubDir == "" {
		c.AppDataSubDir = AppDataSubDir
	}

	return &Roots{
		cfg:        c,
		executable: os.Executable,
		dataHome:   func() string { return xdg.DataHome },
	}
}

var (
	defaultRootsOnce sync.Once
	defaultRoots     *Roots
)

// DefaultRoots returns the process-wide resolver built from DefaultConfig.
func DefaultRoots() *Roots {
	defaultRootsOnce.Do(func() {
		defaultRoots = NewRoots(DefaultConfig())
	})
	return defaultRoots
}

// Config returns a copy of the configuration the resolver was built with.
func (r *Roots) Config() Config {
	return r.cfg
}

// InstallDir returns the directory containing the running executable.
func (r *Roots) InstallDir() (string, error) {
	r.installOnce.Do(func() {
		if r.cfg.InstallDir != "" {
			r.installDir, r.installErr = filepath.Abs(r.cfg.InstallDir)
			if r.installErr != nil {
				r.installErr = &ResolutionError{Root: InstallRoot, Cause: r.installErr}
			}
			return
		}

		exe, err := r.executable()
		if err != nil {
			r.installErr = &ResolutionError{Root: InstallRoot, Cause: err}
			return
		}
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		r.installDir = filepath.Dir(exe)
	})
	return r.installDir, r.installErr
}

// UserDataDir returns the per-user data directory, creating it on first
// use.
func (r *Roots) UserDataDir() (string, error) {
	r.userOnce.Do(func() {
		dir := r.cfg.UserDataDir
		if dir == "" {
			base := r.dataHome()
			if base == "" {
				r.userErr = &ResolutionError{Root: UserDataRoot, Cause: errors.New("per-user data directory is unknown")}
				return
			}
			dir = filepath.Join(base, r.cfg.AppDataSubDir)
		}

		abs, err := filepath.Abs(dir)
		if err != nil {
			r.userErr = &ResolutionError{Root: UserDataRoot, Cause: err}
			return
		}
		// MkdirAll succeeds when another process created it first.
		if err := os.MkdirAll(abs, r.cfg.dirMode()); err != nil {
			r.userErr = &ResolutionError{Root: UserDataRoot, Cause: fmt.Errorf("create %s: %w", abs, err)}
			return
		}
		r.userDir = abs
	})
	return r.userDir, r.userErr
}

// Dir returns the directory of the given root.
func (r *Roots) Dir(root Root) (string, error) {
	switch root {
	case InstallRoot:
		return r.InstallDir()
	case UserDataRoot:
		return r.UserDataDir()
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownRoot, root)
	}
}

// Resolve joins filename to the directory of root. Absolute filenames are
// returned cleaned without resolving the root directory.
func (r *Roots) Resolve(filename string, root Root) (string, error) {
	if filename == "" {
		return "", ErrEmptyFilename
	}
	if filepath.IsAbs(filename) {
		if root != InstallRoot && root != UserDataRoot {
			return "", fmt.Errorf("%w: %s", ErrUnknownRoot, root)
		}
		return filepath.Clean(filename), nil
	}
	dir, err := r.Dir(root)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filename), nil
}

// Delete removes the resolved file. A missing file is not an error.
func (r *Roots) Delete(filename string, root Root) error {
	path, err := r.Resolve(filename, root)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}
